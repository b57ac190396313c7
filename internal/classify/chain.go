package classify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"sortbin/internal/logging"
)

var errNoBackends = errors.New("no detector backends configured")

// NamedDetector labels a backend for logs.
type NamedDetector struct {
	Name     string
	Detector Detector
}

// ChainDetector tries backends in order and returns the first non-empty
// result. A backend that errors or finds nothing hands over to the next.
type ChainDetector struct {
	backends []NamedDetector
	logger   *slog.Logger
}

// NewChainDetector builds a chain over backends.
func NewChainDetector(logger *slog.Logger, backends ...NamedDetector) *ChainDetector {
	return &ChainDetector{
		backends: backends,
		logger:   logging.NewComponentLogger(logger, "detector"),
	}
}

// Backends returns the configured backend names in order.
func (c *ChainDetector) Backends() []string {
	names := make([]string, 0, len(c.backends))
	for _, b := range c.backends {
		names = append(names, b.Name)
	}
	return names
}

// Detect implements Detector. It fails only when every backend failed.
func (c *ChainDetector) Detect(ctx context.Context, image []byte) ([]Detection, error) {
	if len(c.backends) == 0 {
		return nil, errNoBackends
	}
	var errs []error
	for _, backend := range c.backends {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		detections, err := backend.Detector.Detect(ctx, image)
		if err != nil {
			c.logger.Warn("detector backend failed; trying next",
				logging.String("backend", backend.Name),
				logging.Error(err),
				logging.String(logging.FieldEventType, "detector_backend_failed"),
			)
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name, err))
			continue
		}
		if len(detections) > 0 {
			c.logger.Debug("detector backend answered",
				logging.String("backend", backend.Name),
				logging.Int("detections", len(detections)),
			)
			return detections, nil
		}
	}
	if len(errs) == len(c.backends) {
		return nil, errors.Join(errs...)
	}
	return nil, nil
}

// Close closes every backend that holds resources.
func (c *ChainDetector) Close() error {
	var errs []error
	for _, backend := range c.backends {
		if closer, ok := backend.Detector.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
