package classify

import (
	"context"
	"log/slog"

	"sortbin/internal/config"
	"sortbin/internal/logging"
)

// NewDetectorFromConfig builds a ChainDetector over the configured backends.
// A backend that cannot be constructed is skipped with a warning; an error is
// returned only when none can be built.
func NewDetectorFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*ChainDetector, error) {
	var backends []NamedDetector
	for _, name := range cfg.Detector.Backends {
		switch name {
		case config.DetectorHTTP:
			backends = append(backends, NamedDetector{
				Name:     name,
				Detector: NewHTTPDetector(cfg.Detector.Endpoint, cfg.Detector.MinConfidence, cfg.ClassifyTimeout()),
			})
		case config.DetectorVision:
			detector, err := NewVisionDetector(ctx, cfg.Detector.Credentials, cfg.Detector.MaxLabels)
			if err != nil {
				logging.WarnWithContext(logger, "vision detector unavailable; skipping backend", "detector_unavailable",
					logging.String("backend", name),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "set detector.credentials or GOOGLE_APPLICATION_CREDENTIALS"),
					logging.String(logging.FieldImpact, "no cloud fallback for object detection"),
				)
				continue
			}
			backends = append(backends, NamedDetector{Name: name, Detector: detector})
		}
	}
	if len(backends) == 0 {
		return nil, errNoBackends
	}
	return NewChainDetector(logger, backends...), nil
}
