package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPDetector posts JPEG bytes to a local object-detection service that
// answers {"detections":[{"label":"bottle","confidence":0.91}]}.
type HTTPDetector struct {
	endpoint      string
	minConfidence float64
	client        *http.Client
}

// NewHTTPDetector builds a detector for endpoint. Detections scored below
// minConfidence are dropped, so a weak local answer reads as no answer and
// a ChainDetector moves on to the next backend.
func NewHTTPDetector(endpoint string, minConfidence float64, timeout time.Duration) *HTTPDetector {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPDetector{
		endpoint:      strings.TrimSpace(endpoint),
		minConfidence: minConfidence,
		client:        &http.Client{Timeout: timeout},
	}
}

// Detect implements Detector.
func (d *HTTPDetector) Detect(ctx context.Context, image []byte) ([]Detection, error) {
	if d.endpoint == "" {
		return nil, errors.New("http detector: endpoint not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("http detector: new request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http detector: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("http detector: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http detector: http %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var payload struct {
		Detections []Detection `json:"detections"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("http detector: decode response: %w", err)
	}
	kept := payload.Detections[:0]
	for _, det := range payload.Detections {
		if det.Confidence >= d.minConfidence {
			kept = append(kept, det)
		}
	}
	return kept, nil
}
