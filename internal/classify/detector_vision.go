package classify

import (
	"context"
	"fmt"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
)

type annotateFunc func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error)

// VisionDetector runs Google Cloud Vision label detection.
type VisionDetector struct {
	annotate  annotateFunc
	close     func() error
	maxLabels int
}

// NewVisionDetector dials the Vision API. credentials may be a key file path,
// inline service-account JSON, or empty for application default credentials.
func NewVisionDetector(ctx context.Context, credentials string, maxLabels int) (*VisionDetector, error) {
	client, err := vision.NewImageAnnotatorClient(ctx, GoogleClientOptions(credentials)...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	annotate := func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
		return client.BatchAnnotateImages(ctx, req)
	}
	return newVisionDetector(annotate, client.Close, maxLabels), nil
}

func newVisionDetector(annotate annotateFunc, closeFn func() error, maxLabels int) *VisionDetector {
	if maxLabels <= 0 {
		maxLabels = 10
	}
	return &VisionDetector{annotate: annotate, close: closeFn, maxLabels: maxLabels}
}

// GoogleClientOptions maps a credentials setting to client options.
func GoogleClientOptions(credentials string) []option.ClientOption {
	credentials = strings.TrimSpace(credentials)
	switch {
	case credentials == "":
		return nil
	case strings.HasPrefix(credentials, "{"):
		return []option.ClientOption{option.WithCredentialsJSON([]byte(credentials))}
	default:
		return []option.ClientOption{option.WithCredentialsFile(credentials)}
	}
}

// Detect implements Detector.
func (d *VisionDetector) Detect(ctx context.Context, image []byte) ([]Detection, error) {
	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image: &visionpb.Image{Content: image},
			Features: []*visionpb.Feature{{
				Type:       visionpb.Feature_LABEL_DETECTION,
				MaxResults: int32(d.maxLabels),
			}},
		}},
	}
	resp, err := d.annotate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vision annotate: %w", err)
	}
	if len(resp.GetResponses()) == 0 {
		return nil, nil
	}
	single := resp.GetResponses()[0]
	if status := single.GetError(); status != nil && status.GetCode() != 0 {
		return nil, fmt.Errorf("vision annotate: code %d: %s", status.GetCode(), status.GetMessage())
	}
	labels := single.GetLabelAnnotations()
	out := make([]Detection, 0, len(labels))
	for _, label := range labels {
		name := strings.TrimSpace(label.GetDescription())
		if name == "" {
			continue
		}
		out = append(out, Detection{Label: name, Confidence: float64(label.GetScore())})
	}
	return out, nil
}

// Close releases the gRPC connection.
func (d *VisionDetector) Close() error {
	if d == nil || d.close == nil {
		return nil
	}
	return d.close()
}
