package classify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	statuspb "google.golang.org/genproto/googleapis/rpc/status"

	"sortbin/internal/logging"
)

func TestHTTPDetectorPostsImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "image/jpeg" {
			t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "jpeg-bytes" {
			t.Errorf("unexpected body %q", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"detections": []any{
				map[string]any{"label": "bottle", "confidence": 0.93},
				map[string]any{"label": "cup", "confidence": 0.41},
			},
		})
	}))
	defer server.Close()

	detector := NewHTTPDetector(server.URL, 0.4, time.Second)
	detections, err := detector.Detect(context.Background(), []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}
	if len(detections) != 2 || detections[0].Label != "bottle" || detections[0].Confidence != 0.93 {
		t.Fatalf("unexpected detections: %#v", detections)
	}
}

func TestHTTPDetectorReportsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	if _, err := NewHTTPDetector(server.URL, 0.5, time.Second).Detect(context.Background(), []byte("x")); err == nil {
		t.Fatal("expected error for 503")
	}
}

func TestHTTPDetectorDropsLowConfidence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"detections": []any{
				map[string]any{"label": "bottle", "confidence": 0.3},
				map[string]any{"label": "cup", "confidence": 0.5},
			},
		})
	}))
	defer server.Close()

	detections, err := NewHTTPDetector(server.URL, 0.5, time.Second).Detect(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}
	if len(detections) != 1 || detections[0].Label != "cup" {
		t.Fatalf("expected only the detection at threshold, got %#v", detections)
	}
}

type recyclableClassifier struct{}

func (recyclableClassifier) Classify(_ context.Context, items []string) ([]ItemCategory, error) {
	out := make([]ItemCategory, 0, len(items))
	for _, item := range items {
		out = append(out, ItemCategory{Item: item, Category: Recyclable})
	}
	return out, nil
}

func TestWeakLocalDetectionFallsBackToVision(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"detections": []any{map[string]any{"label": "bottle", "confidence": 0.3}},
		})
	}))
	defer server.Close()

	annotate := func(context.Context, *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
		return &visionpb.BatchAnnotateImagesResponse{
			Responses: []*visionpb.AnnotateImageResponse{{
				LabelAnnotations: []*visionpb.EntityAnnotation{
					{Description: "Bottle", Score: 0.93},
					{Description: "Plastic", Score: 0.2},
				},
			}},
		}, nil
	}
	chain := NewChainDetector(logging.NewNop(),
		NamedDetector{Name: "http", Detector: NewHTTPDetector(server.URL, 0.5, time.Second)},
		NamedDetector{Name: "vision", Detector: newVisionDetector(annotate, nil, 10)},
	)

	result := NewAggregator(chain, recyclableClassifier{}).Process(context.Background(), []byte("img"), nil)
	if result.NoObject || result.BestItem != "bottle" {
		t.Fatalf("expected vision fallback to find the bottle, got %#v", result)
	}
	if result.Category != Recyclable {
		t.Fatalf("unexpected category %q", result.Category)
	}
	if len(result.Detections) != 2 {
		t.Fatalf("expected every vision label kept, got %#v", result.Detections)
	}
}

func TestVisionDetectorMapsLabels(t *testing.T) {
	var gotMax int32
	annotate := func(_ context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
		gotMax = req.GetRequests()[0].GetFeatures()[0].GetMaxResults()
		return &visionpb.BatchAnnotateImagesResponse{
			Responses: []*visionpb.AnnotateImageResponse{{
				LabelAnnotations: []*visionpb.EntityAnnotation{
					{Description: "Bottle", Score: 0.875},
					{Description: " ", Score: 0.5},
				},
			}},
		}, nil
	}
	detector := newVisionDetector(annotate, nil, 5)
	detections, err := detector.Detect(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}
	if gotMax != 5 {
		t.Fatalf("expected max results 5, got %d", gotMax)
	}
	if len(detections) != 1 || detections[0].Label != "Bottle" {
		t.Fatalf("unexpected detections: %#v", detections)
	}
	if detections[0].Percent() != 87.5 {
		t.Fatalf("unexpected percent %v", detections[0].Percent())
	}
}

func TestVisionDetectorSurfacesResponseError(t *testing.T) {
	annotate := func(context.Context, *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
		return &visionpb.BatchAnnotateImagesResponse{
			Responses: []*visionpb.AnnotateImageResponse{{
				Error: &statuspb.Status{Code: 3, Message: "bad image data"},
			}},
		}, nil
	}
	if _, err := newVisionDetector(annotate, nil, 0).Detect(context.Background(), []byte("img")); err == nil {
		t.Fatal("expected error from response status")
	}
}

type fakeDetector struct {
	detections []Detection
	err        error
	calls      int
}

func (f *fakeDetector) Detect(context.Context, []byte) ([]Detection, error) {
	f.calls++
	return f.detections, f.err
}

func TestChainDetectorFallsBack(t *testing.T) {
	empty := &fakeDetector{}
	failing := &fakeDetector{err: errors.New("offline")}
	vision := &fakeDetector{detections: []Detection{{Label: "can", Confidence: 0.8}}}

	chain := NewChainDetector(logging.NewNop(),
		NamedDetector{Name: "http", Detector: empty},
		NamedDetector{Name: "broken", Detector: failing},
		NamedDetector{Name: "vision", Detector: vision},
	)
	detections, err := chain.Detect(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}
	if len(detections) != 1 || detections[0].Label != "can" {
		t.Fatalf("unexpected detections: %#v", detections)
	}
	if empty.calls != 1 || failing.calls != 1 || vision.calls != 1 {
		t.Fatalf("expected each backend tried once, got %d/%d/%d", empty.calls, failing.calls, vision.calls)
	}
	if got := chain.Backends(); len(got) != 3 || got[2] != "vision" {
		t.Fatalf("unexpected backend names %v", got)
	}
}

func TestChainDetectorErrorsOnlyWhenAllFail(t *testing.T) {
	chain := NewChainDetector(nil,
		NamedDetector{Name: "a", Detector: &fakeDetector{err: errors.New("a down")}},
		NamedDetector{Name: "b", Detector: &fakeDetector{err: errors.New("b down")}},
	)
	if _, err := chain.Detect(context.Background(), nil); err == nil {
		t.Fatal("expected error when every backend fails")
	}

	chain = NewChainDetector(nil,
		NamedDetector{Name: "a", Detector: &fakeDetector{err: errors.New("a down")}},
		NamedDetector{Name: "b", Detector: &fakeDetector{}},
	)
	detections, err := chain.Detect(context.Background(), nil)
	if err != nil || len(detections) != 0 {
		t.Fatalf("expected empty result without error, got %v %v", detections, err)
	}
}
