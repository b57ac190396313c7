package classify

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"sortbin/internal/ledger"
	"sortbin/internal/logging"
	"sortbin/internal/services"
)

// UnknownObject is the item name reported when nothing usable was detected.
const UnknownObject = "unknown_object"

// Detection is one detector label. Confidence is in [0,1].
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Percent returns the confidence as a percentage rounded to two decimals.
func (d Detection) Percent() float64 {
	return math.Round(d.Confidence*100*100) / 100
}

// ItemCategory is one classifier verdict.
type ItemCategory struct {
	Item     string   `json:"item"`
	Category Category `json:"category"`
}

// Detector finds labelled objects in an image.
type Detector interface {
	Detect(ctx context.Context, image []byte) ([]Detection, error)
}

// Classifier assigns a waste category to each item name.
type Classifier interface {
	Classify(ctx context.Context, items []string) ([]ItemCategory, error)
}

// Warning flags an item the user previously disposed of incorrectly.
type Warning struct {
	Item     string   `json:"item"`
	Category Category `json:"category"`
}

// Text renders the reminder shown to the user.
func (w Warning) Text() string {
	return fmt.Sprintf("warning: %s: please note it is %s", w.Item, w.Category)
}

// Result is the aggregated outcome for one image.
type Result struct {
	BestItem   string
	Confidence float64
	Category   Category
	Warning    *Warning
	Items      []ItemCategory
	Detections []Detection
	NoObject   bool
	// Failure is set when an external call failed and the result was degraded.
	Failure error
}

// DeviceMessage renders the classification line sent to the device.
func (r Result) DeviceMessage() string {
	msg := r.BestItem + ":" + string(r.Category)
	if r.Warning != nil {
		msg += ";warning"
	}
	return msg
}

func noObject(detections []Detection, failure error) Result {
	return Result{
		BestItem:   UnknownObject,
		Category:   NonRecyclable,
		Detections: detections,
		NoObject:   true,
		Failure:    failure,
	}
}

// Aggregator combines detector output, classifier verdicts, and the user's
// reminder list into a Result.
type Aggregator struct {
	detector   Detector
	classifier Classifier
	logger     *slog.Logger
}

// AggregatorOption customizes an Aggregator.
type AggregatorOption func(*Aggregator)

// WithLogger sets the logger used for degraded-result warnings.
func WithLogger(logger *slog.Logger) AggregatorOption {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// NewAggregator wires a detector and classifier.
func NewAggregator(detector Detector, classifier Classifier, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{detector: detector, classifier: classifier}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.NewComponentLogger(a.logger, "classify")
	return a
}

// Process detects objects in image and aggregates them for user, who may be nil.
func (a *Aggregator) Process(ctx context.Context, image []byte, user *ledger.User) Result {
	if len(image) == 0 {
		return noObject(nil, services.Wrap(services.ErrValidation, "detector", "detect", "empty image", nil))
	}
	if a.detector == nil {
		return noObject(nil, services.Wrap(services.ErrConfiguration, "detector", "detect", "no detector configured", nil))
	}
	detections, err := a.detector.Detect(ctx, image)
	if err != nil {
		err = services.WrapCall("detector", "detect", err)
		logging.WarnWithContext(logging.WithContext(ctx, a.logger), "object detection failed; reporting no object", "detection_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check detector endpoint and credentials"),
			logging.String(logging.FieldImpact, "disposal reported as unknown_object"),
		)
		return noObject(nil, err)
	}
	return a.Aggregate(ctx, detections, user)
}

// Aggregate selects the best item from detections and resolves its category.
func (a *Aggregator) Aggregate(ctx context.Context, detections []Detection, user *ledger.User) Result {
	kept := a.filter(detections)
	if len(kept) == 0 {
		return noObject(detections, nil)
	}

	best := kept[0]
	for _, d := range kept[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}

	result := Result{
		BestItem:   best.Label,
		Confidence: best.Confidence,
		Category:   NonRecyclable,
		Detections: kept,
	}

	if a.classifier == nil {
		result.Failure = services.Wrap(services.ErrConfiguration, "classifier", "classify", "no classifier configured", nil)
	} else {
		items, err := a.classifier.Classify(ctx, uniqueLabels(kept))
		if err != nil {
			result.Failure = services.WrapCall("classifier", "classify", err)
			logging.WarnWithContext(logging.WithContext(ctx, a.logger), "classification failed; defaulting to non-recyclable", "classification_failed",
				logging.String("item", best.Label),
				logging.Error(result.Failure),
				logging.String(logging.FieldErrorHint, "check llm api key and model"),
				logging.String(logging.FieldImpact, "item category defaulted"),
			)
		}
		result.Items = items
		if category, ok := lookupCategory(items, best.Label); ok {
			result.Category = category
		}
	}

	if user.HasReminder(best.Label) {
		result.Warning = &Warning{Item: best.Label, Category: result.Category}
	}
	return result
}

func (a *Aggregator) filter(detections []Detection) []Detection {
	kept := make([]Detection, 0, len(detections))
	for _, d := range detections {
		label := NormalizeItem(d.Label)
		if label == "" || IsExcluded(label) {
			continue
		}
		kept = append(kept, Detection{Label: label, Confidence: d.Confidence})
	}
	return kept
}

func uniqueLabels(detections []Detection) []string {
	seen := make(map[string]struct{}, len(detections))
	labels := make([]string, 0, len(detections))
	for _, d := range detections {
		if _, ok := seen[d.Label]; ok {
			continue
		}
		seen[d.Label] = struct{}{}
		labels = append(labels, d.Label)
	}
	return labels
}

func lookupCategory(items []ItemCategory, label string) (Category, bool) {
	key := matchKey(label)
	for _, item := range items {
		if matchKey(item.Item) == key {
			return ParseCategory(string(item.Category)), true
		}
	}
	return "", false
}
