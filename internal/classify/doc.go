// Package classify turns a captured image into a single disposal decision.
//
// A Detector reports labels with confidences (a local HTTP object detector,
// Google Cloud Vision, or a ChainDetector trying several in order). The
// Aggregator drops detector artifacts such as hands and screens, picks the
// most confident remaining label, asks a Classifier for per-item waste
// categories, and flags the item when the user has mis-sorted it before.
//
// External failures never abort a disposal: a detector error degrades to "no
// object detected" and a classifier error degrades to non-recyclable. The
// degraded Result carries the cause in Failure.
package classify
