package models

import "context"

// Detector is the core interface every inference integration must implement.
// Never call a specific inference backend directly — always inject this
// interface.
type Detector interface {
	// Detect runs object detection on one frame and returns the raw boxes.
	Detect(ctx context.Context, frame *Frame, opts DetectOptions) ([]RawBox, error)
	// ClassNames returns the model's class labels in stable index order.
	ClassNames(ctx context.Context) ([]string, error)
	// Name returns the provider identifier (e.g., "sidecar").
	Name() string
}

// DetectOptions are the per-call inference parameters.
type DetectOptions struct {
	Confidence float64 // minimum confidence, 0.0–1.0
	IoU        float64 // NMS IoU threshold, 0.0–1.0
	Device     string  // "cpu" or "cuda"
}

// RawBox is one detection as reported by the model: two corner points in
// pixel coordinates (x1<x2, y1<y2 expected from the model, not re-validated),
// a confidence score and a class index.
type RawBox struct {
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Confidence float64 `json:"confidence"`
	ClassID    int     `json:"class_id"`
}
