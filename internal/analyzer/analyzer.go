package analyzer

import (
	"context"
	"time"
)

// Tag is a single descriptive label with a confidence score in [0,1].
type Tag struct {
	Label      string  `json:"tag"`
	Confidence float64 `json:"confidence"`
}

// Analysis contains the tags and metadata for one analyzed image.
type Analysis struct {
	Filename       string
	Tags           []Tag
	ProcessingTime float64 // seconds spent in model inference
	Width          int
	Height         int
	Model          string
	CompletedAt    time.Time
}

// Analyzer can analyze a single image and produce descriptive tags.
type Analyzer interface {
	// AnalyzeImage analyzes the raw image data. The name is the original
	// filename, used by the service for logging and echoed back in the result.
	AnalyzeImage(ctx context.Context, name string, data []byte) (*Analysis, error)
}
