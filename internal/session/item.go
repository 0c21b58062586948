package session

import (
	"github.com/raine/visual-tagger/internal/analyzer"
	"github.com/raine/visual-tagger/internal/preview"
)

// State is the life-cycle state of a submitted item.
type State string

const (
	StatePending State = "pending"
	StateLoading State = "loading"
	StateTagged  State = "tagged"
	StateFailed  State = "failed"
)

// Item is one user-submitted image tracked through analysis. The ID is
// generated at submission and never reused; re-analysis transitions the same
// item rather than creating a new one.
type Item struct {
	ID       string
	Name     string
	Data     []byte
	Preview  preview.Handle
	State    State
	Progress int // percent, meaningful while Loading

	// Result is set when State is StateTagged.
	Result *analyzer.Analysis
	// Err is set when State is StateFailed.
	Err *analyzer.ClassifiedError
}
