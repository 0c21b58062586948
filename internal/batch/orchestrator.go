package batch

import (
	"context"
	"sync"

	"github.com/raine/visual-tagger/internal/analyzer"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Item is one unit of work in a batch run.
type Item struct {
	ID   string
	Name string
	Data []byte
}

// Outcome is the terminal result of one item: either an analysis or a
// classified error, never both.
type Outcome struct {
	Analysis *analyzer.Analysis
	Err      *analyzer.ClassifiedError
}

// Succeeded reports whether the item reached a successful analysis.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Hooks receive life-cycle events during a batch run. Any hook may be nil.
// Hooks are invoked serially with the run's bookkeeping already updated, so
// they always observe consistent aggregate counters; they should return
// quickly.
type Hooks struct {
	// ItemStarted fires when an item is admitted into the concurrency window.
	ItemStarted func(id string)
	// ItemSettled fires exactly once per item on its terminal outcome.
	ItemSettled func(id string, outcome Outcome)
	// Progress fires after each settlement with completed/total, forming a
	// non-decreasing sequence that ends at exactly 1.0.
	Progress func(fraction float64)
}

// Summary aggregates a completed batch run.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	// AvgProcessingTime is the mean processing time in seconds over
	// successful items, 0 if none succeeded.
	AvgProcessingTime float64
}

// Orchestrator turns a list of items into a bounded stream of analysis calls.
// One item failing never aborts or delays its siblings; each item runs to its
// own terminal outcome.
type Orchestrator struct {
	analyzer analyzer.Analyzer
	limiter  *Limiter
}

// NewOrchestrator creates an orchestrator. The analyzer is expected to carry
// its own retry policy; the orchestrator itself never retries.
func NewOrchestrator(a analyzer.Analyzer, concurrency int) *Orchestrator {
	return &Orchestrator{
		analyzer: a,
		limiter:  NewLimiter(concurrency),
	}
}

// run holds the mutable counters for one batch invocation.
type run struct {
	mu        sync.Mutex
	total     int
	completed int
	succeeded int
	failed    int
	totalTime float64
	hooks     Hooks
}

// settle records one item's terminal outcome and fires the callbacks.
// Counters are updated before the callbacks run, and callbacks are serialized
// under the run lock so progress values are monotonically non-decreasing.
func (r *run) settle(id string, outcome Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.completed++
	if outcome.Succeeded() {
		r.succeeded++
		r.totalTime += outcome.Analysis.ProcessingTime
	} else {
		r.failed++
	}

	if r.hooks.ItemSettled != nil {
		r.hooks.ItemSettled(id, outcome)
	}
	if r.hooks.Progress != nil {
		r.hooks.Progress(float64(r.completed) / float64(r.total))
	}
}

func (r *run) summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summary{
		Total:     r.total,
		Succeeded: r.succeeded,
		Failed:    r.failed,
	}
	if r.succeeded > 0 {
		s.AvgProcessingTime = r.totalTime / float64(r.succeeded)
	}
	return s
}

// Run processes all items and blocks until every item has settled. Admission
// into the concurrency window follows the order of items; completion order is
// whatever the service dictates. If ctx is cancelled, items not yet admitted
// settle as failed without being attempted.
func (o *Orchestrator) Run(ctx context.Context, items []Item, hooks Hooks) Summary {
	r := &run{total: len(items), hooks: hooks}
	if len(items) == 0 {
		return r.summary()
	}

	var g errgroup.Group
	for _, item := range items {
		if err := o.limiter.Acquire(ctx); err != nil {
			r.settle(item.ID, Outcome{Err: analyzer.Classify(err)})
			continue
		}

		if hooks.ItemStarted != nil {
			hooks.ItemStarted(item.ID)
		}

		item := item
		g.Go(func() error {
			defer o.limiter.Release()
			o.process(ctx, item, r)
			return nil
		})
	}
	g.Wait()

	summary := r.summary()
	log.Info().
		Int("total", summary.Total).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Float64("avgProcessingTime", summary.AvgProcessingTime).
		Msg("batch run complete")
	return summary
}

func (o *Orchestrator) process(ctx context.Context, item Item, r *run) {
	result, err := o.analyzer.AnalyzeImage(ctx, item.Name, item.Data)
	if err != nil {
		cerr := analyzer.Classify(err)
		log.Warn().
			Str("id", item.ID).
			Str("name", item.Name).
			Str("kind", string(cerr.Kind)).
			Msg("item analysis failed")
		r.settle(item.ID, Outcome{Err: cerr})
		return
	}
	r.settle(item.ID, Outcome{Analysis: result})
}
