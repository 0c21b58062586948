package analyzer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedAnalyzer returns the scripted errors in order, then succeeds.
type scriptedAnalyzer struct {
	errs  []error
	calls int
}

func (s *scriptedAnalyzer) AnalyzeImage(ctx context.Context, name string, data []byte) (*Analysis, error) {
	defer func() { s.calls++ }()
	if s.calls < len(s.errs) {
		return nil, s.errs[s.calls]
	}
	return &Analysis{Filename: name, Tags: []Tag{{Label: "a cat", Confidence: 0.9}}}, nil
}

// newTestRetrier wires a retrier whose sleeps are recorded instead of slept.
func newTestRetrier(inner Analyzer, cfg RetryConfig, slept *[]time.Duration) *RetryingAnalyzer {
	r := NewRetryingAnalyzer(inner, cfg)
	r.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return r
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	inner := &scriptedAnalyzer{errs: []error{
		&APIError{Status: 500},
		&APIError{Status: 500},
		&APIError{Status: 500},
	}}
	var slept []time.Duration
	r := newTestRetrier(inner, RetryConfig{MaxAttempts: 4, BaseDelay: time.Second}, &slept)

	result, err := r.AnalyzeImage(context.Background(), "cat.jpg", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "cat.jpg", result.Filename)
	assert.Equal(t, 4, inner.calls)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}, slept)
}

func TestRetryNonRetryableStopsImmediately(t *testing.T) {
	inner := &scriptedAnalyzer{errs: []error{
		&APIError{Status: 422, Body: []byte(`{"detail": "bad image"}`)},
	}}
	var slept []time.Duration
	r := newTestRetrier(inner, RetryConfig{MaxAttempts: 4, BaseDelay: time.Second}, &slept)

	_, err := r.AnalyzeImage(context.Background(), "doc.pdf", []byte("x"))
	require.Error(t, err)

	var cerr *ClassifiedError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrorValidation, cerr.Kind)
	assert.False(t, cerr.Retryable)
	assert.Equal(t, 1, inner.calls)
	assert.Empty(t, slept)
}

func TestRetryExhaustsBudget(t *testing.T) {
	inner := &scriptedAnalyzer{errs: []error{
		&APIError{Status: 500},
		&APIError{Status: 502},
		&APIError{Status: 429},
		&APIError{Status: 500},
	}}
	var slept []time.Duration
	r := newTestRetrier(inner, RetryConfig{MaxAttempts: 4, BaseDelay: time.Second}, &slept)

	_, err := r.AnalyzeImage(context.Background(), "cat.jpg", []byte("x"))
	require.Error(t, err)

	var cerr *ClassifiedError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrorServer, cerr.Kind)
	assert.True(t, cerr.Retryable)
	// Budget of 4: only 3 backoff waits happen
	assert.Equal(t, 4, inner.calls)
	assert.Len(t, slept, 3)
}

func TestRetryStopsWhenContextCancelledDuringBackoff(t *testing.T) {
	inner := &scriptedAnalyzer{errs: []error{
		&APIError{Status: 500},
		&APIError{Status: 500},
	}}
	r := NewRetryingAnalyzer(inner, RetryConfig{MaxAttempts: 4, BaseDelay: time.Second})
	r.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	_, err := r.AnalyzeImage(context.Background(), "cat.jpg", []byte("x"))
	require.Error(t, err)

	var cerr *ClassifiedError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrorServer, cerr.Kind)
	assert.Equal(t, 1, inner.calls)
}

func TestRetryDefaultsApplied(t *testing.T) {
	r := NewRetryingAnalyzer(&scriptedAnalyzer{}, RetryConfig{})
	assert.Equal(t, 4, r.cfg.MaxAttempts)
	assert.Equal(t, 1*time.Second, r.cfg.BaseDelay)
}
