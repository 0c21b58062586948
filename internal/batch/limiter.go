package batch

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is the default bound on in-flight analyses.
const DefaultConcurrency = 3

// Limiter admits at most K concurrent operations from an unbounded backlog.
// Waiters are admitted in FIFO order, so acquiring from a single dispatch
// loop preserves submission order. One operation finishing admits the next
// immediately; there is no artificial staggering beyond the bound.
type Limiter struct {
	sem *semaphore.Weighted
}

func NewLimiter(bound int) *Limiter {
	if bound < 1 {
		bound = DefaultConcurrency
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(bound))}
}

// Acquire blocks until a slot is free or ctx is cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// Release frees a slot acquired with Acquire.
func (l *Limiter) Release() {
	l.sem.Release(1)
}
