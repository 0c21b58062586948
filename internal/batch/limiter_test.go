package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterBoundsConcurrency(t *testing.T) {
	const bound = 3
	const ops = 20

	limiter := NewLimiter(bound)
	var inFlight, peak int64
	var wg sync.WaitGroup

	for i := 0; i < ops; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, limiter.Acquire(context.Background()))
			defer limiter.Release()

			cur := atomic.AddInt64(&inFlight, 1)
			for {
				old := atomic.LoadInt64(&peak)
				if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&inFlight, -1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(bound))
	assert.GreaterOrEqual(t, atomic.LoadInt64(&peak), int64(2), "expected real overlap under the bound")
}

func TestLimiterAcquireCancelled(t *testing.T) {
	limiter := NewLimiter(1)
	require.NoError(t, limiter.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, limiter.Acquire(ctx))

	limiter.Release()
}

func TestLimiterDefaultBound(t *testing.T) {
	limiter := NewLimiter(0)
	for i := 0; i < DefaultConcurrency; i++ {
		require.NoError(t, limiter.Acquire(context.Background()))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, limiter.Acquire(ctx), "slot beyond the default bound should not be granted")
}
