package analyzer

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryConfig defines the attempt budget and backoff for a single item.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int
	// BaseDelay is the wait after the first failed attempt; the wait doubles
	// after every subsequent failure.
	BaseDelay time.Duration
}

// DefaultRetryConfig allows one initial attempt plus three retries.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts: 4,
	BaseDelay:   1 * time.Second,
}

// RetryingAnalyzer wraps an Analyzer with bounded retries and exponential
// backoff. Attempts for one image are sequential; retrying never blocks
// other in-flight images. Errors crossing this boundary are always
// *ClassifiedError.
type RetryingAnalyzer struct {
	inner Analyzer
	cfg   RetryConfig

	// sleep is replaced in tests to observe backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetryingAnalyzer(inner Analyzer, cfg RetryConfig) *RetryingAnalyzer {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultRetryConfig.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultRetryConfig.BaseDelay
	}
	return &RetryingAnalyzer{
		inner: inner,
		cfg:   cfg,
		sleep: sleepCtx,
	}
}

// AnalyzeImage attempts the analysis, classifying each failure and retrying
// retryable ones with backoff baseDelay * 2^attempt until the budget is
// exhausted. The final error is the classification of the last attempt.
func (r *RetryingAnalyzer) AnalyzeImage(ctx context.Context, name string, data []byte) (*Analysis, error) {
	var last *ClassifiedError

	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		result, err := r.inner.AnalyzeImage(ctx, name, data)
		if err == nil {
			return result, nil
		}

		last = Classify(err)
		if !last.Retryable || attempt == r.cfg.MaxAttempts-1 {
			return nil, last
		}

		delay := r.cfg.BaseDelay << uint(attempt)
		log.Debug().
			Str("name", name).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Str("kind", string(last.Kind)).
			Msg("analysis attempt failed, retrying")

		if err := r.sleep(ctx, delay); err != nil {
			// Context cancelled mid-backoff; surface the last real failure.
			return nil, last
		}
	}

	return nil, last
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
