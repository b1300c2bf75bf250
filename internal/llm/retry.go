package llm

import (
	"context"
	"math"
	"time"
)

// RetryPolicy retries transient failures with exponential backoff. The
// defaults mirror the retry budget used for long multi-agent chains against
// rate-limited model APIs.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Base         float64
}

// DefaultRetryPolicy returns the standard retry budget for model-backed stages.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: 5 * time.Second,
		Base:         2,
	}
}

// Do invokes op until it succeeds, fails non-transiently, exhausts the attempt
// budget, or the context is done. The last error is returned unwrapped so the
// caller can classify it.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := p.delay(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

// delay computes the backoff before the given (1-based) retry attempt.
func (p RetryPolicy) delay(attempt int) time.Duration {
	initial := p.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	base := p.Base
	if base < 1 {
		base = 2
	}
	return time.Duration(float64(initial) * math.Pow(base, float64(attempt-1)))
}
