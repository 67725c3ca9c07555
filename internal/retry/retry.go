package retry

import (
	"context"
	"math"
	"time"

	"github.com/agentkernel/agentkernel/pkg/kernel"
)

// Retry runs call until it succeeds or policy.WithDefaults().MaxAttempts
// is exhausted, sleeping min(initialDelay*multiplier^i, maxDelay)
// between attempt i and i+1. It returns the final output or error and
// the number of retries actually used (0 means it succeeded on the
// first try), matching the metrics.retryCount contract of
// FallbackManager.ExecuteWithFallback.
func Retry(ctx context.Context, policy kernel.RetryPolicy, call func(ctx context.Context) (any, error)) (any, int, error) {
	p := policy.WithDefaults()

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, attempt, ctx.Err()
			case <-time.After(backoffDelay(p, attempt-1)):
			}
		}

		out, err := call(ctx)
		if err == nil {
			return out, attempt, nil
		}
		lastErr = err
	}
	return nil, p.MaxAttempts - 1, lastErr
}

// backoffDelay computes the delay before the (attempt+1)-th retry,
// attempt being 0-indexed from the first retry.
func backoffDelay(p kernel.RetryPolicy, attempt int) time.Duration {
	d := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if max := float64(p.MaxDelay); d > max {
		d = max
	}
	return time.Duration(d)
}
