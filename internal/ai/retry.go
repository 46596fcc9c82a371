package ai

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy bounds every external model call: each attempt gets its own
// timeout and only transient failures are retried.
type RetryPolicy struct {
	Attempts       int
	PerCallTimeout time.Duration
	Backoff        time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:       3,
		PerCallTimeout: 30 * time.Second,
		Backoff:        500 * time.Millisecond,
	}
}

// Retry runs fn until it succeeds, fails permanently, or the attempt budget
// is spent. The wait between attempts grows linearly with the attempt number.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	attempt := 0
	for attempt < attempts {
		attempt++

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if policy.PerCallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, policy.PerCallTimeout)
		}
		v, err := fn(callCtx)
		cancel()
		if err == nil {
			return v, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, fmt.Errorf("attempt %d: %w", attempt, ctx.Err())
		}
		if !IsTransient(err) || attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("attempt %d: %w", attempt, ctx.Err())
		case <-time.After(policy.Backoff * time.Duration(attempt)):
		}
	}

	return zero, fmt.Errorf("after %d attempt(s): %w", attempt, lastErr)
}
