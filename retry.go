package actionq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy defines the retry behavior of an executor wrapped with WithRetry.
type RetryPolicy struct {
	MaxAttempts uint
	BackOff     backoff.BackOff
}

// Permanent wraps an error so WithRetry gives up immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// WithRetry wraps an executor so a failed attempt is retried according to the policy.
// Without a BackOff or with MaxAttempts below 2 the executor runs once.
func WithRetry(exec Executor, policy RetryPolicy) Executor {
	return func(ctx context.Context, a Action, c *Controller) (any, error) {
		maxAttempts := policy.MaxAttempts
		if maxAttempts == 0 {
			maxAttempts = 1
		}
		var bo backoff.BackOff = &backoff.StopBackOff{}
		if policy.BackOff != nil {
			bo = policy.BackOff
		}
		bo = backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxAttempts-1)), ctx)

		var attempts uint
		result, err := backoff.RetryWithData(func() (any, error) {
			attempts++
			return exec(ctx, a, c)
		}, bo)
		if err != nil && attempts > 1 {
			return nil, fmt.Errorf("action '%s' failed after %d attempts: %w", a.Type, attempts, err)
		}
		return result, err
	}
}

// WithTimeout wraps an executor so its context expires after d.
func WithTimeout(exec Executor, d time.Duration) Executor {
	return func(ctx context.Context, a Action, c *Controller) (any, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		result, err := exec(ctx, a, c)
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("action '%s' timed out after %v: %w", a.Type, d, err)
		}
		return result, err
	}
}

// ConstantBackoff returns a backoff with a fixed delay between attempts.
func ConstantBackoff(delay time.Duration) backoff.BackOff {
	return backoff.NewConstantBackOff(delay)
}

// ExponentialBackoff returns a backoff whose delay grows by multiplier up to maxInterval.
func ExponentialBackoff(initialInterval, maxInterval time.Duration, multiplier float64) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialInterval
	b.MaxInterval = maxInterval
	b.Multiplier = multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// ZeroBackoff returns a backoff that retries immediately.
func ZeroBackoff() backoff.BackOff {
	return &backoff.ZeroBackOff{}
}
