// Package retry provides bounded retry with exponential backoff and
// jitter for operations that fail transiently.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy bounds a retry loop. An attempt is retried only when Retryable
// reports the error transient; nil Retryable means nothing is retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Retryable   func(error) bool
}

// DefaultPolicy retries up to 3 attempts starting at 25ms.
func DefaultPolicy(retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   25 * time.Millisecond,
		MaxDelay:    250 * time.Millisecond,
		Retryable:   retryable,
	}
}

// Do runs fn until it succeeds, exhausts the attempt budget, or fails
// with a non-retryable error. The delay doubles per attempt with full
// jitter so competing retries decorrelate.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	delay := policy.BaseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if policy.Retryable == nil || !policy.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		sleep := time.Duration(rand.Int63n(int64(delay) + 1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		delay *= 2
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return err
}
