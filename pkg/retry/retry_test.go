package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultPolicy(nil), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientErrors(t *testing.T) {
	policy := Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Retryable:   func(err error) bool { return errors.Is(err, errTransient) },
	}

	calls := 0
	err := Do(context.Background(), policy, func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsBudget(t *testing.T) {
	policy := Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Retryable:   func(error) bool { return true },
	}

	calls := 0
	err := Do(context.Background(), policy, func(context.Context) error {
		calls++
		return errTransient
	})
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("permanent")
	policy := Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		Retryable:   func(err error) bool { return errors.Is(err, errTransient) },
	}

	calls := 0
	err := Do(context.Background(), policy, func(context.Context) error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		Retryable:   func(error) bool { return true },
	}

	err := Do(ctx, policy, func(context.Context) error { return errTransient })
	assert.ErrorIs(t, err, context.Canceled)
}
