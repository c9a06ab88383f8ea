package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLocalLimiterAllowsWithinBudget(t *testing.T) {
	limiter := NewLocalLimiter(10)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		decision := limiter.Allow(ctx, "caller")
		assert.True(t, decision.Allowed, "request %d should pass", i)
	}

	decision := limiter.Allow(ctx, "caller")
	assert.False(t, decision.Allowed)
	assert.Equal(t, "local", decision.Tier)
	assert.Greater(t, decision.RetryAfter, time.Duration(0))
}

func TestLocalLimiterIsolatesKeys(t *testing.T) {
	limiter := NewLocalLimiter(1)
	ctx := context.Background()

	assert.True(t, limiter.Allow(ctx, "a").Allowed)
	assert.False(t, limiter.Allow(ctx, "a").Allowed)
	assert.True(t, limiter.Allow(ctx, "b").Allowed)
}

func TestLocalLimiterDefaultBudget(t *testing.T) {
	limiter := NewLocalLimiter(0)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		assert.True(t, limiter.Allow(ctx, fmt.Sprintf("k-%d", i%3)).Allowed)
	}
}
