// Package ratelimit implements a tiered fixed-window limiter on Redis.
// Each caller gets a per-minute and a per-hour budget; either exhausting
// rejects the request. Redis outages fail open.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ledger-service/ledger_service/pkg/logger"
)

// Tier is one fixed window.
type Tier struct {
	Name   string
	Limit  int64
	Window time.Duration
}

// Decision is the limiter's verdict for one request.
type Decision struct {
	Allowed    bool
	Tier       string
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
}

// Allower is the limiter contract the middleware consumes.
type Allower interface {
	Allow(ctx context.Context, key string) Decision
}

// Limiter enforces tiered fixed windows keyed by caller identity.
type Limiter struct {
	client *redis.Client
	tiers  []Tier
	logger *logger.Logger
}

// NewLimiter creates a limiter with per-minute and per-hour tiers.
func NewLimiter(client *redis.Client, perMinute, perHour int64, log *logger.Logger) *Limiter {
	return &Limiter{
		client: client,
		tiers: []Tier{
			{Name: "minute", Limit: perMinute, Window: time.Minute},
			{Name: "hour", Limit: perHour, Window: time.Hour},
		},
		logger: log,
	}
}

// Allow checks every tier for the caller key. The first exhausted tier
// decides the rejection.
func (l *Limiter) Allow(ctx context.Context, key string) Decision {
	now := time.Now().UTC()

	for _, tier := range l.tiers {
		if tier.Limit <= 0 {
			continue
		}

		window := now.Truncate(tier.Window)
		bucket := fmt.Sprintf("ratelimit:%s:%s:%d", tier.Name, key, window.Unix())

		pipe := l.client.TxPipeline()
		count := pipe.Incr(ctx, bucket)
		pipe.Expire(ctx, bucket, tier.Window)
		if _, err := pipe.Exec(ctx); err != nil {
			// Unavailable limiter storage must not take the API down.
			l.logger.Warn("rate limiter unavailable, failing open", "error", err)
			return Decision{Allowed: true}
		}

		if count.Val() > tier.Limit {
			return Decision{
				Allowed:    false,
				Tier:       tier.Name,
				Limit:      tier.Limit,
				Remaining:  0,
				RetryAfter: window.Add(tier.Window).Sub(now),
			}
		}
	}
	return Decision{Allowed: true}
}
