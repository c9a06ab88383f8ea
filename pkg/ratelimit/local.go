package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalLimiter is an in-process token-bucket limiter keyed by caller
// identity. It backs the API when no shared limiter storage is
// configured, so local development and tests still get rate limiting.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

// NewLocalLimiter creates a limiter allowing perMinute requests per key
// with a burst of the same size.
func NewLocalLimiter(perMinute int64) *LocalLimiter {
	if perMinute <= 0 {
		perMinute = 100
	}
	return &LocalLimiter{
		buckets: make(map[string]*rate.Limiter),
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   int(perMinute),
	}
}

func (l *LocalLimiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = b
	}
	return b
}

// Allow checks the caller's bucket.
func (l *LocalLimiter) Allow(_ context.Context, key string) Decision {
	b := l.bucket(key)
	if b.Allow() {
		return Decision{Allowed: true}
	}
	return Decision{
		Allowed:    false,
		Tier:       "local",
		Limit:      int64(l.burst),
		RetryAfter: time.Duration(float64(time.Second) / float64(l.limit)),
	}
}
