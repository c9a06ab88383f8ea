// Package cache provides the best-effort key/value adapter used for
// balance reads and the idempotency fast path. Operations never fail
// across the boundary: errors are logged and reported as a miss or a
// false write so the store stays authoritative.
package cache

import (
	"context"
	"time"
)

// Cache is the adapter contract consumed by the domain services.
type Cache interface {
	// Get returns the string value and whether the key was present.
	Get(ctx context.Context, key string) (string, bool)
	// Set stores a value with a TTL; reports whether the write took.
	Set(ctx context.Context, key, value string, ttl time.Duration) bool
	// Delete removes a key; reports whether the delete took.
	Delete(ctx context.Context, key string) bool
	// GetJSON unmarshals the cached value into dest; false on miss.
	GetJSON(ctx context.Context, key string, dest interface{}) bool
	// SetJSON marshals value and stores it with a TTL.
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) bool
	// Ping verifies connectivity; used by readiness checks.
	Ping(ctx context.Context) error
}
