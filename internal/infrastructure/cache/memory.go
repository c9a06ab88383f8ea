package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryCache is a process-local Cache used by tests and local
// development. Expiry is lazy.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string]memoryEntry{}}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		c.Delete(context.Background(), key)
		return "", false
	}
	return e.value, true
}

func (c *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) bool {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = memoryEntry{value: value, expiresAt: exp}
	c.mu.Unlock()
	return true
}

func (c *MemoryCache) Delete(_ context.Context, key string) bool {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return true
}

func (c *MemoryCache) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	val, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(val), dest) == nil
}

func (c *MemoryCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) bool {
	data, err := json.Marshal(value)
	if err != nil {
		return false
	}
	return c.Set(ctx, key, string(data), ttl)
}

func (c *MemoryCache) Ping(context.Context) error { return nil }
