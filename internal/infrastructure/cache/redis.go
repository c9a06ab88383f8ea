package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ledger-service/ledger_service/internal/infrastructure/config"
	"github.com/ledger-service/ledger_service/pkg/logger"
)

// redisCache implements Cache on a Redis client. Every error degrades to a
// miss; a dead Redis slows reads down but never fails a write path.
type redisCache struct {
	client *redis.Client
	logger *logger.Logger
}

// NewRedisCache connects to Redis and returns the cache adapter.
func NewRedisCache(cfg *config.RedisConfig, log *logger.Logger) (Cache, *redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, nil, fmt.Errorf("connect to Redis: %w", err)
	}

	log.Info("Connected to Redis", "host", cfg.Host, "port", cfg.Port)

	return &redisCache{client: rdb, logger: log}, rdb, nil
}

func (c *redisCache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		c.logger.Warn("Cache get error", "key", key, "error", err)
		return "", false
	}
	return val, true
}

func (c *redisCache) Set(ctx context.Context, key, value string, ttl time.Duration) bool {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Warn("Cache set error", "key", key, "error", err)
		return false
	}
	return true
}

func (c *redisCache) Delete(ctx context.Context, key string) bool {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("Cache delete error", "key", key, "error", err)
		return false
	}
	return true
}

func (c *redisCache) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	val, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		c.logger.Warn("Cache unmarshal error", "key", key, "error", err)
		return false
	}
	return true
}

func (c *redisCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) bool {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Cache marshal error", "key", key, "error", err)
		return false
	}
	return c.Set(ctx, key, string(data), ttl)
}

func (c *redisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
