// internal/common/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"textagents/internal/common/config"
)

// RedisCache keeps results as JSON strings under a common key prefix.
type RedisCache struct {
	client redis.Cmdable
	prefix string
}

// NewRedisClient creates a client for the cache section of the configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
}

func NewRedisCache(client redis.Cmdable, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

// New returns a RedisCache when caching is enabled and NopCache otherwise.
// The returned close function releases the connection pool.
func New(cfg config.CacheConfig) (ResultCache, func() error) {
	if !cfg.Enabled {
		return NopCache{}, func() error { return nil }
	}
	client := NewRedisClient(cfg.Redis)
	return NewRedisCache(client, cfg.KeyPrefix), client.Close
}

func (c *RedisCache) Get(ctx context.Context, key string) (map[string]interface{}, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Result()
	if stderrors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, false, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	return out, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value map[string]interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
