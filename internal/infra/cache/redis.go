package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Redis is a Redis-backed cache with TTL, sharing state between
// instances. Values are stored as JSON under a namespaced key.
type Redis[T any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedis connects to the given Redis URL and verifies the connection.
func NewRedis[T any](redisURL, prefix string, ttl time.Duration, logger *zap.Logger) (*Redis[T], error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Redis[T]{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}, nil
}

func (c *Redis[T]) key(k string) string {
	return c.prefix + ":" + k
}

// Get retrieves a value. Returns false if not found, expired, or when
// Redis is unreachable (a cache miss, never a hard failure).
func (c *Redis[T]) Get(key string) (T, bool) {
	var zero T
	raw, err := c.client.Get(context.Background(), c.key(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("redis cache: get failed", zap.String("key", key), zap.Error(err))
		}
		return zero, false
	}
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		c.logger.Warn("redis cache: corrupt entry", zap.String("key", key), zap.Error(err))
		return zero, false
	}
	return value, true
}

// Set stores a value with the configured TTL.
func (c *Redis[T]) Set(key string, value T) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("redis cache: marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(context.Background(), c.key(key), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("redis cache: set failed", zap.String("key", key), zap.Error(err))
	}
}

// Delete removes a value.
func (c *Redis[T]) Delete(key string) {
	if err := c.client.Del(context.Background(), c.key(key)).Err(); err != nil {
		c.logger.Warn("redis cache: delete failed", zap.String("key", key), zap.Error(err))
	}
}

// Close releases the underlying connection pool.
func (c *Redis[T]) Close() error {
	return c.client.Close()
}
