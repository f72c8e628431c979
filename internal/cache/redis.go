package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache adapts a Redis connection to the Cache interface. Every error
// flips the connected flag; the next call retries the backend regardless, so
// a recovered Redis comes back without intervention.
type RedisCache struct {
	client    *redis.Client
	connected atomic.Bool
}

// NewRedis builds a RedisCache from a redis:// URL.
func NewRedis(redisURL string) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	c := &RedisCache{client: redis.NewClient(opt)}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.client.Ping(ctx).Err(); err != nil {
		// Degraded start: the gateway serves without the cache and the
		// adapter keeps probing on each call.
		slog.Warn("redis unreachable at startup, continuing without cache",
			slog.String("error", err.Error()))
		c.connected.Store(false)
		return c, nil
	}
	c.connected.Store(true)
	return c, nil
}

// Get returns the cached payload, or a miss on absence or error.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.fail("get", err)
			return nil, false
		}
		c.connected.Store(true)
		return nil, false
	}
	c.connected.Store(true)
	return val, true
}

// Set stores a payload, best-effort.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.fail("set", err)
		return
	}
	c.connected.Store(true)
}

// Flush removes every entry.
func (c *RedisCache) Flush(ctx context.Context) error {
	if err := c.client.FlushDB(ctx).Err(); err != nil {
		c.fail("flush", err)
		return err
	}
	c.connected.Store(true)
	return nil
}

// Connected reports the result of the last backend round-trip.
func (c *RedisCache) Connected() bool {
	return c.connected.Load()
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) fail(op string, err error) {
	c.connected.Store(false)
	slog.Warn("cache operation failed",
		slog.String("op", op),
		slog.String("error", err.Error()))
}
