// Package redis implements the shared cache on top of Redis.
//
// Locks use SET NX with a random token and a compare-and-delete script so
// an expired lock is never released by a later holder. Rate limits use a
// fixed window (INCR + EXPIRE on first increment).
package redis

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/driftbox/driftbox/pkg/cache"
)

// lockPollInterval is how often waiting Lock calls re-try acquisition.
const lockPollInterval = 50 * time.Millisecond

// releaseScript deletes the lock key only when the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// incrScript increments a counter and sets its expiry on first use, so
// the window never slides.
var incrScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 and tonumber(ARGV[1]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// Config holds Redis connection settings.
type Config struct {
	// Addr is the host:port of the Redis server.
	Addr string `mapstructure:"addr" yaml:"addr"`

	// Password is optional.
	Password string `mapstructure:"password" yaml:"password"`

	// DB selects the Redis logical database.
	DB int `mapstructure:"db" yaml:"db"`
}

// RedisCache is the Redis-backed cache.Cache implementation.
type RedisCache struct {
	client *redis.Client
}

// New creates a Redis cache and verifies connectivity.
func New(ctx context.Context, cfg Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisCache{client: client}, nil
}

// NewFromClient wraps an existing client; used by tests.
func NewFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns the value for key.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// GetMany returns the values for keys in order; misses yield "".
func (c *RedisCache) GetMany(ctx context.Context, keys ...string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	raw, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	values := make([]string, len(keys))
	for i, v := range raw {
		if s, ok := v.(string); ok {
			values[i] = s
		}
	}
	return values, nil
}

// Set stores value under key with the given TTL.
func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// SetIfNotExists stores value only when key is absent.
func (c *RedisCache) SetIfNotExists(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, value, ttl).Result()
}

// Increment adds one to the integer at key, fixing the expiry window on
// first use.
func (c *RedisCache) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return incrScript.Run(ctx, c.client, []string{key}, ttl.Milliseconds()).Int64()
}

// Delete removes the given keys.
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Lock acquires an expiring mutual-exclusion lock on key.
func (c *RedisCache) Lock(ctx context.Context, key string, expire time.Duration, wait bool) (cache.Unlock, error) {
	lockKey := "lock:" + key
	token := uuid.NewString()
	for {
		acquired, err := c.client.SetNX(ctx, lockKey, token, expire).Result()
		if err != nil {
			return nil, err
		}
		if acquired {
			var once sync.Once
			unlock := func(ctx context.Context) error {
				var err error
				once.Do(func() {
					err = releaseScript.Run(ctx, c.client, []string{lockKey}, token).Err()
					if err == redis.Nil {
						err = nil
					}
				})
				return err
			}
			return unlock, nil
		}
		if !wait {
			return nil, cache.ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

// RateLimit counts an event against key within a fixed window.
func (c *RedisCache) RateLimit(ctx context.Context, key string, limit int64, period, ttl time.Duration) (cache.RateLimitResult, error) {
	if ttl < period {
		ttl = period
	}
	counterKey := "ratelimit:" + key
	n, err := c.Increment(ctx, counterKey, ttl)
	if err != nil {
		return cache.RateLimitResult{}, err
	}
	if n > limit {
		retry, err := c.client.PTTL(ctx, counterKey).Result()
		if err != nil || retry < 0 {
			retry = period
		}
		return cache.RateLimitResult{Allowed: false, Remaining: 0, RetryAfter: retry}, nil
	}
	return cache.RateLimitResult{Allowed: true, Remaining: limit - n}, nil
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
