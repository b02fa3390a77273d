// Package memory implements the in-process cache.
//
// Entries live in a single map guarded by a mutex; expiry is checked
// lazily on access and swept periodically. Suitable for tests and
// single-node deployments where locks do not need to cross processes.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/driftbox/driftbox/pkg/cache"
)

// lockPollInterval is how often waiting Lock calls re-try acquisition.
const lockPollInterval = 25 * time.Millisecond

// sweepInterval is how often the background sweeper drops expired entries.
const sweepInterval = time.Minute

type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryCache is the in-process cache.Cache implementation.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]entry
	closed  bool
	stopCh  chan struct{}
}

// New creates a memory cache and starts its expiry sweeper.
func New() *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]entry),
		stopCh:  make(chan struct{}),
	}
	go c.sweep()
	return c
}

func (c *MemoryCache) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for k, e := range c.entries {
				if e.expired(now) {
					delete(c.entries, k)
				}
			}
			c.mu.Unlock()
		}
	}
}

func expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

// Get returns the value for key.
func (c *MemoryCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", false, cache.ErrClosed
	}
	e, ok := c.entries[key]
	if !ok || e.expired(time.Now()) {
		return "", false, nil
	}
	return e.value, true, nil
}

// GetMany returns the values for keys in order; misses yield "".
func (c *MemoryCache) GetMany(ctx context.Context, keys ...string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, cache.ErrClosed
	}
	now := time.Now()
	values := make([]string, len(keys))
	for i, key := range keys {
		if e, ok := c.entries[key]; ok && !e.expired(now) {
			values[i] = e.value
		}
	}
	return values, nil
}

// Set stores value under key with the given TTL.
func (c *MemoryCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return cache.ErrClosed
	}
	c.entries[key] = entry{value: value, expiresAt: expiry(ttl)}
	return nil
}

// SetIfNotExists stores value only when key is absent.
func (c *MemoryCache) SetIfNotExists(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, cache.ErrClosed
	}
	if e, ok := c.entries[key]; ok && !e.expired(time.Now()) {
		return false, nil
	}
	c.entries[key] = entry{value: value, expiresAt: expiry(ttl)}
	return true, nil
}

// Increment adds one to the integer at key.
func (c *MemoryCache) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, cache.ErrClosed
	}
	now := time.Now()
	e, ok := c.entries[key]
	if !ok || e.expired(now) {
		c.entries[key] = entry{value: "1", expiresAt: expiry(ttl)}
		return 1, nil
	}
	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		n = 0
	}
	n++
	// Keep the original expiry so the window does not slide.
	c.entries[key] = entry{value: strconv.FormatInt(n, 10), expiresAt: e.expiresAt}
	return n, nil
}

// Delete removes the given keys.
func (c *MemoryCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return cache.ErrClosed
	}
	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}

// Lock acquires an expiring mutual-exclusion lock on key.
func (c *MemoryCache) Lock(ctx context.Context, key string, expire time.Duration, wait bool) (cache.Unlock, error) {
	lockKey := "lock:" + key
	for {
		acquired, err := c.SetIfNotExists(ctx, lockKey, "1", expire)
		if err != nil {
			return nil, err
		}
		if acquired {
			var once sync.Once
			unlock := func(ctx context.Context) error {
				var err error
				once.Do(func() { err = c.Delete(ctx, lockKey) })
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
func (c *MemoryCache) RateLimit(ctx context.Context, key string, limit int64, period, ttl time.Duration) (cache.RateLimitResult, error) {
	if ttl < period {
		ttl = period
	}
	counterKey := "ratelimit:" + key
	n, err := c.Increment(ctx, counterKey, ttl)
	if err != nil {
		return cache.RateLimitResult{}, err
	}
	if n > limit {
		c.mu.Lock()
		retry := time.Duration(0)
		if e, ok := c.entries[counterKey]; ok && !e.expiresAt.IsZero() {
			retry = time.Until(e.expiresAt)
		}
		c.mu.Unlock()
		return cache.RateLimitResult{Allowed: false, Remaining: 0, RetryAfter: retry}, nil
	}
	return cache.RateLimitResult{Allowed: true, Remaining: limit - n}, nil
}

// Close stops the sweeper and drops all entries.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.stopCh)
	c.entries = nil
	return nil
}
