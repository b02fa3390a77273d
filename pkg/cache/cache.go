// Package cache defines the shared key-value cache used for rate-limit
// counters, idempotency locks and ephemeral session state.
//
// Two implementations exist: an in-process memory cache for tests and
// single-node deployments, and a Redis cache for multi-node deployments
// where thumbnail locks must be visible across processes.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrLockNotAcquired is returned by Lock when wait is false and the lock
// is currently held elsewhere.
var ErrLockNotAcquired = errors.New("cache: lock not acquired")

// ErrClosed is returned after the cache has been closed.
var ErrClosed = errors.New("cache: closed")

// Unlock releases a held lock. Calling it more than once is a no-op.
type Unlock func(ctx context.Context) error

// RateLimitResult describes the outcome of a RateLimit call.
type RateLimitResult struct {
	// Allowed is false once the counter for the window exceeds the limit.
	Allowed bool

	// Remaining is the number of events left in the current window.
	Remaining int64

	// RetryAfter is how long until the window resets. Zero when allowed.
	RetryAfter time.Duration
}

// Cache is the shared key-value store.
//
// A zero TTL stores a value without expiry. Implementations must be safe
// for concurrent use.
type Cache interface {
	// Get returns the value for key. The second return is false on miss.
	Get(ctx context.Context, key string) (string, bool, error)

	// GetMany returns the values for keys in order; misses yield "".
	GetMany(ctx context.Context, keys ...string) ([]string, error)

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetIfNotExists stores value only when key is absent (SET NX).
	// Returns true when the value was stored.
	SetIfNotExists(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Increment atomically adds one to the integer at key, creating it at
	// one with the given TTL on first use. Returns the new value.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// Lock acquires a mutual-exclusion lock on key that auto-expires
	// after expire. When wait is true the call blocks (polling) until the
	// lock is acquired or ctx is done; otherwise ErrLockNotAcquired is
	// returned when the lock is held.
	Lock(ctx context.Context, key string, expire time.Duration, wait bool) (Unlock, error)

	// RateLimit counts an event against key and reports whether the
	// caller is within limit events per period. The counter key expires
	// after ttl (ttl >= period).
	RateLimit(ctx context.Context, key string, limit int64, period, ttl time.Duration) (RateLimitResult, error)

	// Close releases resources held by the cache.
	Close() error
}
