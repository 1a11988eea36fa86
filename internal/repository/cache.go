package repository

import (
	"context"
	"time"
)

// =============================================================================
// Cache Interface
// =============================================================================

// Cache defines the interface for caching operations.
// Implemented in memory for a single node and on Redis for several.
type Cache interface {
	// Get retrieves a value by key.
	// Returns ErrCacheMiss if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with an optional TTL.
	// If ttl is 0, the value doesn't expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX sets a value only if the key doesn't exist.
	// Returns true if the value was set, false if the key already exists.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes a value by key.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// DeleteMulti removes multiple values.
	DeleteMulti(ctx context.Context, keys ...string) error
}

// =============================================================================
// Distributed Lock Interface
// =============================================================================

// DistributedLock defines the interface for distributed locking.
// Used to coordinate circulation desks served by several server instances.
type DistributedLock interface {
	// Acquire attempts to acquire a lock.
	// Returns true if the lock was acquired, false if it's held by another process.
	// The lock will automatically expire after the specified TTL.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// AcquireWithRetry attempts to acquire a lock with retries.
	AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error)

	// Release releases a lock.
	// Returns true if the lock was released, false if it wasn't held.
	Release(ctx context.Context, key string) (bool, error)

	// Extend extends the TTL of a held lock.
	Extend(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsHeld checks if the lock is currently held.
	IsHeld(ctx context.Context, key string) (bool, error)
}

// =============================================================================
// Common Cache Keys
// =============================================================================

// CacheKeys provides cache key generation.
var CacheKeys = cacheKeys{}

type cacheKeys struct{}

// Dashboard returns the key of the cached dashboard counters.
func (cacheKeys) Dashboard() string {
	return "cache:report:dashboard"
}

// UserActivity returns the key of the cached borrower activity report.
func (cacheKeys) UserActivity() string {
	return "cache:report:user-activity"
}

// Reports returns every cached report key. Writers to loans, books or
// users drop them all.
func (k cacheKeys) Reports() []string {
	return []string{k.Dashboard(), k.UserActivity()}
}
