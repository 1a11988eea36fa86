package lock

import (
	"context"
	"time"

	"github.com/prn-tf/alexander-library/internal/repository"
)

// RedisLocker adapts a repository.DistributedLock to Locker so several
// server instances serialize issues and returns on the same records.
type RedisLocker struct {
	dl repository.DistributedLock
}

// NewRedisLocker creates a new RedisLocker wrapping a DistributedLock implementation.
func NewRedisLocker(dl repository.DistributedLock) *RedisLocker {
	return &RedisLocker{dl: dl}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.dl.Acquire(ctx, key, ttl)
}

func (l *RedisLocker) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error) {
	return l.dl.AcquireWithRetry(ctx, key, ttl, maxRetries, retryDelay)
}

func (l *RedisLocker) Release(ctx context.Context, key string) (bool, error) {
	return l.dl.Release(ctx, key)
}

func (l *RedisLocker) Extend(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.dl.Extend(ctx, key, ttl)
}

func (l *RedisLocker) IsHeld(ctx context.Context, key string) (bool, error) {
	return l.dl.IsHeld(ctx, key)
}

var _ Locker = (*RedisLocker)(nil)
