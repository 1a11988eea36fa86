package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker implements Locker using in-memory locks.
// The locks are NOT shared across process restarts or multiple instances.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]time.Time // key -> expiry

	stop     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewMemoryLocker creates a new in-memory locker.
func NewMemoryLocker() *MemoryLocker {
	ml := &MemoryLocker{
		locks: make(map[string]time.Time),
		stop:  make(chan struct{}),
		now:   time.Now,
	}

	// Start a background goroutine to clean up expired locks.
	go ml.cleanupLoop(30 * time.Second)

	return ml
}

// Close stops the cleanup goroutine.
func (m *MemoryLocker) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *MemoryLocker) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *MemoryLocker) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, expiresAt := range m.locks {
		if !now.Before(expiresAt) {
			delete(m.locks, key)
		}
	}
}

// heldLocked reports whether key is held. m.mu must be held.
func (m *MemoryLocker) heldLocked(key string) bool {
	expiresAt, ok := m.locks[key]
	if !ok {
		return false
	}
	if !m.now().Before(expiresAt) {
		delete(m.locks, key)
		return false
	}
	return true
}

// Acquire attempts to acquire a lock.
func (m *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.heldLocked(key) {
		return false, nil
	}
	m.locks[key] = m.now().Add(ttl)
	return true, nil
}

// AcquireWithRetry attempts to acquire a lock with retries.
func (m *MemoryLocker) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error) {
	for i := 0; i <= maxRetries; i++ {
		acquired, err := m.Acquire(ctx, key, ttl)
		if err != nil {
			return false, err
		}
		if acquired {
			return true, nil
		}

		// Don't sleep on the last attempt.
		if i < maxRetries {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}
	return false, nil
}

// Release releases a lock.
func (m *MemoryLocker) Release(ctx context.Context, key string) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	held := m.heldLocked(key)
	delete(m.locks, key)
	return held, nil
}

// Extend extends the TTL of a held lock.
func (m *MemoryLocker) Extend(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.heldLocked(key) {
		return false, nil
	}
	m.locks[key] = m.now().Add(ttl)
	return true, nil
}

// IsHeld checks if a lock is currently held.
func (m *MemoryLocker) IsHeld(ctx context.Context, key string) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.heldLocked(key), nil
}

var _ Locker = (*MemoryLocker)(nil)
