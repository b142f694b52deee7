// Package lock serializes migration runs. Local guards a single process;
// lock/redis guards every process sharing a Redis instance.
package lock

import (
	"context"
	"sync"
	"time"
)

// Locker acquires and releases named, expiring locks.
type Locker interface {
	// Acquire tries to take key for ttl and reports whether it succeeded.
	// It does not block.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release frees key. Releasing a lock that is not held is not an error.
	Release(ctx context.Context, key string) error
}

// Local is an in-process Locker.
type Local struct {
	mu   sync.Mutex
	held map[string]time.Time // key -> expiry
	now  func() time.Time
}

// NewLocal creates an in-process Locker.
func NewLocal() *Local {
	return &Local{
		held: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Acquire takes key unless another holder has it and it has not expired.
func (l *Local) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return false, nil
	}
	l.held[key] = now.Add(ttl)
	return true, nil
}

// Release frees key.
func (l *Local) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
