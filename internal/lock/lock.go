// Package lock guards a portfolio against concurrent passes.
package lock

import (
	"context"
	"sync"

	"algotrading/internal/errors"
	"algotrading/pkg/exception"
)

// Release gives the lock back.
type Release func(ctx context.Context) error

// Locker grants exclusive ownership of a key.
type Locker interface {
	// Acquire fails with exception.ErrLockNotAcquired when the key is held.
	Acquire(ctx context.Context, key string) (Release, error)
}

// Memory is a process local Locker.
type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{held: make(map[string]struct{})}
}

func (m *Memory) Acquire(_ context.Context, key string) (Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[key]; ok {
		return nil, errors.Wrapf(exception.ErrLockNotAcquired, "key %s", key)
	}
	m.held[key] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, key)
			m.mu.Unlock()
		})
		return nil
	}, nil
}
