package lock

import (
	"context"
	"sync"
	"time"
)

// Memory is a Locker for a single process.
type Memory struct {
	mu   sync.Mutex
	held map[string]*memoryLease
}

func NewMemory() *Memory {
	return &Memory{held: map[string]*memoryLease{}}
}

func (m *Memory) TryAcquire(_ context.Context, key string) (Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[key]; ok {
		return nil, ErrLocked
	}

	lease := &memoryLease{owner: m, key: key}
	m.held[key] = lease

	return lease, nil
}

type memoryLease struct {
	owner *Memory
	key   string
	once  sync.Once
}

func (l *memoryLease) Release(context.Context) error {
	l.once.Do(func() {
		l.owner.mu.Lock()
		defer l.owner.mu.Unlock()

		if l.owner.held[l.key] == l {
			delete(l.owner.held, l.key)
		}
	})

	return nil
}

func (l *memoryLease) Extend(context.Context) error {
	return nil
}

func (l *memoryLease) TTL() time.Duration {
	return 0
}
