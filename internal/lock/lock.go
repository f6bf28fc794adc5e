// Package lock provides best-effort leases so only one replica runs a
// scheduled batch per window.
package lock

import (
	"context"
	"sync"
	"time"
)

// Interface acquires a lease on key for ttl. It returns false when someone
// else already holds it.
type Interface interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Memory is a process local lease table
type Memory struct {
	mu     sync.Mutex
	leases map[string]time.Time
	now    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{leases: make(map[string]time.Time), now: time.Now}
}

func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, exp := range m.leases {
		if !now.Before(exp) {
			delete(m.leases, k)
		}
	}
	if _, held := m.leases[key]; held {
		return false, nil
	}
	m.leases[key] = now.Add(ttl)
	return true, nil
}
