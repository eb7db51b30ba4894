package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryCounterStore is an in-process CounterStore for tests and
// single-node development. Entries expire lazily on access.
type MemoryCounterStore struct {
	mu      sync.Mutex
	entries map[string]*memoryCounter
	now     func() time.Time
	// Err, when set, is returned from Increment to simulate an outage.
	Err error
}

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryCounterStore returns an empty in-memory counter store.
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		entries: make(map[string]*memoryCounter),
		now:     time.Now,
	}
}

// SetClock overrides the time source for tests.
func (m *MemoryCounterStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Increment atomically bumps the counter at key, creating it with the
// given ttl when absent or expired.
func (m *MemoryCounterStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return 0, m.Err
	}

	now := m.now()
	entry, ok := m.entries[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &memoryCounter{expiresAt: now.Add(ttl)}
		m.entries[key] = entry
	}
	entry.count++
	return entry.count, nil
}
