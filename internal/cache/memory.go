package cache

import (
	"context"
	"sync"
	"time"
)

// Compile-time check: Memory implements Cache.
var _ Cache = (*Memory)(nil)

// Memory is the in-process cache driver. Entries are checked against their
// expiry on read and evicted lazily at that point; there is no sweeper
// goroutine. The revoked set is never compacted within a process lifetime.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	revoked map[string]struct{}
	now     func() time.Time
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// NewMemory creates an in-process cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		revoked: make(map[string]struct{}),
		now:     time.Now,
	}
}

// Get returns the value at key, or ErrKeyNotFound when absent or expired.
// An expired entry is deleted on the way out.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrKeyNotFound
	}
	if m.now().After(e.expires) {
		m.mu.Lock()
		// Re-check under the write lock: a writer may have refreshed the key.
		if cur, ok := m.entries[key]; ok && m.now().After(cur.expires) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, ErrKeyNotFound
	}
	return e.value, nil
}

// SetWithTTL stores value at key until now+ttl.
func (m *Memory) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[key] = memoryEntry{value: value, expires: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

// AddRevoked appends a token ID to the revoked set.
func (m *Memory) AddRevoked(_ context.Context, tokenID string) error {
	m.mu.Lock()
	m.revoked[tokenID] = struct{}{}
	m.mu.Unlock()
	return nil
}

// IsRevoked reports revoked-set membership.
func (m *Memory) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.RLock()
	_, ok := m.revoked[tokenID]
	m.mu.RUnlock()
	return ok, nil
}

// Close is a no-op for the memory driver.
func (m *Memory) Close() {}
