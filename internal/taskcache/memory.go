package taskcache

import (
	"context"
	"sync"
	"time"
)

// Compile-time check that MemoryCache implements Cache.
var _ Cache = (*MemoryCache)(nil)

type memoryEntry struct {
	raw       []byte
	expiresAt time.Time
}

// MemoryCache is an in-process Cache guarded by a RWMutex.
// Expired entries are dropped lazily on read.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns a copy of the cached payload.
func (m *MemoryCache) Get(_ context.Context, taskID string) ([]byte, error) {
	m.mu.RLock()
	entry, ok := m.entries[taskID]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrMiss
	}
	if m.now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, taskID)
		m.mu.Unlock()
		return nil, ErrMiss
	}

	out := make([]byte, len(entry.raw))
	copy(out, entry.raw)
	return out, nil
}

// Set stores a copy of raw.
func (m *MemoryCache) Set(_ context.Context, taskID string, raw []byte, ttl time.Duration) error {
	stored := make([]byte, len(raw))
	copy(stored, raw)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[taskID] = memoryEntry{raw: stored, expiresAt: m.now().Add(ttl)}
	return nil
}

// Len returns the number of entries, expired or not.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
