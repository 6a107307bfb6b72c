package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// DefaultMaxEntries bounds the memory backend when no limit is configured.
const DefaultMaxEntries = 1024

// memoryEntry is a stored value plus the bookkeeping needed for lazy expiry
// and insertion-order eviction.
type memoryEntry struct {
	key       string
	value     []byte
	createdAt time.Time
	ttl       time.Duration
	elem      *list.Element
}

// expired reports whether the entry is stale at time now. An entry is
// expired iff now - createdAt >= ttl.
func (e *memoryEntry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) >= e.ttl
}

// MemoryStore is a bounded in-memory TTL cache. Inserting past the entry
// bound evicts the least recently inserted entry; replacing an existing key
// counts as a fresh insertion and moves it to the back of the order.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*memoryEntry
	order      *list.List // front = oldest insertion
	maxEntries int

	now func() time.Time // overridable for tests
}

// NewMemoryStore creates a memory cache bounded to maxEntries entries.
// A non-positive maxEntries falls back to DefaultMaxEntries.
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryStore{
		entries:    make(map[string]*memoryEntry),
		order:      list.New(),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the value under key, or ErrCacheMiss if absent or expired.
// An expired entry is purged before returning the miss.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		CacheMisses.WithLabelValues("memory").Inc()
		return nil, ErrCacheMiss
	}

	if entry.expired(s.now()) {
		s.removeLocked(entry)
		CacheMisses.WithLabelValues("memory").Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("memory").Inc()
	return entry.value, nil
}

// Set inserts or replaces the entry under key with a fresh creation
// timestamp, evicting the oldest insertion first when the bound is hit.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[key]; ok {
		existing.value = value
		existing.createdAt = s.now()
		existing.ttl = ttl
		s.order.MoveToBack(existing.elem)
		return nil
	}

	if len(s.entries) >= s.maxEntries {
		if oldest := s.order.Front(); oldest != nil {
			s.removeLocked(oldest.Value.(*memoryEntry))
			CacheEvictions.Inc()
		}
	}

	entry := &memoryEntry{
		key:       key,
		value:     value,
		createdAt: s.now(),
		ttl:       ttl,
	}
	entry.elem = s.order.PushBack(entry)
	s.entries[key] = entry
	CacheEntries.WithLabelValues("memory").Set(float64(len(s.entries)))

	return nil
}

// Delete removes the entry unconditionally.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[key]; ok {
		s.removeLocked(entry)
	}
	return nil
}

// Len returns the current number of entries.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

// removeLocked drops an entry from both the map and the insertion order.
// Callers must hold s.mu.
func (s *MemoryStore) removeLocked(entry *memoryEntry) {
	delete(s.entries, entry.key)
	s.order.Remove(entry.elem)
	CacheEntries.WithLabelValues("memory").Set(float64(len(s.entries)))
}
