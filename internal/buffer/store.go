package buffer

import (
	"sort"
	"sync"
)

// Store is the keyed collection of per-topic rings. Buffers are created
// lazily on first use and never speculatively.
//
// Thread Safety: all methods are safe for concurrent use. Callers that need
// "resolve budget, then append" to be atomic against concurrent rebuilds
// must serialise those cycles themselves; the engine does so with a
// dedicated rebuild lock.
type Store struct {
	mu    sync.RWMutex
	rings map[string]*Ring
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		rings: make(map[string]*Ring),
	}
}

// GetOrCreate returns the ring for topic, creating one with the given budget
// when the topic has no buffer yet. An existing ring keeps its own budget
// even if maxBytes differs; use Rebuild to change it.
func (s *Store) GetOrCreate(topic string, maxBytes int64) *Ring {
	s.mu.RLock()
	ring, ok := s.rings[topic]
	s.mu.RUnlock()
	if ok {
		return ring
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check under the write lock; another goroutine may have won.
	if ring, ok := s.rings[topic]; ok {
		return ring
	}
	ring = NewRing(maxBytes)
	s.rings[topic] = ring
	return ring
}

// Get returns the ring for topic, or false when no buffer exists.
func (s *Store) Get(topic string) (*Ring, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring, ok := s.rings[topic]
	return ring, ok
}

// Rebuild replaces the topic's ring with one sized to maxBytes, re-appending
// the existing messages oldest to newest so the normal eviction rule
// enforces the new bound. A shrink therefore keeps the most recent messages
// in their original relative order. Returns the replacement ring, or nil
// when the topic has no buffer.
func (s *Store) Rebuild(topic string, maxBytes int64) *Ring {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.rings[topic]
	if !ok {
		return nil
	}

	replacement := NewRing(maxBytes)
	for _, msg := range old.Snapshot() {
		replacement.Append(msg)
	}
	s.rings[topic] = replacement
	return replacement
}

// Topics returns the topics holding any buffered history, sorted
// lexicographically.
func (s *Store) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.rings))
	for topic := range s.rings {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

// ClearAll drops every buffer.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rings = make(map[string]*Ring)
}

// Stats is a point-in-time snapshot of buffer occupancy across all topics.
type Stats struct {
	Topics     int    `json:"topics"`
	Messages   int    `json:"messages"`
	TotalBytes int64  `json:"total_bytes"`
	Evicted    uint64 `json:"evicted"`
}

// GetStats aggregates occupancy over all buffers.
func (s *Store) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{Topics: len(s.rings)}
	for _, ring := range s.rings {
		stats.Messages += ring.Len()
		stats.TotalBytes += ring.Size()
		stats.Evicted += ring.Evicted()
	}
	return stats
}
