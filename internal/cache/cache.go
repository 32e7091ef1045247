package cache

import "sync"

// Store is an in-process read-through cache with tag-based invalidation.
// Entries have no expiry: they stay until a mutation path invalidates their
// tag, so every write must call Invalidate or readers keep seeing old data.
type Store struct {
	mu      sync.RWMutex
	entries map[string]any
	byTag   map[string]map[string]struct{}
}

func New() *Store {
	return &Store{
		entries: make(map[string]any),
		byTag:   make(map[string]map[string]struct{}),
	}
}

func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.entries[key]
	return v, ok
}

// Set stores value under key and associates it with every given tag.
func (s *Store) Set(key string, value any, tags ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = value
	for _, tag := range tags {
		keys, ok := s.byTag[tag]
		if !ok {
			keys = make(map[string]struct{})
			s.byTag[tag] = keys
		}
		keys[key] = struct{}{}
	}
}

// Invalidate drops every entry associated with tag and returns how many
// entries were removed.
func (s *Store) Invalidate(tag string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, ok := s.byTag[tag]
	if !ok {
		return 0
	}

	dropped := 0
	for key := range keys {
		if _, exists := s.entries[key]; exists {
			delete(s.entries, key)
			dropped++
		}
	}
	delete(s.byTag, tag)
	return dropped
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}
