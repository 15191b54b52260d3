package audit

import (
	"context"
	"sync"
)

// InMemoryStore keeps audit entries in memory for tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]Entry
	all     []Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string][]Entry)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string][]Entry)
	s.all = nil
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entry.UserID
	if key == "" {
		key = entry.IPAddress
	}
	s.entries[key] = append(s.entries[key], entry)
	s.all = append(s.all, entry)
	return nil
}

func (s *InMemoryStore) ListBySubject(_ context.Context, subjectKey string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry{}, s.entries[subjectKey]...), nil
}

// All returns every entry in append order. Test helper.
func (s *InMemoryStore) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry{}, s.all...)
}
