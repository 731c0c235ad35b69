package cache

import (
	"context"
	"sync"
)

type inMemoryStore struct {
	entries map[string]Entry
	mutex   sync.RWMutex
}

var _ Store = (*inMemoryStore)(nil)

// NewInMemory returns a new in-process Store.
func NewInMemory() Store {
	return &inMemoryStore{entries: make(map[string]Entry)}
}

func (s *inMemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	entry, ok := s.entries[key]
	return entry, ok, nil
}

func (s *inMemoryStore) Set(_ context.Context, entry Entry) error {
	s.mutex.Lock()
	s.entries[entry.Key] = entry
	s.mutex.Unlock()
	return nil
}

func (s *inMemoryStore) Delete(_ context.Context, key string) (bool, error) {
	s.mutex.Lock()
	_, ok := s.entries[key]
	delete(s.entries, key)
	s.mutex.Unlock()
	return ok, nil
}

func (s *inMemoryStore) Clear(_ context.Context) error {
	s.mutex.Lock()
	clear(s.entries)
	s.mutex.Unlock()
	return nil
}

func (s *inMemoryStore) Keys(_ context.Context) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *inMemoryStore) Close() error {
	return s.Clear(context.Background())
}
