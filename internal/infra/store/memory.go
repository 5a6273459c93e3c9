package store

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// memoryStore keeps entries in a mutex guarded map. Expired entries are
// evicted lazily on access.
type memoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		items: make(map[string]memoryItem),
	}
}

func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.liveLocked(key)
	if !ok {
		return nil, ErrKeyNotFound
	}
	return item.value, nil
}

func (s *memoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := memoryItem{value: value}
	if ttl > 0 {
		item.expiresAt = time.Now().Add(ttl)
	}
	s.items[key] = item
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}

func (s *memoryStore) Take(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.liveLocked(key)
	if !ok {
		return nil, ErrKeyNotFound
	}
	delete(s.items, key)
	return item.value, nil
}

func (s *memoryStore) Close() error {
	return nil
}

// liveLocked returns the entry for key if present and unexpired, deleting it
// when expired. Callers must hold mu.
func (s *memoryStore) liveLocked(key string) (memoryItem, bool) {
	item, ok := s.items[key]
	if !ok {
		return memoryItem{}, false
	}
	if !item.expiresAt.IsZero() && time.Now().After(item.expiresAt) {
		delete(s.items, key)
		return memoryItem{}, false
	}
	return item, true
}
