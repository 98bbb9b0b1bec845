package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/temperature-predictor/internal/models"
)

// Entry is one cached observation together with the time it was produced.
type Entry struct {
	Observation models.Observation `json:"observation"`
	FetchedAt   time.Time          `json:"fetchedAt"`
}

// Store is the backing storage for ResultCache. Get returns (entry, true, nil) when an
// entry exists regardless of its age; freshness is decided by ResultCache. ttl is a
// housekeeping hint for stores that expire entries server-side.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// InMemoryStore implements Store with a map. Entries are never evicted; a stale entry
// stays until it is overwritten or deleted. Safe for concurrent use.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		data: make(map[string]Entry),
	}
}

// Get returns the stored entry for key.
func (s *InMemoryStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.data[key]
	return entry, ok, nil
}

// Set stores entry under key, replacing any previous entry. ttl is ignored.
func (s *InMemoryStore) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = entry
	return nil
}

func (s *InMemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Len reports the number of stored entries.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
