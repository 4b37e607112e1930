package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxEntries bounds the in-memory store when no size is configured.
const DefaultMaxEntries = 100_000

type memEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// MemoryStore is the process-local Store. Entries expire by TTL and, once
// the store is full, the least recently used entry is evicted.
type MemoryStore struct {
	mu    sync.Mutex
	cache *lru.Cache[string, memEntry]
	now   func() time.Time
}

// NewMemoryStore creates a MemoryStore holding at most maxEntries keys.
func NewMemoryStore(maxEntries int) (*MemoryStore, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	cache, err := lru.New[string, memEntry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("repository: new lru: %w", err)
	}
	return &MemoryStore{cache: cache, now: time.Now}, nil
}

func (s *MemoryStore) liveLocked(key string) (memEntry, bool) {
	e, ok := s.cache.Get(key)
	if !ok {
		return memEntry{}, false
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		s.cache.Remove(key)
		return memEntry{}, false
	}
	return e, true
}

func (s *MemoryStore) entry(value string, ttl time.Duration) memEntry {
	e := memEntry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	return e
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveLocked(key)
	return e.value, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(key, s.entry(value, ttl))
	return nil
}

func (s *MemoryStore) SetIfAbsent(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.liveLocked(key); ok {
		return false, nil
	}
	s.cache.Add(key, s.entry(value, ttl))
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Remove(key)
	return nil
}

// CompareAndDelete removes key only while it holds value.
func (s *MemoryStore) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveLocked(key)
	if !ok || e.value != value {
		return false, nil
	}
	s.cache.Remove(key)
	return true, nil
}

// Len reports the number of entries currently held, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}
