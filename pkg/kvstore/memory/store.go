// Package memory provides an in-memory kvstore.Store for tests and
// throwaway CLI sessions.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/stickerlab/stickerlab/pkg/kvstore"
)

// Compile-time interface check.
var (
	_ kvstore.Store  = (*Store)(nil)
	_ kvstore.Lister = (*Store)(nil)
)

// Store is a mutex-guarded map of entries.
type Store struct {
	mu      sync.RWMutex
	entries map[string]kvstore.Entry
	now     func() time.Time
}

func New() *Store {
	return &Store{
		entries: make(map[string]kvstore.Entry),
		now:     time.Now,
	}
}

func (s *Store) Get(_ context.Context, key string) (kvstore.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok {
		return kvstore.Entry{}, kvstore.ErrNotFound
	}
	return entry, nil
}

func (s *Store) CompareAndSwap(_ context.Context, key string, expectedVersion int64, value string) (kvstore.Entry, error) {
	if err := kvstore.ValidateKey(key); err != nil {
		return kvstore.Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.entries[key]
	if !ok && expectedVersion != 0 {
		return kvstore.Entry{}, kvstore.ErrVersionConflict
	}
	if ok && current.Version != expectedVersion {
		return kvstore.Entry{}, kvstore.ErrVersionConflict
	}

	entry := kvstore.Entry{
		Key:       key,
		Value:     value,
		Version:   expectedVersion + 1,
		UpdatedAt: s.now().UTC(),
	}
	s.entries[key] = entry
	return entry, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *Store) DeleteVersion(_ context.Context, key string, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.entries[key]
	if !ok || current.Version != expectedVersion {
		return kvstore.ErrVersionConflict
	}
	delete(s.entries, key)
	return nil
}

func (s *Store) KeysWithPrefix(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
