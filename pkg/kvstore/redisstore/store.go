// Package redisstore implements kvstore.Store on Redis hashes. Each entry is
// a hash with value, version and updated_at fields; swaps run as a Lua
// script so the version check and the write are atomic.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/stickerlab/stickerlab/pkg/kvstore"
	"github.com/stickerlab/stickerlab/pkg/redis"
)

var _ kvstore.Store = (*Store)(nil)

// Backend is the subset of *redis.Client the store needs.
type Backend interface {
	GetEntry(ctx context.Context, key string) (redis.VersionedEntry, bool, error)
	CompareAndSwapEntry(ctx context.Context, key string, expected int64, value string, at time.Time) (bool, error)
	DeleteEntryVersion(ctx context.Context, key string, expected int64) (bool, error)
	EntryKey(name string) string
	Del(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}

type Store struct {
	backend Backend
	now     func() time.Time
}

func New(backend Backend) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("redis backend required")
	}
	return &Store{backend: backend, now: time.Now}, nil
}

func (s *Store) Get(ctx context.Context, key string) (kvstore.Entry, error) {
	entry, found, err := s.backend.GetEntry(ctx, s.backend.EntryKey(key))
	if err != nil {
		return kvstore.Entry{}, fmt.Errorf("hmget %q: %w", key, err)
	}
	if !found {
		return kvstore.Entry{}, kvstore.ErrNotFound
	}
	return kvstore.Entry{
		Key:       key,
		Value:     entry.Value,
		Version:   entry.Version,
		UpdatedAt: entry.UpdatedAt,
	}, nil
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, expectedVersion int64, value string) (kvstore.Entry, error) {
	if err := kvstore.ValidateKey(key); err != nil {
		return kvstore.Entry{}, err
	}
	at := s.now().UTC().Truncate(time.Millisecond)
	swapped, err := s.backend.CompareAndSwapEntry(ctx, s.backend.EntryKey(key), expectedVersion, value, at)
	if err != nil {
		return kvstore.Entry{}, fmt.Errorf("cas %q: %w", key, err)
	}
	if !swapped {
		return kvstore.Entry{}, kvstore.ErrVersionConflict
	}
	return kvstore.Entry{
		Key:       key,
		Value:     value,
		Version:   expectedVersion + 1,
		UpdatedAt: at,
	}, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.backend.Del(ctx, s.backend.EntryKey(key)); err != nil {
		return fmt.Errorf("del %q: %w", key, err)
	}
	return nil
}

func (s *Store) DeleteVersion(ctx context.Context, key string, expectedVersion int64) error {
	deleted, err := s.backend.DeleteEntryVersion(ctx, s.backend.EntryKey(key), expectedVersion)
	if err != nil {
		return fmt.Errorf("del %q at version %d: %w", key, expectedVersion, err)
	}
	if !deleted {
		return kvstore.ErrVersionConflict
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

func (s *Store) Close() error {
	return s.backend.Close()
}
