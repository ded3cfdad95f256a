// Package kvstore defines the device-local key-value store that backs the
// credit balance, the sticker collection and the account profile.
//
// Every entry carries a version. Writers read an entry, compute the new value
// and commit it with CompareAndSwap against the version they read, so two
// processes sharing one store cannot silently overwrite each other.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound        = errors.New("kvstore: key not found")
	ErrVersionConflict = errors.New("kvstore: version conflict")
)

// DefaultUpdateAttempts bounds the CAS retry loop in Update.
const DefaultUpdateAttempts = 16

// Entry is one stored value. Version starts at 1 and grows by one per write.
type Entry struct {
	Key       string
	Value     string
	Version   int64
	UpdatedAt time.Time
}

type Store interface {
	// Get returns ErrNotFound when key was never written or was deleted.
	Get(ctx context.Context, key string) (Entry, error)
	// CompareAndSwap writes value when the stored version equals
	// expectedVersion. An expectedVersion of 0 means the key must not exist.
	CompareAndSwap(ctx context.Context, key string, expectedVersion int64, value string) (Entry, error)
	Delete(ctx context.Context, key string) error
	// DeleteVersion removes key only while it is still at expectedVersion.
	// A missing key or a newer version returns ErrVersionConflict.
	DeleteVersion(ctx context.Context, key string, expectedVersion int64) error
	Ping(ctx context.Context) error
	Close() error
}

// Lister is implemented by stores that can enumerate their keys. Leases uses
// it to sweep expired records on backends without native expiry.
type Lister interface {
	KeysWithPrefix(ctx context.Context, prefix string) ([]string, error)
}

// UpdateFunc computes the next value from the current one. exists is false
// when the key is absent. Returning an error aborts the update without writing.
type UpdateFunc func(current string, exists bool) (string, error)

// Update runs a read, fn, compare-and-swap cycle and retries on version
// conflicts up to DefaultUpdateAttempts times.
func Update(ctx context.Context, store Store, key string, fn UpdateFunc) (Entry, error) {
	for attempt := 1; attempt <= DefaultUpdateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Entry{}, err
		}

		current, err := store.Get(ctx, key)
		exists := true
		switch {
		case errors.Is(err, ErrNotFound):
			exists = false
			current = Entry{Key: key}
		case err != nil:
			return Entry{}, err
		}

		next, err := fn(current.Value, exists)
		if err != nil {
			return Entry{}, err
		}

		entry, err := store.CompareAndSwap(ctx, key, current.Version, next)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		return entry, err
	}
	return Entry{}, fmt.Errorf("update %q gave up after %d attempts: %w", key, DefaultUpdateAttempts, ErrVersionConflict)
}

// Put writes value unconditionally.
func Put(ctx context.Context, store Store, key, value string) (Entry, error) {
	return Update(ctx, store, key, func(string, bool) (string, error) {
		return value, nil
	})
}

// ValidateKey rejects keys no backend can store.
func ValidateKey(key string) error {
	if key == "" {
		return errors.New("kvstore: key is required")
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("kvstore: key longer than %d bytes", MaxKeyLength)
	}
	return nil
}

// MaxKeyLength matches the width of the SQL key column.
const MaxKeyLength = 191
