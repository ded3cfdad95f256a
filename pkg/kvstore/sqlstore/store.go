// Package sqlstore implements kvstore.Store on the kv_entries table through
// GORM, for the sqlite and postgres drivers.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/stickerlab/stickerlab/pkg/db"
	"github.com/stickerlab/stickerlab/pkg/db/models"
	"github.com/stickerlab/stickerlab/pkg/kvstore"
)

var (
	_ kvstore.Store  = (*Store)(nil)
	_ kvstore.Lister = (*Store)(nil)
)

type Store struct {
	client *db.Client
	now    func() time.Time
}

func New(client *db.Client) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	return &Store{client: client, now: time.Now}, nil
}

func (s *Store) Get(ctx context.Context, key string) (kvstore.Entry, error) {
	var row models.KVEntry
	err := s.client.DB().WithContext(ctx).
		Where("entry_key = ?", key).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return kvstore.Entry{}, kvstore.ErrNotFound
	}
	if err != nil {
		return kvstore.Entry{}, fmt.Errorf("select %q: %w", key, err)
	}
	return toEntry(row), nil
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, expectedVersion int64, value string) (kvstore.Entry, error) {
	if err := kvstore.ValidateKey(key); err != nil {
		return kvstore.Entry{}, err
	}
	row := models.KVEntry{
		Key:       key,
		Value:     value,
		Version:   expectedVersion + 1,
		UpdatedAt: s.now().UTC(),
	}

	conn := s.client.DB().WithContext(ctx)
	if expectedVersion == 0 {
		err := conn.Create(&row).Error
		if db.IsUniqueViolation(err) {
			return kvstore.Entry{}, kvstore.ErrVersionConflict
		}
		if err != nil {
			return kvstore.Entry{}, fmt.Errorf("insert %q: %w", key, err)
		}
		return toEntry(row), nil
	}

	res := conn.Model(&models.KVEntry{}).
		Where("entry_key = ? AND version = ?", key, expectedVersion).
		Updates(map[string]any{
			"entry_value": row.Value,
			"version":     row.Version,
			"updated_at":  row.UpdatedAt,
		})
	if res.Error != nil {
		return kvstore.Entry{}, fmt.Errorf("update %q: %w", key, res.Error)
	}
	if res.RowsAffected == 0 {
		return kvstore.Entry{}, kvstore.ErrVersionConflict
	}
	return toEntry(row), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.client.DB().WithContext(ctx).
		Where("entry_key = ?", key).
		Delete(&models.KVEntry{}).Error
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (s *Store) DeleteVersion(ctx context.Context, key string, expectedVersion int64) error {
	res := s.client.DB().WithContext(ctx).
		Where("entry_key = ? AND version = ?", key, expectedVersion).
		Delete(&models.KVEntry{})
	if res.Error != nil {
		return fmt.Errorf("delete %q at version %d: %w", key, expectedVersion, res.Error)
	}
	if res.RowsAffected == 0 {
		return kvstore.ErrVersionConflict
	}
	return nil
}

func (s *Store) KeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.client.DB().WithContext(ctx).
		Model(&models.KVEntry{}).
		Where("entry_key LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%").
		Pluck("entry_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("list keys %q: %w", prefix, err)
	}
	return keys, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *Store) Close() error {
	return s.client.Close()
}

func toEntry(row models.KVEntry) kvstore.Entry {
	return kvstore.Entry{
		Key:       row.Key,
		Value:     row.Value,
		Version:   row.Version,
		UpdatedAt: row.UpdatedAt,
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
