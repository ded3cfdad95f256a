package stickers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/stickerlab/stickerlab/pkg/errors"
	"github.com/stickerlab/stickerlab/pkg/kvstore"
	"github.com/stickerlab/stickerlab/pkg/logger"
	"github.com/stickerlab/stickerlab/pkg/metrics"
)

// maxIDAttempts bounds id regeneration when a generated id already exists.
const maxIDAttempts = 5

// Service owns the append-only sticker collection.
type Service interface {
	// ListAll returns stickers in creation order, re-read from the store.
	ListAll(ctx context.Context) ([]Sticker, error)
	Append(ctx context.Context, imageLocation string, hasWatermark bool) (Sticker, error)
	Find(ctx context.Context, id string) (Sticker, error)
}

type ServiceParams struct {
	Store   kvstore.Store
	Logger  *logger.Logger
	Metrics *metrics.LedgerMetrics
	// RecoverCorrupt makes an undecodable collection read as empty and be
	// backed up before the next append. When false both fail.
	RecoverCorrupt bool
	NewID          func() (string, error)
	Now            func() time.Time
}

type service struct {
	store          kvstore.Store
	logg           *logger.Logger
	metrics        *metrics.LedgerMetrics
	recoverCorrupt bool
	newID          func() (string, error)
	now            func() time.Time

	mu sync.Mutex
}

func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("kv store required")
	}
	svc := &service{
		store:          params.Store,
		logg:           params.Logger,
		metrics:        params.Metrics,
		recoverCorrupt: params.RecoverCorrupt,
		newID:          params.NewID,
		now:            params.Now,
	}
	if svc.newID == nil {
		svc.newID = NewID
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc, nil
}

func (s *service) ListAll(ctx context.Context) ([]Sticker, error) {
	entry, err := s.store.Get(ctx, CollectionKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		entry, err = s.store.Get(ctx, LegacyCollectionKey)
	}
	if errors.Is(err, kvstore.ErrNotFound) {
		return []Sticker{}, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "read sticker collection")
	}

	coll, err := decodeCollection(entry.Value)
	if errors.Is(err, ErrCorruptCollection) && s.recoverCorrupt {
		s.metrics.IncCorrupt("recovered")
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "sticker collection is corrupt, reading as empty")
		return []Sticker{}, nil
	}
	if err != nil {
		s.metrics.IncCorrupt("rejected")
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "decode sticker collection")
	}
	if coll.Stickers == nil {
		return []Sticker{}, nil
	}
	return coll.Stickers, nil
}

// needsBackup carries a corrupt blob out of the update callback so it can
// be copied aside before the collection is replaced.
type needsBackup struct {
	raw string
}

func (e *needsBackup) Error() string { return "sticker collection needs backup" }

func (s *service) Append(ctx context.Context, imageLocation string, hasWatermark bool) (Sticker, error) {
	if imageLocation == "" {
		return Sticker{}, pkgerrors.New(pkgerrors.CodeValidation, "image location is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		created  Sticker
		backedUp string
		haveBack bool
	)
	for {
		_, err := kvstore.Update(ctx, s.store, CollectionKey, func(current string, exists bool) (string, error) {
			coll := collection{Version: CollectionVersion}
			if !exists {
				legacy, found, err := s.readLegacy(ctx)
				if err != nil {
					return "", err
				}
				if found {
					current, exists = legacy, true
				}
			}
			if exists {
				decoded, err := decodeCollection(current)
				switch {
				case err == nil:
					coll = decoded
				case errors.Is(err, ErrCorruptCollection) && s.recoverCorrupt:
					if !haveBack || backedUp != current {
						return "", &needsBackup{raw: current}
					}
				default:
					return "", err
				}
			}

			sticker, err := s.build(coll.Stickers, imageLocation, hasWatermark)
			if err != nil {
				return "", err
			}
			created = sticker
			return encodeCollection(append(coll.Stickers, sticker))
		})

		var backup *needsBackup
		if errors.As(err, &backup) {
			if err := s.backupCorrupt(ctx, backup.raw); err != nil {
				return Sticker{}, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "back up corrupt sticker collection")
			}
			backedUp, haveBack = backup.raw, true
			continue
		}
		if err != nil {
			if errors.Is(err, ErrCorruptCollection) || errors.Is(err, ErrUnsupportedCollection) {
				s.metrics.IncCorrupt("rejected")
			}
			s.logg.Error(s.logg.WithSourceImage(ctx, imageLocation), "sticker not recorded", err)
			return Sticker{}, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "append sticker")
		}
		break
	}

	s.metrics.IncStickerRecorded()
	s.logg.Info(s.logg.WithStickerID(ctx, created.ID), "sticker recorded")
	return created, nil
}

// readLegacy returns the raw first-release collection, if one was stored.
func (s *service) readLegacy(ctx context.Context) (string, bool, error) {
	entry, err := s.store.Get(ctx, LegacyCollectionKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

func (s *service) Find(ctx context.Context, id string) (Sticker, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return Sticker{}, err
	}
	for _, sticker := range all {
		if sticker.ID == id {
			return sticker, nil
		}
	}
	return Sticker{}, pkgerrors.New(pkgerrors.CodeNotFound, "sticker not found").
		WithDetails(map[string]any{"id": id})
}

func (s *service) build(existing []Sticker, imageLocation string, hasWatermark bool) (Sticker, error) {
	taken := make(map[string]struct{}, len(existing))
	for _, st := range existing {
		taken[st.ID] = struct{}{}
	}
	for i := 0; i < maxIDAttempts; i++ {
		id, err := s.newID()
		if err != nil {
			return Sticker{}, err
		}
		if _, dup := taken[id]; dup {
			continue
		}
		return Sticker{
			ID:            id,
			ImageLocation: imageLocation,
			HasWatermark:  hasWatermark,
			CreatedAt:     s.now().UTC(),
		}, nil
	}
	return Sticker{}, fmt.Errorf("no unique sticker id after %d attempts", maxIDAttempts)
}

func (s *service) backupCorrupt(ctx context.Context, raw string) error {
	base := fmt.Sprintf("%s.corrupt.%d", CollectionKey, s.now().Unix())
	key := base
	for i := 1; ; i++ {
		_, err := s.store.CompareAndSwap(ctx, key, 0, raw)
		if err == nil {
			s.metrics.IncCorrupt("backed_up")
			s.logg.Warn(s.logg.WithField(ctx, "backup_key", key), "corrupt sticker collection backed up")
			return nil
		}
		if !errors.Is(err, kvstore.ErrVersionConflict) || i >= maxIDAttempts {
			return err
		}
		key = fmt.Sprintf("%s.%d", base, i)
	}
}
