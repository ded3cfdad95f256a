package stickers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/stickerlab/stickerlab/pkg/errors"
	"github.com/stickerlab/stickerlab/pkg/kvstore"
	"github.com/stickerlab/stickerlab/pkg/kvstore/memory"
)

type fakeStore struct {
	*memory.Store
	casFn func(ctx context.Context, key string, expected int64, value string) (kvstore.Entry, error)
}

func (f *fakeStore) CompareAndSwap(ctx context.Context, key string, expected int64, value string) (kvstore.Entry, error) {
	if f.casFn != nil {
		return f.casFn(ctx, key, expected, value)
	}
	return f.Store.CompareAndSwap(ctx, key, expected, value)
}

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func newService(t *testing.T, store kvstore.Store, recoverCorrupt bool) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Store:          store,
		RecoverCorrupt: recoverCorrupt,
		Now:            func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return svc
}

func put(t *testing.T, store kvstore.Store, key, value string) {
	t.Helper()
	_, err := kvstore.Put(context.Background(), store, key, value)
	require.NoError(t, err)
}

func TestListAllEmpty(t *testing.T) {
	svc := newService(t, memory.New(), true)
	all, err := svc.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.NotNil(t, all)
}

func TestAppendThenList(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newService(t, store, true)

	first, err := svc.Append(ctx, "/cache/sticker_1_wm.png", true)
	require.NoError(t, err)
	second, err := svc.Append(ctx, "/cache/sticker_2_wm.png", false)
	require.NoError(t, err)

	assert.True(t, IsTypeID(first.ID), first.ID)
	assert.True(t, strings.HasPrefix(first.ID, "stk_"))
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, fixedNow, first.CreatedAt)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first, all[0])
	assert.Equal(t, second, all[1])

	entry, err := store.Get(ctx, CollectionKey)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(entry.Value, `{"version":1,"stickers":[`), entry.Value)
}

func TestAppendRequiresImage(t *testing.T) {
	svc := newService(t, memory.New(), true)
	_, err := svc.Append(context.Background(), "", true)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestAppendRegeneratesCollidingID(t *testing.T) {
	ctx := context.Background()
	ids := []string{"stk_a", "stk_a", "stk_b"}
	svc, err := NewService(ServiceParams{
		Store: memory.New(),
		NewID: func() (string, error) {
			id := ids[0]
			ids = ids[1:]
			return id, nil
		},
	})
	require.NoError(t, err)

	first, err := svc.Append(ctx, "/a.png", true)
	require.NoError(t, err)
	second, err := svc.Append(ctx, "/b.png", true)
	require.NoError(t, err)

	assert.Equal(t, "stk_a", first.ID)
	assert.Equal(t, "stk_b", second.ID)
}

func TestAppendWriteFailureLeavesCollection(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{Store: memory.New()}
	svc := newService(t, store, true)

	_, err := svc.Append(ctx, "/a.png", true)
	require.NoError(t, err)

	store.casFn = func(context.Context, string, int64, string) (kvstore.Entry, error) {
		return kvstore.Entry{}, errors.New("write refused")
	}
	_, err = svc.Append(ctx, "/b.png", true)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStorage))

	store.casFn = nil
	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFind(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, memory.New(), true)

	created, err := svc.Append(ctx, "/a.png", true)
	require.NoError(t, err)

	got, err := svc.Find(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = svc.Find(ctx, "stk_missing")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

// firstReleasePayload is a collection exactly as the first app release wrote it.
const firstReleasePayload = `[{"id":"1767225600000","uri":"file:///data/user/0/com.stickerlab/cache/sticker_1767225600000.png","hasWatermark":true,"createdAt":"2026-01-01T00:00:00.000Z"}]`

func TestLegacyArrayIsReadAndUpgraded(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	put(t, store, CollectionKey, firstReleasePayload)
	svc := newService(t, store, true)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "1767225600000", all[0].ID)
	assert.Equal(t, "file:///data/user/0/com.stickerlab/cache/sticker_1767225600000.png", all[0].ImageLocation)
	assert.True(t, all[0].HasWatermark)
	assert.True(t, all[0].CreatedAt.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, IsTypeID(all[0].ID))

	_, err = svc.Append(ctx, "/b.png", true)
	require.NoError(t, err)

	entry, err := store.Get(ctx, CollectionKey)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(entry.Value, `{"version":1`))

	all, err = svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "1767225600000", all[0].ID)
	assert.Equal(t, "file:///data/user/0/com.stickerlab/cache/sticker_1767225600000.png", all[0].ImageLocation)
}

func TestFirstReleaseKeyIsReadAndCarriedForward(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	put(t, store, LegacyCollectionKey, firstReleasePayload)
	svc := newService(t, store, false)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "file:///data/user/0/com.stickerlab/cache/sticker_1767225600000.png", all[0].ImageLocation)

	got, err := svc.Find(ctx, "1767225600000")
	require.NoError(t, err)
	assert.Equal(t, all[0], got)

	created, err := svc.Append(ctx, "/c.png", true)
	require.NoError(t, err)

	entry, err := store.Get(ctx, CollectionKey)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(entry.Value, `{"version":1`))

	all, err = svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "1767225600000", all[0].ID)
	assert.Equal(t, created.ID, all[1].ID)

	legacy, err := store.Get(ctx, LegacyCollectionKey)
	require.NoError(t, err)
	assert.Equal(t, firstReleasePayload, legacy.Value)
}

func TestCurrentCollectionWinsOverFirstReleaseKey(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	put(t, store, LegacyCollectionKey, firstReleasePayload)
	put(t, store, CollectionKey, `{"version":1,"stickers":[]}`)
	svc := newService(t, store, false)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCorruptCollectionRecovered(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	put(t, store, CollectionKey, `{"version":1,"stickers":[{"id":`)
	svc := newService(t, store, true)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	created, err := svc.Append(ctx, "/a.png", true)
	require.NoError(t, err)

	backupKey := fmt.Sprintf("%s.corrupt.%d", CollectionKey, fixedNow.Unix())
	backup, err := store.Get(ctx, backupKey)
	require.NoError(t, err)
	assert.Equal(t, `{"version":1,"stickers":[{"id":`, backup.Value)

	all, err = svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, created.ID, all[0].ID)
}

func TestCorruptCollectionStrictMode(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	put(t, store, CollectionKey, `not json`)
	svc := newService(t, store, false)

	_, err := svc.ListAll(ctx)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStorage))
	assert.ErrorIs(t, err, ErrCorruptCollection)

	_, err = svc.Append(ctx, "/a.png", true)
	assert.ErrorIs(t, err, ErrCorruptCollection)

	entry, err := store.Get(ctx, CollectionKey)
	require.NoError(t, err)
	assert.Equal(t, "not json", entry.Value)
}

func TestNewerCollectionVersionIsNeverOverwritten(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	put(t, store, CollectionKey, `{"version":2,"stickers":[]}`)
	svc := newService(t, store, true)

	_, err := svc.ListAll(ctx)
	assert.ErrorIs(t, err, ErrUnsupportedCollection)
	_, err = svc.Append(ctx, "/a.png", true)
	assert.ErrorIs(t, err, ErrUnsupportedCollection)
}

func TestTwoLedgersSharingStoreKeepBothAppends(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	first := newService(t, store, true)
	second := newService(t, store, true)

	done := make(chan error, 2)
	for _, svc := range []Service{first, second} {
		go func(svc Service) {
			for i := 0; i < 5; i++ {
				if _, err := svc.Append(ctx, fmt.Sprintf("/%d.png", i), true); err != nil {
					done <- err
					return
				}
			}
			done <- nil
		}(svc)
	}
	require.NoError(t, <-done)
	require.NoError(t, <-done)

	all, err := first.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 10)
}
