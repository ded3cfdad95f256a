// Package kvstoretest holds the behaviour every kvstore.Store backend must
// share. Backend packages call Run from their own tests.
package kvstoretest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stickerlab/stickerlab/pkg/kvstore"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) kvstore.Store

// Run exercises the Store contract against the backend built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(context.Background(), "userCredits")
		require.ErrorIs(t, err, kvstore.ErrNotFound)
	})

	t.Run("CreateThenRead", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		entry, err := store.CompareAndSwap(ctx, "userCredits", 0, "3")
		require.NoError(t, err)
		assert.Equal(t, int64(1), entry.Version)
		assert.Equal(t, "3", entry.Value)

		got, err := store.Get(ctx, "userCredits")
		require.NoError(t, err)
		assert.Equal(t, "3", got.Value)
		assert.Equal(t, int64(1), got.Version)
	})

	t.Run("CreateTwiceConflicts", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		_, err := store.CompareAndSwap(ctx, "user", 0, `{"phone":"08012345678"}`)
		require.NoError(t, err)
		_, err = store.CompareAndSwap(ctx, "user", 0, `{"phone":"08099999999"}`)
		require.ErrorIs(t, err, kvstore.ErrVersionConflict)

		got, err := store.Get(ctx, "user")
		require.NoError(t, err)
		assert.Equal(t, `{"phone":"08012345678"}`, got.Value)
	})

	t.Run("StaleVersionConflicts", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		first, err := store.CompareAndSwap(ctx, "userCredits", 0, "3")
		require.NoError(t, err)
		second, err := store.CompareAndSwap(ctx, "userCredits", first.Version, "2")
		require.NoError(t, err)
		assert.Equal(t, int64(2), second.Version)

		_, err = store.CompareAndSwap(ctx, "userCredits", first.Version, "13")
		require.ErrorIs(t, err, kvstore.ErrVersionConflict)

		got, err := store.Get(ctx, "userCredits")
		require.NoError(t, err)
		assert.Equal(t, "2", got.Value)
	})

	t.Run("SwapOnMissingKeyConflicts", func(t *testing.T) {
		store := newStore(t)
		_, err := store.CompareAndSwap(context.Background(), "stickers", 4, "[]")
		require.ErrorIs(t, err, kvstore.ErrVersionConflict)
	})

	t.Run("DeleteRemovesEntry", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		_, err := store.CompareAndSwap(ctx, "claimedPacks", 0, "[]")
		require.NoError(t, err)
		require.NoError(t, store.Delete(ctx, "claimedPacks"))
		_, err = store.Get(ctx, "claimedPacks")
		require.ErrorIs(t, err, kvstore.ErrNotFound)
		require.NoError(t, store.Delete(ctx, "claimedPacks"))
	})

	t.Run("DeleteVersionOnlyRemovesMatchingVersion", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		require.ErrorIs(t, store.DeleteVersion(ctx, "lease:lock:a", 1), kvstore.ErrVersionConflict)

		first, err := store.CompareAndSwap(ctx, "lease:lock:a", 0, "first")
		require.NoError(t, err)
		_, err = store.CompareAndSwap(ctx, "lease:lock:a", first.Version, "second")
		require.NoError(t, err)

		require.ErrorIs(t, store.DeleteVersion(ctx, "lease:lock:a", first.Version), kvstore.ErrVersionConflict)
		got, err := store.Get(ctx, "lease:lock:a")
		require.NoError(t, err)
		assert.Equal(t, "second", got.Value)

		require.NoError(t, store.DeleteVersion(ctx, "lease:lock:a", got.Version))
		_, err = store.Get(ctx, "lease:lock:a")
		require.ErrorIs(t, err, kvstore.ErrNotFound)
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		_, err := kvstore.Put(ctx, store, "user", "a")
		require.NoError(t, err)
		entry, err := kvstore.Put(ctx, store, "user", "b")
		require.NoError(t, err)
		assert.Equal(t, int64(2), entry.Version)
		assert.Equal(t, "b", entry.Value)
	})

	t.Run("ConcurrentUpdatesAreNotLost", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		_, err := store.CompareAndSwap(ctx, "counter", 0, "0")
		require.NoError(t, err)

		const writers = 4
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := kvstore.Update(ctx, store, "counter", func(current string, _ bool) (string, error) {
					var n int
					if _, err := fmt.Sscan(current, &n); err != nil {
						return "", err
					}
					return fmt.Sprint(n + 1), nil
				})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := store.Get(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(writers), got.Value)
		assert.Equal(t, int64(writers+1), got.Version)
	})

	t.Run("UpdateAbortsOnCallbackError", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		_, err := store.CompareAndSwap(ctx, "userCredits", 0, "0")
		require.NoError(t, err)

		boom := errors.New("would go negative")
		_, err = kvstore.Update(ctx, store, "userCredits", func(string, bool) (string, error) {
			return "", boom
		})
		require.ErrorIs(t, err, boom)

		got, err := store.Get(ctx, "userCredits")
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Version)
	})

	t.Run("Ping", func(t *testing.T) {
		require.NoError(t, newStore(t).Ping(context.Background()))
	})

	t.Run("KeysWithPrefix", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		lister, ok := store.(kvstore.Lister)
		if !ok {
			t.Skip("backend does not list keys")
		}

		for _, key := range []string{"lease:lock:a", "lease:ratelimit:b", "userCredits", "lease_x"} {
			_, err := store.CompareAndSwap(ctx, key, 0, "v")
			require.NoError(t, err)
		}
		keys, err := lister.KeysWithPrefix(ctx, "lease:")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"lease:lock:a", "lease:ratelimit:b"}, keys)
	})
}
