package creation

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/stickerlab/stickerlab/pkg/errors"
)

// DefaultLeaseTTL bounds how long a crashed run can block its source image.
const DefaultLeaseTTL = 5 * time.Minute

// Guard rejects a second creation run for a source that is already in flight.
type Guard interface {
	// Acquire returns a CONFLICT error when key is held.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

func inFlight(key string) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "sticker creation already in progress for this image").
		WithDetails(map[string]any{"source": key})
}

func guardKey(sourcePath string) string {
	if abs, err := filepath.Abs(sourcePath); err == nil {
		return abs
	}
	return filepath.Clean(sourcePath)
}

// LocalGuard tracks in-flight sources in process memory.
type LocalGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{held: make(map[string]struct{})}
}

func (g *LocalGuard) Acquire(_ context.Context, key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.held[key]; ok {
		return nil, inFlight(key)
	}
	g.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, nil
}

// LockStore is the SET NX surface shared by the Redis client and the
// kv-backed leases.
type LockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	// DelIfValue deletes key only while it still holds value.
	DelIfValue(ctx context.Context, key, value string) (bool, error)
	LockKey(scope string) string
}

// LeaseGuard holds a lease in a shared store so separate processes using
// the same store also exclude each other.
type LeaseGuard struct {
	store LockStore
	ttl   time.Duration
}

func NewLeaseGuard(store LockStore, ttl time.Duration) *LeaseGuard {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &LeaseGuard{store: store, ttl: ttl}
}

func (g *LeaseGuard) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := g.store.LockKey("create:" + key)
	token := uuid.NewString()
	ok, err := g.store.SetNX(ctx, lockKey, token, g.ttl)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "acquire creation lease")
	}
	if !ok {
		return nil, inFlight(key)
	}

	releaseCtx := context.WithoutCancel(ctx)
	var once sync.Once
	return func() {
		once.Do(func() {
			// A run that outlived its lease must not release the next holder.
			_, _ = g.store.DelIfValue(releaseCtx, lockKey, token)
		})
	}, nil
}
