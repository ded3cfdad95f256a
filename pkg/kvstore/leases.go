package kvstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Leases layers expiring set-if-absent records over a Store. It offers the
// same Get/SetNX/Del surface as the Redis client so the HTTP idempotency
// middleware and the creation guard work on every backend.
type Leases struct {
	store     Store
	namespace string
	now       func() time.Time
}

type leaseRecord struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

func NewLeases(store Store, namespace string) *Leases {
	if namespace == "" {
		namespace = "lease"
	}
	return &Leases{store: store, namespace: namespace, now: time.Now}
}

// Get returns the live value at key, or "" when absent or expired. An
// expired record is deleted on the way out.
func (l *Leases) Get(ctx context.Context, key string) (string, error) {
	entry, err := l.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	rec, err := decodeLease(entry.Value)
	if err != nil {
		return "", err
	}
	if l.expired(rec) {
		if err := l.deleteAt(ctx, key, entry.Version); err != nil {
			return "", err
		}
		return "", nil
	}
	return rec.Value, nil
}

// SetNX stores value when key is absent or its previous lease expired.
func (l *Leases) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	rec := leaseRecord{Value: fmt.Sprint(value)}
	if ttl > 0 {
		rec.ExpiresAt = l.now().UTC().Add(ttl)
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}

	var expected int64
	entry, err := l.store.Get(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return false, err
	default:
		current, decodeErr := decodeLease(entry.Value)
		if decodeErr == nil && !l.expired(current) {
			return false, nil
		}
		expected = entry.Version
	}

	if _, err := l.store.CompareAndSwap(ctx, key, expected, string(payload)); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// IncrWithTTL increments the counter at key. A new or expired counter starts
// at 1 and lives for ttl, matching a fixed rate-limit window.
func (l *Leases) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var count int64
	_, err := Update(ctx, l.store, key, func(current string, exists bool) (string, error) {
		rec := leaseRecord{}
		if exists {
			if decoded, err := decodeLease(current); err == nil && !l.expired(decoded) {
				rec = decoded
			}
		}
		if rec.Value == "" {
			rec = leaseRecord{Value: "0"}
			if ttl > 0 {
				rec.ExpiresAt = l.now().UTC().Add(ttl)
			}
		}
		n, err := strconv.ParseInt(rec.Value, 10, 64)
		if err != nil {
			n = 0
		}
		count = n + 1
		rec.Value = strconv.FormatInt(count, 10)
		payload, err := json.Marshal(rec)
		return string(payload), err
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// DelIfValue deletes key only while it still holds value. A holder whose
// lease expired and was taken over gets false and leaves the new lease alone.
func (l *Leases) DelIfValue(ctx context.Context, key, value string) (bool, error) {
	entry, err := l.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	rec, err := decodeLease(entry.Value)
	if err != nil || rec.Value != value {
		return false, nil
	}
	err = l.store.DeleteVersion(ctx, key, entry.Version)
	if errors.Is(err, ErrVersionConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Sweep deletes every expired record in the namespace and returns how many it
// removed. Stores that cannot list keys are left alone.
func (l *Leases) Sweep(ctx context.Context) (int, error) {
	lister, ok := l.store.(Lister)
	if !ok {
		return 0, nil
	}
	keys, err := lister.KeysWithPrefix(ctx, l.namespace+":")
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		entry, err := l.store.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return removed, err
		}
		rec, err := decodeLease(entry.Value)
		if err != nil || !l.expired(rec) {
			continue
		}
		err = l.store.DeleteVersion(ctx, key, entry.Version)
		switch {
		case errors.Is(err, ErrVersionConflict):
		case err != nil:
			return removed, err
		default:
			removed++
		}
	}
	return removed, nil
}

func (l *Leases) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if err := l.store.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// IdempotencyKey returns a namespaced key that always fits MaxKeyLength.
func (l *Leases) IdempotencyKey(scope, id string) string {
	return l.key("idempotency", scope, id)
}

// RateLimitKey returns the namespaced key of a rate-limit counter.
func (l *Leases) RateLimitKey(scope string) string {
	return l.key("ratelimit", scope)
}

// LockKey returns the namespaced key of a short-lived lock.
func (l *Leases) LockKey(scope string) string {
	return l.key("lock", scope)
}

func (l *Leases) key(kind string, parts ...string) string {
	raw := strings.Join(parts, ":")
	key := fmt.Sprintf("%s:%s:%s", l.namespace, kind, raw)
	if len(key) <= MaxKeyLength {
		return key
	}
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s:%s:%s", l.namespace, kind, hex.EncodeToString(sum[:]))
}

// deleteAt removes key unless it was rewritten since version was read.
func (l *Leases) deleteAt(ctx context.Context, key string, version int64) error {
	err := l.store.DeleteVersion(ctx, key, version)
	if err != nil && !errors.Is(err, ErrVersionConflict) {
		return err
	}
	return nil
}

func (l *Leases) expired(rec leaseRecord) bool {
	return !rec.ExpiresAt.IsZero() && !l.now().UTC().Before(rec.ExpiresAt)
}

func decodeLease(raw string) (leaseRecord, error) {
	var rec leaseRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return leaseRecord{}, fmt.Errorf("decode lease: %w", err)
	}
	return rec, nil
}
