package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stickerlab/stickerlab/pkg/config"
	"github.com/stickerlab/stickerlab/pkg/logger"
)

const (
	defaultNamespace  = "stickerlab"
	idempotencyPrefix = "idempotency"
	rateLimitPrefix   = "rate_limit"
	entryPrefix       = "kv"
	lockPrefix        = "lock"
)

// Nil is returned by Get when the key does not exist.
const Nil = redis.Nil

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Incr(context.Context, string) *redis.IntCmd
	Expire(context.Context, string, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
	HMGet(context.Context, string, ...string) *redis.SliceCmd
	Eval(context.Context, string, []string, ...any) *redis.Cmd
}

// Client wraps the redis connection helpers used by the store and the API.
type Client struct {
	store     cmdable
	raw       *redis.Client
	namespace string
}

// New bootstraps a Redis client with pooling/timeouts and verifies connectivity.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logg.Info(logg.WithField(ctx, "addr", opts.Addr), "redis connection established")
	return &Client{store: raw, raw: raw, namespace: cfg.Namespace}, nil
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL == "" && cfg.Address == "" {
		return nil, errors.New("redis url or address is required")
	}
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if opts.DB == 0 {
		opts.DB = cfg.DB
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// Get returns a string value stored at key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c.store == nil {
		return "", errors.New("redis client not initialized")
	}
	return c.store.Get(ctx, key).Result()
}

// SetNX sets a value only if the key does not exist yet.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c.store == nil {
		return false, errors.New("redis client not initialized")
	}
	return c.store.SetNX(ctx, key, value, ttl).Result()
}

// Incr increments the counter stored at key.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	if c.store == nil {
		return 0, errors.New("redis client not initialized")
	}
	return c.store.Incr(ctx, key).Result()
}

// IncrWithTTL increments and ensures the key has the supplied TTL on the first increment.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := c.Incr(ctx, key)
	if err != nil {
		return 0, err
	}
	if ttl > 0 && count == 1 {
		if _, expErr := c.store.Expire(ctx, key, ttl).Result(); expErr != nil {
			return count, expErr
		}
	}
	return count, nil
}

// casScript swaps the value of a versioned hash when its version matches
// ARGV[1]; a missing hash matches version 0.
const casScript = `
local current = redis.call('HGET', KEYS[1], 'version')
local expected = tonumber(ARGV[1])
if current == false then
  if expected ~= 0 then return 0 end
elseif tonumber(current) ~= expected then
  return 0
end
redis.call('HSET', KEYS[1], 'value', ARGV[2], 'version', expected + 1, 'updated_at', ARGV[3])
return 1
`

// deleteVersionScript removes a versioned hash only while its version equals
// ARGV[1].
const deleteVersionScript = `
local current = redis.call('HGET', KEYS[1], 'version')
if current == false or tonumber(current) ~= tonumber(ARGV[1]) then
  return 0
end
return redis.call('DEL', KEYS[1])
`

// releaseScript deletes a plain key only while it still holds ARGV[1], so a
// holder whose lease expired cannot remove its successor's lease.
const releaseScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

// VersionedEntry is the hash layout used for key-value entries.
type VersionedEntry struct {
	Value     string
	Version   int64
	UpdatedAt time.Time
}

// GetEntry reads a versioned hash. found is false when the hash is absent.
func (c *Client) GetEntry(ctx context.Context, key string) (VersionedEntry, bool, error) {
	if c.store == nil {
		return VersionedEntry{}, false, errors.New("redis client not initialized")
	}
	vals, err := c.store.HMGet(ctx, key, "value", "version", "updated_at").Result()
	if err != nil {
		return VersionedEntry{}, false, err
	}
	if len(vals) != 3 || vals[1] == nil {
		return VersionedEntry{}, false, nil
	}

	entry := VersionedEntry{Value: fmt.Sprint(vals[0])}
	if vals[0] == nil {
		entry.Value = ""
	}
	version, err := strconv.ParseInt(fmt.Sprint(vals[1]), 10, 64)
	if err != nil {
		return VersionedEntry{}, false, fmt.Errorf("parse version of %s: %w", key, err)
	}
	entry.Version = version
	if vals[2] != nil {
		if ms, err := strconv.ParseInt(fmt.Sprint(vals[2]), 10, 64); err == nil {
			entry.UpdatedAt = time.UnixMilli(ms).UTC()
		}
	}
	return entry, true, nil
}

// CompareAndSwapEntry writes value into the versioned hash at key when its
// version equals expected. It reports false on a version mismatch.
func (c *Client) CompareAndSwapEntry(ctx context.Context, key string, expected int64, value string, at time.Time) (bool, error) {
	if c.store == nil {
		return false, errors.New("redis client not initialized")
	}
	res, err := c.store.Eval(ctx, casScript, []string{key}, expected, value, at.UnixMilli()).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// DeleteEntryVersion removes the versioned hash at key when its version
// equals expected. It reports false when the hash is missing or newer.
func (c *Client) DeleteEntryVersion(ctx context.Context, key string, expected int64) (bool, error) {
	if c.store == nil {
		return false, errors.New("redis client not initialized")
	}
	res, err := c.store.Eval(ctx, deleteVersionScript, []string{key}, expected).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// DelIfValue deletes key only when it still holds value.
func (c *Client) DelIfValue(ctx context.Context, key, value string) (bool, error) {
	if c.store == nil {
		return false, errors.New("redis client not initialized")
	}
	res, err := c.store.Eval(ctx, releaseScript, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// IdempotencyKey returns a namespaced key for idempotency storage.
func (c *Client) IdempotencyKey(scope, id string) string {
	return c.buildKey(idempotencyPrefix, scope, id)
}

// RateLimitKey returns a namespaced key for rate limit counters.
func (c *Client) RateLimitKey(scope string) string {
	return c.buildKey(rateLimitPrefix, scope)
}

// EntryKey returns the namespaced hash key of a key-value entry.
func (c *Client) EntryKey(name string) string {
	return c.buildKey(entryPrefix, name)
}

// LockKey returns the namespaced key of a short-lived lock.
func (c *Client) LockKey(scope string) string {
	return c.buildKey(lockPrefix, scope)
}

// Del removes the provided keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.Del(ctx, keys...).Err()
}

// Ping verifies the connection.
func (c *Client) Ping(ctx context.Context) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.Ping(ctx).Err()
}

// Close shuts down the underlying client if available.
func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

func (c *Client) buildKey(parts ...string) string {
	ns := c.namespace
	if ns == "" {
		ns = defaultNamespace
	}
	clean := []string{ns}
	for _, part := range parts {
		if part == "" {
			continue
		}
		clean = append(clean, strings.TrimSpace(part))
	}
	return strings.Join(clean, ":")
}
