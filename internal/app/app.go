// Package app builds the service graph shared by the API daemon and the CLI.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/stickerlab/stickerlab/internal/account"
	"github.com/stickerlab/stickerlab/internal/billing"
	"github.com/stickerlab/stickerlab/internal/creation"
	"github.com/stickerlab/stickerlab/internal/credits"
	"github.com/stickerlab/stickerlab/internal/gallery"
	"github.com/stickerlab/stickerlab/internal/imaging"
	"github.com/stickerlab/stickerlab/internal/removal"
	"github.com/stickerlab/stickerlab/internal/stickers"
	"github.com/stickerlab/stickerlab/pkg/config"
	"github.com/stickerlab/stickerlab/pkg/db"
	"github.com/stickerlab/stickerlab/pkg/kvstore"
	"github.com/stickerlab/stickerlab/pkg/kvstore/memory"
	"github.com/stickerlab/stickerlab/pkg/kvstore/redisstore"
	"github.com/stickerlab/stickerlab/pkg/kvstore/sqlstore"
	"github.com/stickerlab/stickerlab/pkg/logger"
	"github.com/stickerlab/stickerlab/pkg/metrics"
	"github.com/stickerlab/stickerlab/pkg/migrate"
	"github.com/stickerlab/stickerlab/pkg/redis"
	"github.com/stickerlab/stickerlab/pkg/storage/localfs"
)

// Leases is the expiring-key surface used for idempotency records, rate
// limit counters and the creation guard. Both the Redis client and
// kvstore.Leases provide it.
type Leases interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	DelIfValue(ctx context.Context, key, value string) (bool, error)
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	IdempotencyKey(scope, id string) string
	RateLimitKey(scope string) string
	LockKey(scope string) string
}

// LeaseSweepInterval is how often the API daemon clears expired lease records
// on stores without native expiry.
const LeaseSweepInterval = 10 * time.Minute

type leaseSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Options overrides parts of the graph, mostly for tests.
type Options struct {
	Store      kvstore.Store
	HTTPClient *http.Client
	Registry   *prometheus.Registry
}

type Container struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry *prometheus.Registry

	Store   kvstore.Store
	Leases  Leases
	Cache   *localfs.Dir
	Exports *localfs.Dir

	Credits  credits.Service
	Stickers stickers.Service
	Removal  removal.Service
	Creation creation.Service
	Account  account.Service
	Billing  billing.Service
	Gallery  gallery.Service
}

func New(ctx context.Context, cfg *config.Config, logg *logger.Logger, opts Options) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	c := &Container{Config: cfg, Logger: logg, Registry: opts.Registry}
	if c.Registry == nil {
		c.Registry = prometheus.NewRegistry()
		c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	var reg prometheus.Registerer = c.Registry
	if !cfg.Metrics.Enabled {
		reg = nil
	}

	if opts.Store != nil {
		c.Store = opts.Store
		c.Leases = kvstore.NewLeases(opts.Store, "lease")
	} else if err := c.openStore(ctx); err != nil {
		return nil, err
	}

	if err := c.build(opts, reg); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) openStore(ctx context.Context) error {
	cfg := c.Config
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		c.Store = memory.New()
	case config.StoreDriverSQLite, config.StoreDriverPostgres:
		client, err := db.New(ctx, cfg.DB, c.Logger)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		if err := migrate.MaybeAutoRun(ctx, cfg, c.Logger, client); err != nil {
			_ = client.Close()
			return err
		}
		store, err := sqlstore.New(client)
		if err != nil {
			_ = client.Close()
			return err
		}
		c.Store = store
	case config.StoreDriverRedis:
		client, err := redis.New(ctx, cfg.Redis, c.Logger)
		if err != nil {
			return fmt.Errorf("open redis: %w", err)
		}
		store, err := redisstore.New(client)
		if err != nil {
			_ = client.Close()
			return err
		}
		c.Store = store
		c.Leases = client
	default:
		return fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
	if c.Leases == nil {
		c.Leases = kvstore.NewLeases(c.Store, "lease")
	}
	return nil
}

func (c *Container) build(opts Options, reg prometheus.Registerer) error {
	cfg := c.Config
	ledgerMetrics := metrics.NewLedgerMetrics(reg)

	var err error
	if c.Cache, err = localfs.New(cfg.Media.CacheDir); err != nil {
		return fmt.Errorf("cache directory: %w", err)
	}
	if c.Exports, err = localfs.New(cfg.Media.ExportDir); err != nil {
		return fmt.Errorf("export directory: %w", err)
	}

	if c.Credits, err = credits.NewService(credits.ServiceParams{
		Store:   c.Store,
		Logger:  c.Logger,
		Metrics: ledgerMetrics,
	}); err != nil {
		return err
	}
	if c.Stickers, err = stickers.NewService(stickers.ServiceParams{
		Store:          c.Store,
		Logger:         c.Logger,
		Metrics:        ledgerMetrics,
		RecoverCorrupt: cfg.Stickers.RecoverCorrupt,
	}); err != nil {
		return err
	}

	images, err := imaging.NewProcessor(c.Cache, imaging.Options{
		StickerSize:    cfg.Media.StickerSize,
		WatermarkText:  cfg.Media.WatermarkText,
		Opacity:        cfg.Media.WatermarkOpacity,
		WidthRatio:     cfg.Media.WatermarkWidthRatio,
		MaxSourceBytes: cfg.Media.MaxSourceBytes(),
	}, c.Logger)
	if err != nil {
		return err
	}
	if c.Removal, err = removal.NewService(removal.ServiceParams{
		Config:         cfg.RemoveBG,
		HTTPClient:     opts.HTTPClient,
		Images:         images,
		Output:         c.Cache,
		MaxSourceBytes: cfg.Media.MaxSourceBytes(),
		Logger:         c.Logger,
		Metrics:        metrics.NewRemovalMetrics(reg),
	}); err != nil {
		return err
	}

	var guard creation.Guard = creation.NewLocalGuard()
	if cfg.Store.Driver == config.StoreDriverRedis {
		guard = creation.NewLeaseGuard(c.Leases, creation.DefaultLeaseTTL)
	}
	if c.Creation, err = creation.NewService(creation.ServiceParams{
		Credits:  c.Credits,
		Stickers: c.Stickers,
		Removal:  c.Removal,
		Guard:    guard,
		Logger:   c.Logger,
		Metrics:  metrics.NewWorkflowMetrics(reg),
	}); err != nil {
		return err
	}

	if c.Account, err = account.NewService(account.ServiceParams{
		Store:        c.Store,
		Credits:      c.Credits,
		InitialGrant: cfg.Credits.InitialGrant,
		Logger:       c.Logger,
	}); err != nil {
		return err
	}
	if c.Billing, err = billing.NewService(billing.ServiceParams{
		Store:   c.Store,
		Credits: c.Credits,
		Logger:  c.Logger,
	}); err != nil {
		return err
	}
	if c.Gallery, err = gallery.NewService(gallery.ServiceParams{
		Stickers: c.Stickers,
		Exports:  c.Exports,
		Logger:   c.Logger,
	}); err != nil {
		return err
	}
	return nil
}

// Ping reports whether the store and both directories are usable.
func (c *Container) Ping(ctx context.Context) error {
	var err error
	if c.Store != nil {
		err = multierr.Append(err, c.Store.Ping(ctx))
	}
	if c.Cache != nil {
		err = multierr.Append(err, c.Cache.Ping(ctx))
	}
	if c.Exports != nil {
		err = multierr.Append(err, c.Exports.Ping(ctx))
	}
	return err
}

// SweepLeases deletes expired idempotency, rate-limit and lock records. Redis
// expires its own keys, so it is a no-op there.
func (c *Container) SweepLeases(ctx context.Context) (int, error) {
	sweeper, ok := c.Leases.(leaseSweeper)
	if !ok {
		return 0, nil
	}
	return sweeper.Sweep(ctx)
}

// RunLeaseSweeper sweeps once, then every interval until ctx is done.
func (c *Container) RunLeaseSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = LeaseSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		removed, err := c.SweepLeases(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			c.Logger.Error(ctx, "lease sweep failed", err)
		case removed > 0:
			c.Logger.Debug(c.Logger.WithField(ctx, "removed", removed), "expired leases swept")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Container) Close() error {
	if c == nil || c.Store == nil {
		return nil
	}
	var err error
	err = multierr.Append(err, c.Store.Close())
	c.Store = nil
	return err
}
