package migrate

import (
	"context"
	"fmt"

	"github.com/stickerlab/stickerlab/pkg/config"
	"github.com/stickerlab/stickerlab/pkg/db"
	"github.com/stickerlab/stickerlab/pkg/logger"
)

// MaybeAutoRun applies pending migrations when STICKERLAB_DB_AUTO_MIGRATE is set.
func MaybeAutoRun(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.DB.AutoMigrate {
		return nil
	}

	provider, err := NewProvider(client, nil)
	if err != nil {
		return err
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dialect": client.Dialect()})
	logg.Debug(ctx, "running goose migrations (auto-run)")

	lines, err := Run(ctx, provider, "up")
	if err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}
	if len(lines) > 0 {
		logg.Info(logg.WithField(ctx, "applied", lines), "goose migrations applied")
	}
	return nil
}
