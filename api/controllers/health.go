package controllers

import (
	"context"
	"net/http"

	"github.com/stickerlab/stickerlab/api/responses"
	"github.com/stickerlab/stickerlab/pkg/config"
	pkgerrors "github.com/stickerlab/stickerlab/pkg/errors"
	"github.com/stickerlab/stickerlab/pkg/logger"
)

// Pinger is the readiness probe surface of the service container.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-StickerLab-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, deps Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-StickerLab-Env", cfg.App.Env)
		if deps != nil {
			if err := deps.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "not ready"))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
