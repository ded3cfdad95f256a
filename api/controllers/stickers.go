package controllers

import (
	"errors"
	"net/http"

	"github.com/stickerlab/stickerlab/api/responses"
	"github.com/stickerlab/stickerlab/api/validators"
	"github.com/stickerlab/stickerlab/internal/creation"
	"github.com/stickerlab/stickerlab/internal/gallery"
	"github.com/stickerlab/stickerlab/internal/stickers"
	pkgerrors "github.com/stickerlab/stickerlab/pkg/errors"
	"github.com/stickerlab/stickerlab/pkg/logger"
)

type createStickerRequest struct {
	SourcePath string `json:"sourcePath" validate:"required"`
}

type exportResponse struct {
	StickerID string `json:"stickerId"`
	Path      string `json:"path"`
}

// StickersCreate runs the full creation workflow for a local photo.
func StickersCreate(svc creation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "creation service unavailable"))
			return
		}

		var req createStickerRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sticker, err := svc.CreateSticker(ctx, req.SourcePath)
		if err != nil {
			var orphan *creation.OrphanedArtifactError
			if errors.As(err, &orphan) && logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"orphan_image":   orphan.ImagePath,
					"credit_debited": orphan.CreditDebited,
				})
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, sticker)
	}
}

func StickersList(svc stickers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sticker service unavailable"))
			return
		}

		list, err := svc.ListAll(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if list == nil {
			list = []stickers.Sticker{}
		}
		responses.WriteSuccess(w, list)
	}
}

func StickersGet(svc stickers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sticker service unavailable"))
			return
		}

		id, err := validators.PathString(r, "stickerId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		sticker, err := svc.Find(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, sticker)
	}
}

// StickersExport copies the sticker image into the export directory.
func StickersExport(svc gallery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gallery service unavailable"))
			return
		}

		id, err := validators.PathString(r, "stickerId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		path, err := svc.Save(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, exportResponse{StickerID: id, Path: path})
	}
}
