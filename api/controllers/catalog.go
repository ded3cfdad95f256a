package controllers

import (
	"net/http"

	"github.com/stickerlab/stickerlab/api/responses"
	"github.com/stickerlab/stickerlab/api/validators"
	"github.com/stickerlab/stickerlab/internal/billing"
	"github.com/stickerlab/stickerlab/internal/catalog"
	pkgerrors "github.com/stickerlab/stickerlab/pkg/errors"
	"github.com/stickerlab/stickerlab/pkg/logger"
)

type creditPackageView struct {
	catalog.CreditPackage
	DisplayPrice      string `json:"displayPrice"`
	DisplayPerSticker string `json:"displayPerSticker"`
}

type stickerPackView struct {
	catalog.StickerPack
	DisplayPrice string `json:"displayPrice"`
	Claimed      bool   `json:"claimed"`
}

func CatalogCreditPackages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		packages := catalog.CreditPackages()
		views := make([]creditPackageView, 0, len(packages))
		for _, p := range packages {
			views = append(views, creditPackageView{
				CreditPackage:     p,
				DisplayPrice:      p.DisplayPrice(),
				DisplayPerSticker: p.DisplayPerSticker(),
			})
		}
		responses.WriteSuccess(w, views)
	}
}

// CatalogStickerPacks lists the packs and marks the ones already claimed.
func CatalogStickerPacks(svc billing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		claimed := map[int]bool{}
		if svc != nil {
			claims, err := svc.ClaimedPacks(ctx)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			for _, c := range claims {
				claimed[c.PackID] = true
			}
		}

		packs := catalog.StickerPacks()
		views := make([]stickerPackView, 0, len(packs))
		for _, p := range packs {
			views = append(views, stickerPackView{
				StickerPack:  p,
				DisplayPrice: p.DisplayPrice(),
				Claimed:      claimed[p.ID],
			})
		}
		responses.WriteSuccess(w, views)
	}
}

func CatalogClaimPack(svc billing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		packID, err := validators.PathInt(r, "packId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		claim, err := svc.ClaimPack(ctx, packID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		status := http.StatusCreated
		if claim.AlreadyClaimed {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, claim)
	}
}
