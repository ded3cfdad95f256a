package controllers

import (
	"net/http"

	"github.com/stickerlab/stickerlab/api/responses"
	"github.com/stickerlab/stickerlab/api/validators"
	"github.com/stickerlab/stickerlab/internal/billing"
	"github.com/stickerlab/stickerlab/internal/credits"
	pkgerrors "github.com/stickerlab/stickerlab/pkg/errors"
	"github.com/stickerlab/stickerlab/pkg/logger"
)

type purchaseRequest struct {
	PackageID int `json:"packageId" validate:"required,gt=0"`
}

type balanceResponse struct {
	Balance int `json:"balance"`
}

func CreditsBalance(ledger credits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if ledger == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credit service unavailable"))
			return
		}

		balance, err := ledger.Balance(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, balanceResponse{Balance: balance})
	}
}

// CreditsPurchase adds the credits of a catalog package to the balance.
func CreditsPurchase(svc billing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		var req purchaseRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		receipt, err := svc.PurchaseCredits(ctx, req.PackageID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, receipt)
	}
}
