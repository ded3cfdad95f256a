package controllers

import (
	"net/http"

	"github.com/stickerlab/stickerlab/api/responses"
	"github.com/stickerlab/stickerlab/api/validators"
	"github.com/stickerlab/stickerlab/internal/account"
	"github.com/stickerlab/stickerlab/internal/credits"
	pkgerrors "github.com/stickerlab/stickerlab/pkg/errors"
	"github.com/stickerlab/stickerlab/pkg/logger"
)

type loginRequest struct {
	Phone string `json:"phone" validate:"required"`
}

type sessionResponse struct {
	Profile account.Profile `json:"profile"`
	Balance int             `json:"balance"`
}

// SessionLogin registers the phone number on first use and grants the
// starting credits once.
func SessionLogin(svc account.Service, ledger credits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || ledger == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "account service unavailable"))
			return
		}

		var req loginRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		profile, err := svc.Login(ctx, req.Phone)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		balance, err := ledger.Balance(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, sessionResponse{Profile: profile, Balance: balance})
	}
}

// SessionCurrent returns the signed-in profile.
func SessionCurrent(svc account.Service, ledger credits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || ledger == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "account service unavailable"))
			return
		}

		profile, err := svc.Current(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		balance, err := ledger.Balance(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, sessionResponse{Profile: profile, Balance: balance})
	}
}
