// Package billing simulates credit-package purchases and records claimed
// sticker packs.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stickerlab/stickerlab/internal/catalog"
	"github.com/stickerlab/stickerlab/internal/credits"
	pkgerrors "github.com/stickerlab/stickerlab/pkg/errors"
	"github.com/stickerlab/stickerlab/pkg/kvstore"
	"github.com/stickerlab/stickerlab/pkg/logger"
)

const (
	ClaimedPacksKey     = "claimedPacks"
	claimedPacksVersion = 1
)

type Receipt struct {
	Package      catalog.CreditPackage `json:"package"`
	CreditsAdded int                   `json:"creditsAdded"`
	Balance      int                   `json:"balance"`
	At           time.Time             `json:"at"`
}

type Claim struct {
	PackID    int       `json:"packId"`
	ClaimedAt time.Time `json:"claimedAt"`
	// AlreadyClaimed is set when the pack had been claimed before this call.
	AlreadyClaimed bool `json:"alreadyClaimed,omitempty"`
}

type claimedPacks struct {
	Version int     `json:"version"`
	Claims  []Claim `json:"claims"`
}

type Service interface {
	// PurchaseCredits grants the package's credits. Payment is simulated.
	PurchaseCredits(ctx context.Context, packageID int) (Receipt, error)
	// ClaimPack records a free pack. Paid packs return PAYMENT_REQUIRED.
	ClaimPack(ctx context.Context, packID int) (Claim, error)
	ClaimedPacks(ctx context.Context) ([]Claim, error)
}

type ServiceParams struct {
	Store   kvstore.Store
	Credits credits.Service
	Logger  *logger.Logger
	Now     func() time.Time
}

type service struct {
	store   kvstore.Store
	credits credits.Service
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("kv store required")
	}
	if params.Credits == nil {
		return nil, fmt.Errorf("credits service required")
	}
	svc := &service{
		store:   params.Store,
		credits: params.Credits,
		logg:    params.Logger,
		now:     params.Now,
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc, nil
}

func (s *service) PurchaseCredits(ctx context.Context, packageID int) (Receipt, error) {
	pkg, err := catalog.FindCreditPackage(packageID)
	if err != nil {
		return Receipt{}, err
	}

	balance, err := s.credits.ApplyDelta(ctx, pkg.CreditsGranted)
	if err != nil {
		return Receipt{}, err
	}

	receipt := Receipt{
		Package:      pkg,
		CreditsAdded: pkg.CreditsGranted,
		Balance:      balance,
		At:           s.now().UTC(),
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"package_id": pkg.ID,
		"credits":    pkg.CreditsGranted,
		"price":      pkg.DisplayPrice(),
		"balance":    balance,
	}), "credit package purchased")
	return receipt, nil
}

func (s *service) ClaimPack(ctx context.Context, packID int) (Claim, error) {
	pack, err := catalog.FindStickerPack(packID)
	if err != nil {
		return Claim{}, err
	}
	if !pack.IsFree {
		return Claim{}, pkgerrors.New(pkgerrors.CodePaymentRequired, fmt.Sprintf("%s costs %s", pack.Name, pack.DisplayPrice())).
			WithDetails(map[string]any{"packId": pack.ID, "priceMinorUnits": pack.PriceMinorUnits, "currency": pack.Currency})
	}

	var claim Claim
	_, err = kvstore.Update(ctx, s.store, ClaimedPacksKey, func(current string, exists bool) (string, error) {
		state := claimedPacks{Version: claimedPacksVersion}
		if exists {
			decoded, err := decodeClaims(current)
			if err != nil {
				return "", err
			}
			state = decoded
		}
		for _, c := range state.Claims {
			if c.PackID == pack.ID {
				claim = c
				claim.AlreadyClaimed = true
				return "", errAlreadyClaimed
			}
		}
		claim = Claim{PackID: pack.ID, ClaimedAt: s.now().UTC()}
		state.Version = claimedPacksVersion
		state.Claims = append(state.Claims, claim)
		encoded, err := json.Marshal(state)
		return string(encoded), err
	})
	if errors.Is(err, errAlreadyClaimed) {
		return claim, nil
	}
	if err != nil {
		return Claim{}, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "record claimed pack")
	}

	s.logg.Info(s.logg.WithField(ctx, "pack_id", pack.ID), "sticker pack claimed")
	return claim, nil
}

var errAlreadyClaimed = errors.New("pack already claimed")

func (s *service) ClaimedPacks(ctx context.Context) ([]Claim, error) {
	entry, err := s.store.Get(ctx, ClaimedPacksKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return []Claim{}, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "read claimed packs")
	}
	state, err := decodeClaims(entry.Value)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "read claimed packs")
	}
	if state.Claims == nil {
		return []Claim{}, nil
	}
	return state.Claims, nil
}

func decodeClaims(raw string) (claimedPacks, error) {
	var state claimedPacks
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return claimedPacks{}, fmt.Errorf("decode claimed packs: %w", err)
	}
	if state.Version > claimedPacksVersion {
		return claimedPacks{}, fmt.Errorf("claimed packs version %d is newer than supported %d", state.Version, claimedPacksVersion)
	}
	return state, nil
}
