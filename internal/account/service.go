// Package account keeps the locally stored phone profile and seeds the
// starting credit grant on first login.
package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stickerlab/stickerlab/internal/credits"
	pkgerrors "github.com/stickerlab/stickerlab/pkg/errors"
	"github.com/stickerlab/stickerlab/pkg/kvstore"
	"github.com/stickerlab/stickerlab/pkg/logger"
)

type Service interface {
	// Login creates the profile on first use and applies the starting grant
	// once. Logging in again with the same phone returns the stored profile.
	Login(ctx context.Context, phone string) (Profile, error)
	Current(ctx context.Context) (Profile, error)
}

type ServiceParams struct {
	Store        kvstore.Store
	Credits      credits.Service
	InitialGrant int
	Logger       *logger.Logger
	Now          func() time.Time
}

type service struct {
	store   kvstore.Store
	credits credits.Service
	grant   int
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
	if params.InitialGrant < 0 {
		return nil, fmt.Errorf("initial grant must be non-negative")
	}
	svc := &service{
		store:   params.Store,
		credits: params.Credits,
		grant:   params.InitialGrant,
		logg:    params.Logger,
		now:     params.Now,
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc, nil
}

func (s *service) Login(ctx context.Context, phone string) (Profile, error) {
	phone = NormalizePhone(phone)
	if err := validate.Struct(loginInput{Phone: phone}); err != nil {
		return Profile{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "phone number must be 10 to 11 digits").
			WithDetails(map[string]string{"phone": "must be 10 to 11 digits"})
	}

	profile := Profile{
		Version:        ProfileVersion,
		ID:             uuid.NewString(),
		Phone:          phone,
		InitialCredits: s.grant,
		CreatedAt:      s.now().UTC(),
	}
	payload, err := json.Marshal(profile)
	if err != nil {
		return Profile{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode profile")
	}

	created := true
	if _, err := s.store.CompareAndSwap(ctx, ProfileKey, 0, string(payload)); err != nil {
		if !errors.Is(err, kvstore.ErrVersionConflict) {
			return Profile{}, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "save profile")
		}
		existing, err := s.Current(ctx)
		if err != nil {
			return Profile{}, err
		}
		if existing.Phone != phone {
			return Profile{}, pkgerrors.New(pkgerrors.CodeConflict, "a different phone number is already logged in on this device")
		}
		profile, created = existing, false
	}

	// Initialize also runs on repeat logins so a crash between the two
	// writes still ends with a seeded balance.
	balance, granted, err := s.credits.Initialize(ctx, profile.InitialCredits)
	if err != nil {
		return Profile{}, err
	}

	s.logg.Info(s.logg.WithFields(s.logg.WithPhone(ctx, phone), map[string]any{
		"profile_id": profile.ID,
		"created":    created,
		"granted":    granted,
		"balance":    balance,
	}), "login")
	return profile, nil
}

func (s *service) Current(ctx context.Context) (Profile, error) {
	entry, err := s.store.Get(ctx, ProfileKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return Profile{}, pkgerrors.New(pkgerrors.CodeNotFound, "nobody is logged in")
	}
	if err != nil {
		return Profile{}, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "read profile")
	}
	profile, err := decodeProfile(entry.Value)
	if err != nil {
		return Profile{}, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "read profile")
	}
	return profile, nil
}
