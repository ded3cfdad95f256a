package account

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stickerlab/stickerlab/internal/credits"
	pkgerrors "github.com/stickerlab/stickerlab/pkg/errors"
	"github.com/stickerlab/stickerlab/pkg/kvstore"
	"github.com/stickerlab/stickerlab/pkg/kvstore/memory"
)

func newAccount(t *testing.T, store kvstore.Store, grant int) (Service, credits.Service) {
	t.Helper()
	creditSvc, err := credits.NewService(credits.ServiceParams{Store: store})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Store:        store,
		Credits:      creditSvc,
		InitialGrant: grant,
		Now:          func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return svc, creditSvc
}

func TestLoginCreatesProfileAndGrantsOnce(t *testing.T) {
	ctx := context.Background()
	svc, creditSvc := newAccount(t, memory.New(), 3)

	profile, err := svc.Login(ctx, "080 1234 5678")
	require.NoError(t, err)
	assert.Equal(t, "08012345678", profile.Phone)
	assert.Equal(t, 3, profile.InitialCredits)
	assert.Equal(t, ProfileVersion, profile.Version)
	assert.NotEmpty(t, profile.ID)

	balance, err := creditSvc.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, balance)

	_, err = creditSvc.DebitOne(ctx)
	require.NoError(t, err)

	again, err := svc.Login(ctx, "08012345678")
	require.NoError(t, err)
	assert.Equal(t, profile.ID, again.ID)

	balance, err = creditSvc.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, balance)
}

func TestLoginValidatesPhone(t *testing.T) {
	svc, _ := newAccount(t, memory.New(), 3)
	for _, phone := range []string{"", "12345", "080123456789", "0801234567a"} {
		_, err := svc.Login(context.Background(), phone)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "phone %q", phone)
	}
	_, err := svc.Login(context.Background(), "0801234567")
	assert.NoError(t, err)
}

func TestLoginWithDifferentPhoneConflicts(t *testing.T) {
	svc, _ := newAccount(t, memory.New(), 3)
	ctx := context.Background()

	_, err := svc.Login(ctx, "08012345678")
	require.NoError(t, err)
	_, err = svc.Login(ctx, "09087654321")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestLoginKeepsExistingBalance(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	_, err := kvstore.Put(ctx, store, credits.BalanceKey, "7")
	require.NoError(t, err)

	svc, creditSvc := newAccount(t, store, 3)
	_, err = svc.Login(ctx, "08012345678")
	require.NoError(t, err)

	balance, err := creditSvc.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, balance)
}

func TestCurrent(t *testing.T) {
	store := memory.New()
	svc, _ := newAccount(t, store, 3)
	ctx := context.Background()

	_, err := svc.Current(ctx)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	created, err := svc.Login(ctx, "08012345678")
	require.NoError(t, err)
	current, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, created, current)

	_, err = kvstore.Put(ctx, store, ProfileKey, "{broken")
	require.NoError(t, err)
	_, err = svc.Current(ctx)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStorage))

	_, err = kvstore.Put(ctx, store, ProfileKey, `{"version":9}`)
	require.NoError(t, err)
	_, err = svc.Current(ctx)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStorage))
}

func TestNewServiceValidatesDeps(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.EqualError(t, err, "kv store required")
	_, err = NewService(ServiceParams{Store: memory.New()})
	assert.EqualError(t, err, "credits service required")
}
