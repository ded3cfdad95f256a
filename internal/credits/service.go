package credits

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	pkgerrors "github.com/stickerlab/stickerlab/pkg/errors"
	"github.com/stickerlab/stickerlab/pkg/kvstore"
	"github.com/stickerlab/stickerlab/pkg/logger"
	"github.com/stickerlab/stickerlab/pkg/metrics"
)

// BalanceKey is the store key holding the balance as a decimal string.
const BalanceKey = "userCredits"

// Service owns the credit balance. Every mutation is a signed delta and the
// balance never goes below zero.
type Service interface {
	// Balance returns 0 when the balance was never initialized.
	Balance(ctx context.Context) (int, error)
	ApplyDelta(ctx context.Context, amount int) (int, error)
	DebitOne(ctx context.Context) (int, error)
	// Initialize sets the starting grant unless a balance already exists and
	// reports whether it did.
	Initialize(ctx context.Context, grant int) (int, bool, error)
}

type ServiceParams struct {
	Store   kvstore.Store
	Logger  *logger.Logger
	Metrics *metrics.LedgerMetrics
}

type service struct {
	store   kvstore.Store
	logg    *logger.Logger
	metrics *metrics.LedgerMetrics

	// mu serializes mutations within the process; the store's version check
	// covers other processes sharing the same store.
	mu sync.Mutex
}

func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("kv store required")
	}
	return &service{
		store:   params.Store,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

func (s *service) Balance(ctx context.Context) (int, error) {
	entry, err := s.store.Get(ctx, BalanceKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "read credit balance")
	}
	balance, err := parseBalance(entry.Value)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "read credit balance")
	}
	s.metrics.SetBalance(balance)
	return balance, nil
}

func (s *service) ApplyDelta(ctx context.Context, amount int) (int, error) {
	if amount == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "credit delta must be non-zero")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var next int
	_, err := kvstore.Update(ctx, s.store, BalanceKey, func(current string, exists bool) (string, error) {
		balance := 0
		if exists {
			parsed, err := parseBalance(current)
			if err != nil {
				return "", err
			}
			balance = parsed
		}
		next = balance + amount
		if next < 0 {
			return "", pkgerrors.New(pkgerrors.CodeInsufficientCredits, "not enough credits").
				WithDetails(map[string]any{"balance": balance, "requested": -amount})
		}
		return strconv.Itoa(next), nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return 0, err
		}
		s.logg.Error(s.logg.WithField(ctx, "amount", amount), "credit delta not persisted", err)
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "persist credit balance")
	}

	s.metrics.ObserveDelta(amount, next)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"amount": amount, "balance": next}), "credit delta applied")
	return next, nil
}

func (s *service) DebitOne(ctx context.Context) (int, error) {
	return s.ApplyDelta(ctx, -1)
}

func (s *service) Initialize(ctx context.Context, grant int) (int, bool, error) {
	if grant < 0 {
		return 0, false, pkgerrors.New(pkgerrors.CodeValidation, "starting grant must be non-negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.store.CompareAndSwap(ctx, BalanceKey, 0, strconv.Itoa(grant))
	if errors.Is(err, kvstore.ErrVersionConflict) {
		balance, err := s.Balance(ctx)
		return balance, false, err
	}
	if err != nil {
		return 0, false, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "initialize credit balance")
	}

	s.metrics.SetBalance(grant)
	s.logg.Info(s.logg.WithField(ctx, "grant", grant), "credit balance initialized")
	return grant, true, nil
}

func parseBalance(raw string) (int, error) {
	balance, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("stored balance %q is not an integer: %w", raw, err)
	}
	return balance, nil
}
