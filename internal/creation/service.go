// Package creation runs the sticker creation workflow: balance check,
// background removal and image processing, debit, record.
package creation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stickerlab/stickerlab/internal/credits"
	"github.com/stickerlab/stickerlab/internal/removal"
	"github.com/stickerlab/stickerlab/internal/stickers"
	pkgerrors "github.com/stickerlab/stickerlab/pkg/errors"
	"github.com/stickerlab/stickerlab/pkg/logger"
	"github.com/stickerlab/stickerlab/pkg/metrics"
)

// refundTimeout bounds the compensating credit refund.
const refundTimeout = 10 * time.Second

// OrphanedArtifactError reports a produced image that has no sticker record.
// CreditDebited is true when the credit for it stayed spent.
type OrphanedArtifactError struct {
	ImagePath     string
	CreditDebited bool
	Err           error
}

func (e *OrphanedArtifactError) Error() string {
	return fmt.Sprintf("sticker image %s was not recorded (credit debited: %t): %v", e.ImagePath, e.CreditDebited, e.Err)
}

func (e *OrphanedArtifactError) Unwrap() error { return e.Err }

type Service interface {
	CreateSticker(ctx context.Context, sourceImagePath string) (stickers.Sticker, error)
}

type ServiceParams struct {
	Credits  credits.Service
	Stickers stickers.Service
	Removal  removal.Service
	Guard    Guard
	Logger   *logger.Logger
	Metrics  *metrics.WorkflowMetrics
	Now      func() time.Time
}

type service struct {
	credits  credits.Service
	stickers stickers.Service
	removal  removal.Service
	guard    Guard
	logg     *logger.Logger
	metrics  *metrics.WorkflowMetrics
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Credits == nil {
		return nil, fmt.Errorf("credits service required")
	}
	if params.Stickers == nil {
		return nil, fmt.Errorf("stickers service required")
	}
	if params.Removal == nil {
		return nil, fmt.Errorf("removal service required")
	}
	svc := &service{
		credits:  params.Credits,
		stickers: params.Stickers,
		removal:  params.Removal,
		guard:    params.Guard,
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      params.Now,
	}
	if svc.guard == nil {
		svc.guard = NewLocalGuard()
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc, nil
}

func (s *service) CreateSticker(ctx context.Context, sourceImagePath string) (stickers.Sticker, error) {
	if strings.TrimSpace(sourceImagePath) == "" {
		return stickers.Sticker{}, pkgerrors.New(pkgerrors.CodeValidation, "source image path is required")
	}
	ctx = s.logg.WithSourceImage(ctx, sourceImagePath)
	start := s.now()

	release, err := s.guard.Acquire(ctx, guardKey(sourceImagePath))
	if err != nil {
		s.metrics.IncFailure("in_flight")
		return stickers.Sticker{}, err
	}
	defer release()

	balance, err := s.credits.Balance(ctx)
	if err != nil {
		s.metrics.IncFailure("balance")
		return stickers.Sticker{}, err
	}
	if balance < 1 {
		s.metrics.IncFailure("insufficient_credits")
		return stickers.Sticker{}, pkgerrors.New(pkgerrors.CodeInsufficientCredits, "not enough credits").
			WithDetails(map[string]any{"balance": balance, "requested": 1})
	}

	imagePath, err := s.produce(ctx, sourceImagePath)
	if err != nil {
		return stickers.Sticker{}, err
	}

	if _, err := s.credits.DebitOne(ctx); err != nil {
		s.metrics.IncFailure("debit")
		s.logg.Error(s.logg.WithField(ctx, "image", imagePath), "credit debit failed, image left unrecorded", err)
		return stickers.Sticker{}, &OrphanedArtifactError{ImagePath: imagePath, CreditDebited: false, Err: err}
	}

	sticker, err := s.stickers.Append(ctx, imagePath, true)
	if err != nil {
		s.metrics.IncFailure("record")
		debited := false
		// The refund outlives a cancelled request; a client disconnect is a
		// common reason Append failed in the first place.
		refundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refundTimeout)
		_, refundErr := s.credits.ApplyDelta(refundCtx, 1)
		cancel()
		if refundErr != nil {
			debited = true
			s.logg.Error(s.logg.WithField(ctx, "image", imagePath), "credit refund failed", refundErr)
		}
		s.logg.Error(s.logg.WithFields(ctx, map[string]any{"image": imagePath, "credit_debited": debited}), "sticker not recorded", err)
		return stickers.Sticker{}, &OrphanedArtifactError{ImagePath: imagePath, CreditDebited: debited, Err: err}
	}

	s.metrics.IncCreated(s.now().Sub(start))
	s.logg.Info(s.logg.WithStickerID(ctx, sticker.ID), "sticker created")
	return sticker, nil
}

// produce runs the remote call and both image steps. Nothing in the
// ledger changes here.
func (s *service) produce(ctx context.Context, sourceImagePath string) (string, error) {
	removed, err := s.removal.RemoveBackground(ctx, sourceImagePath)
	if err != nil {
		s.metrics.IncFailure("removal")
		return "", err
	}
	normalized, err := s.removal.NormalizeForStickerFormat(ctx, removed)
	if err != nil {
		s.metrics.IncFailure("normalize")
		return "", err
	}
	marked, err := s.removal.ApplyWatermark(ctx, normalized, false)
	if err != nil {
		s.metrics.IncFailure("watermark")
		return "", err
	}
	return marked, nil
}
