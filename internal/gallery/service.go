// Package gallery exports produced stickers into the user-visible export
// directory.
package gallery

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/stickerlab/stickerlab/internal/stickers"
	pkgerrors "github.com/stickerlab/stickerlab/pkg/errors"
	"github.com/stickerlab/stickerlab/pkg/logger"
	"github.com/stickerlab/stickerlab/pkg/storage/localfs"
)

const filePrefix = "StickerLab_"

type Service interface {
	// Save copies the sticker's image to <exportDir>/StickerLab_<unixms>.png
	// and returns the new path.
	Save(ctx context.Context, stickerID string) (string, error)
}

type ServiceParams struct {
	Stickers stickers.Service
	Exports  *localfs.Dir
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	stickers stickers.Service
	exports  *localfs.Dir
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Stickers == nil {
		return nil, fmt.Errorf("stickers service required")
	}
	if params.Exports == nil {
		return nil, fmt.Errorf("export directory required")
	}
	svc := &service{
		stickers: params.Stickers,
		exports:  params.Exports,
		logg:     params.Logger,
		now:      params.Now,
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc, nil
}

func (s *service) Save(ctx context.Context, stickerID string) (string, error) {
	sticker, err := s.stickers.Find(ctx, stickerID)
	if err != nil {
		return "", err
	}
	ctx = s.logg.WithStickerID(ctx, sticker.ID)

	if _, err := os.Stat(sticker.ImageLocation); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeIO, err, "sticker image is missing").
			WithDetails(map[string]any{"path": sticker.ImageLocation})
	}

	out, err := s.exports.CopyFrom(ctx, sticker.ImageLocation, s.freeName())
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeIO, err, "export sticker")
	}
	s.logg.Info(s.logg.WithField(ctx, "path", out), "sticker exported")
	return out, nil
}

// freeName picks StickerLab_<unixms>.png, adding a counter when two exports
// land in the same millisecond.
func (s *service) freeName() string {
	stamp := s.now().UnixMilli()
	name := fmt.Sprintf("%s%d.png", filePrefix, stamp)
	for i := 1; ; i++ {
		if _, err := os.Stat(s.exports.Path(name)); os.IsNotExist(err) {
			return name
		}
		name = fmt.Sprintf("%s%d_%d.png", filePrefix, stamp, i)
	}
}
