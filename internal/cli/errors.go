package cli

import (
	"errors"
	"fmt"

	"github.com/stickerlab/stickerlab/internal/creation"
	pkgerrors "github.com/stickerlab/stickerlab/pkg/errors"
)

// describe turns coded errors into a single line a user can act on.
func describe(err error) string {
	if err == nil {
		return ""
	}
	var orphan *creation.OrphanedArtifactError
	if errors.As(err, &orphan) {
		if orphan.CreditDebited {
			return fmt.Sprintf("the sticker image was produced at %s but could not be saved; the credit was spent", orphan.ImagePath)
		}
		return fmt.Sprintf("the sticker image was produced at %s but could not be saved; no credit was spent", orphan.ImagePath)
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return err.Error()
	}
	switch typed.Code() {
	case pkgerrors.CodeInsufficientCredits:
		return "not enough credits; buy a package with `stickerlab buy`"
	case pkgerrors.CodeRemovalService:
		return "background removal failed: " + typed.Message()
	}
	return typed.Message()
}
