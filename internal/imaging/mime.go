package imaging

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	pkgerrors "github.com/stickerlab/stickerlab/pkg/errors"
)

// supportedTypes are the formats the processor can decode.
var supportedTypes = []string{"image/png", "image/jpeg", "image/webp"}

// SupportedTypes returns the accepted MIME types.
func SupportedTypes() []string {
	out := make([]string, len(supportedTypes))
	copy(out, supportedTypes)
	return out
}

// Sniff detects the MIME type of data from its content and rejects anything
// that is not a supported image.
func Sniff(data []byte) (string, error) {
	if len(data) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "image is empty")
	}
	detected := mimetype.Detect(data)
	for _, allowed := range supportedTypes {
		if detected.Is(allowed) {
			return allowed, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported image type %s", detected.String())).
		WithDetails(map[string]any{
			"detected": detected.String(),
			"allowed":  strings.Join(supportedTypes, ", "),
		})
}
