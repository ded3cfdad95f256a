package removal

import (
	"fmt"

	pkgerrors "github.com/stickerlab/stickerlab/pkg/errors"
)

// Failure reasons carried in the details of a REMOVAL_SERVICE_ERROR.
const (
	ReasonNotConfigured = "not_configured"
	ReasonAuth          = "auth"
	ReasonRateLimited   = "rate_limited"
	ReasonUpstream      = "upstream"
	ReasonRejected      = "rejected"
	ReasonNetwork       = "network"
	ReasonBadResponse   = "bad_response"
)

func serviceError(reason string, status int, title string, cause error) *pkgerrors.Error {
	msg := "background removal failed"
	switch {
	case title != "":
		msg = fmt.Sprintf("background removal failed: %s", title)
	case status != 0:
		msg = fmt.Sprintf("background removal failed with status %d", status)
	}
	details := map[string]any{"reason": reason}
	if status != 0 {
		details["status"] = status
	}
	if title != "" {
		details["title"] = title
	}
	return pkgerrors.Wrap(pkgerrors.CodeRemovalService, cause, msg).WithDetails(details)
}

// Reason returns the failure reason of a removal error, or "".
func Reason(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeRemovalService {
		return ""
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		return ""
	}
	reason, _ := details["reason"].(string)
	return reason
}
