package mutation

import (
	"errors"
	"net/http"

	"github.com/serabi/organized-glitter-sub001/pkg/remote"
)

// Severity tags a notification for presentation.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Notifier receives user-facing notifications on mutation settle. The
// engine never renders UI itself.
type Notifier func(message string, severity Severity)

// failureMessage builds a human-readable, fault-specific message for a
// settled failure.
func failureMessage(err error) string {
	var re *remote.RemoteError
	if !errors.As(err, &re) {
		return "Couldn't save your change, so it has been undone"
	}

	switch re.Class {
	case remote.FaultRateLimit:
		return "Too many changes at once. Please wait a moment and try again"
	case remote.FaultClient:
		switch re.StatusCode {
		case http.StatusNotFound:
			return "This item no longer exists"
		case http.StatusForbidden, http.StatusUnauthorized:
			return "You don't have permission to make this change"
		default:
			if re.Message != "" {
				return "The change was rejected: " + re.Message
			}
			return "The change was rejected"
		}
	default:
		return "Couldn't reach the server, so your change was undone"
	}
}
