package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by remote collaborators.
var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("entity not found")
)

// FaultClass categorizes remote failures for retry and notification
// decisions. Client faults are never retried; everything else is
// transient and retried with backoff.
type FaultClass string

const (
	// FaultClient covers validation failures, permission denials, and
	// not-found responses (4xx other than 429).
	FaultClient FaultClass = "client"

	// FaultRateLimit covers 429 responses. Retried with longer backoff.
	FaultRateLimit FaultClass = "rate_limit"

	// FaultServer covers 5xx responses.
	FaultServer FaultClass = "server"

	// FaultNetwork covers transport errors and timeouts.
	FaultNetwork FaultClass = "network"
)

// Transient reports whether failures of this class may be retried.
func (c FaultClass) Transient() bool {
	return c != FaultClient
}

// RemoteError is a classified failure from the hosted backend.
type RemoteError struct {
	StatusCode int
	Class      FaultClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("backend %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RemoteError) Unwrap() error {
	return e.Err
}

// ClassifyStatus maps an HTTP status code to a fault class.
func ClassifyStatus(status int) FaultClass {
	switch {
	case status == http.StatusTooManyRequests:
		return FaultRateLimit
	case status >= 400 && status < 500:
		return FaultClient
	case status >= 500:
		return FaultServer
	default:
		return FaultNetwork
	}
}

// ClassOf extracts the fault class from an error. Unclassified errors
// (raw transport failures, context timeouts) are treated as network
// faults so they remain retryable.
func ClassOf(err error) FaultClass {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Class
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return FaultNetwork
	}
	return FaultNetwork
}

// IsNotFound reports whether the error represents a missing entity.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var re *RemoteError
	return errors.As(err, &re) && re.StatusCode == http.StatusNotFound
}
