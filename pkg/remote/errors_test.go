package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   FaultClass
	}{
		{http.StatusBadRequest, FaultClient},
		{http.StatusForbidden, FaultClient},
		{http.StatusNotFound, FaultClient},
		{http.StatusTooManyRequests, FaultRateLimit},
		{http.StatusInternalServerError, FaultServer},
		{http.StatusBadGateway, FaultServer},
		{http.StatusServiceUnavailable, FaultServer},
	}

	for _, tt := range tests {
		if got := ClassifyStatus(tt.status); got != tt.want {
			t.Errorf("ClassifyStatus(%d) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestFaultClass_Transient(t *testing.T) {
	if FaultClient.Transient() {
		t.Error("client faults must never be transient")
	}
	for _, class := range []FaultClass{FaultRateLimit, FaultServer, FaultNetwork} {
		if !class.Transient() {
			t.Errorf("%s should be transient", class)
		}
	}
}

func TestClassOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FaultClass
	}{
		{
			name: "remote error carries its class",
			err:  &RemoteError{StatusCode: 403, Class: FaultClient, Message: "forbidden"},
			want: FaultClient,
		},
		{
			name: "wrapped remote error",
			err:  fmt.Errorf("mutate: %w", &RemoteError{StatusCode: 500, Class: FaultServer}),
			want: FaultServer,
		},
		{
			name: "deadline exceeded is a network fault",
			err:  context.DeadlineExceeded,
			want: FaultNetwork,
		},
		{
			name: "unclassified error is a network fault",
			err:  errors.New("connection reset"),
			want: FaultNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassOf(tt.err); got != tt.want {
				t.Errorf("ClassOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRemoteError_ErrorAndUnwrap(t *testing.T) {
	inner := errors.New("dial tcp: refused")
	err := &RemoteError{StatusCode: 0, Class: FaultNetwork, Message: "request failed", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("Unwrap should expose the inner error")
	}
	if err.Error() == "" {
		t.Error("Error() should not be empty")
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(ErrNotFound) {
		t.Error("ErrNotFound should be not-found")
	}
	if !IsNotFound(&RemoteError{StatusCode: 404, Class: FaultClient}) {
		t.Error("404 remote error should be not-found")
	}
	if IsNotFound(&RemoteError{StatusCode: 500, Class: FaultServer}) {
		t.Error("500 should not be not-found")
	}
}
