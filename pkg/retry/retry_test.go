package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/serabi/organized-glitter-sub001/pkg/remote"
)

func clientFault() error {
	return &remote.RemoteError{StatusCode: 422, Class: remote.FaultClient, Message: "validation failed"}
}

func serverFault() error {
	return &remote.RemoteError{StatusCode: 500, Class: remote.FaultServer, Message: "boom"}
}

func TestDefaultPolicy(t *testing.T) {
	policy := DefaultPolicy()

	if policy.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", policy.MaxAttempts)
	}
	if policy.InitialBackoff != 500*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 500ms", policy.InitialBackoff)
	}
	if policy.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", policy.BackoffMultiplier)
	}
}

func TestDeletePolicy_SingleAttempt(t *testing.T) {
	if got := DeletePolicy().MaxAttempts; got != 1 {
		t.Errorf("delete MaxAttempts = %d, want 1", got)
	}
}

func TestPolicy_ShouldRetry(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{"client fault attempt 1", clientFault(), 1, false},
		{"client fault attempt 2", clientFault(), 2, false},
		{"server fault attempt 1", serverFault(), 1, true},
		{"server fault attempt 2", serverFault(), 2, true},
		{"server fault at bound", serverFault(), 3, false},
		{"nil error", nil, 1, false},
		{"plain network error", errors.New("connection refused"), 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.ShouldRetry(tt.err, tt.attempt); got != tt.want {
				t.Errorf("ShouldRetry(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestPolicy_BackoffDelay(t *testing.T) {
	policy := Policy{
		MaxAttempts:       5,
		InitialBackoff:    time.Second,
		MaxBackoff:        4 * time.Second,
		BackoffMultiplier: 2.0,
	}

	// Jitter is ±20%, so check bounds instead of exact values.
	tests := []struct {
		attempt int
		base    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 4 * time.Second}, // capped
		{5, 4 * time.Second}, // still capped
	}

	for _, tt := range tests {
		delay := policy.BackoffDelay(tt.attempt)
		min := time.Duration(float64(tt.base) * 0.8)
		max := time.Duration(float64(tt.base) * 1.2)
		if delay < min || delay > max {
			t.Errorf("BackoffDelay(%d) = %v, want within [%v, %v]", tt.attempt, delay, min, max)
		}
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultPolicy(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_ClientFaultNoRetry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultPolicy(), func(ctx context.Context) error {
		calls++
		return clientFault()
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (client faults must not retry)", calls)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("client fault should surface directly, not as exhaustion")
	}
	if remote.ClassOf(err) != remote.FaultClient {
		t.Errorf("class = %s, want client", remote.ClassOf(err))
	}
}

func TestDo_TransientFaultRetriesToBound(t *testing.T) {
	policy := Policy{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}

	calls := 0
	err := Do(context.Background(), policy, func(ctx context.Context) error {
		calls++
		return serverFault()
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("expected ErrRetryExhausted, got %v", err)
	}
	// The classified failure must survive the exhaustion wrap.
	var re *remote.RemoteError
	if !errors.As(err, &re) {
		t.Error("RemoteError should be unwrappable from exhaustion error")
	}
}

func TestDo_RecoversAfterTransientFailures(t *testing.T) {
	policy := Policy{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}

	calls := 0
	err := Do(context.Background(), policy, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return serverFault()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	policy := Policy{
		MaxAttempts:       3,
		InitialBackoff:    time.Hour,
		MaxBackoff:        time.Hour,
		BackoffMultiplier: 2.0,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, policy, func(ctx context.Context) error {
		return serverFault()
	})
	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("expected ErrContextCancelled, got %v", err)
	}
}

func TestDo_DeletePolicyNeverRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DeletePolicy(), func(ctx context.Context) error {
		calls++
		return serverFault()
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (deletes retry at most once)", calls)
	}
}
