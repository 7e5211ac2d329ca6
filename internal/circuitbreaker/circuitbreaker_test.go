package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestBreaker(cfg *Config) *CircuitBreaker {
	logger := zap.NewNop()
	if cfg == nil {
		cfg = &Config{
			FailureThreshold:    3,
			SuccessThreshold:    2,
			OpenTimeout:         100 * time.Millisecond,
			HalfOpenMaxRequests: 2,
		}
	}
	return New("test", cfg, logger)
}

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb := newTestBreaker(nil)

	if cb.State() != StateClosed {
		t.Errorf("expected initial state %v, got %v", StateClosed, cb.State())
	}
	if cb.IsOpen() {
		t.Error("circuit should not be open initially")
	}
}

func TestCircuitBreaker_SuccessfulRequests(t *testing.T) {
	cb := newTestBreaker(nil)
	ctx := context.Background()

	// Execute successful requests
	for i := 0; i < 5; i++ {
		err := cb.Execute(ctx, func(ctx context.Context) error {
			return nil
		})
		if err != nil {
			t.Errorf("request %d failed: %v", i, err)
		}
	}

	if cb.State() != StateClosed {
		t.Errorf("expected state %v after successes, got %v", StateClosed, cb.State())
	}

	stats := cb.Stats()
	if stats.TotalRequests != 5 {
		t.Errorf("expected 5 total requests, got %d", stats.TotalRequests)
	}
	if stats.TotalSuccesses != 5 {
		t.Errorf("expected 5 successes, got %d", stats.TotalSuccesses)
	}
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb := newTestBreaker(nil) // 3 failures to open
	ctx := context.Background()
	testErr := errors.New("service unavailable")

	// Execute failing requests
	for i := 0; i < 3; i++ {
		err := cb.Execute(ctx, func(ctx context.Context) error {
			return testErr
		})
		if err != testErr {
			t.Errorf("expected test error, got %v", err)
		}
	}

	if cb.State() != StateOpen {
		t.Errorf("expected state %v after failures, got %v", StateOpen, cb.State())
	}
	if !cb.IsOpen() {
		t.Error("circuit should be open")
	}
}

func TestCircuitBreaker_RejectsWhenOpen(t *testing.T) {
	cb := newTestBreaker(nil)
	ctx := context.Background()
	testErr := errors.New("service unavailable")

	// Open the circuit
	for i := 0; i < 3; i++ {
		cb.Execute(ctx, func(ctx context.Context) error {
			return testErr
		})
	}

	// Subsequent requests should be rejected
	err := cb.Execute(ctx, func(ctx context.Context) error {
		t.Error("function should not be called when circuit is open")
		return nil
	})

	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}

	stats := cb.Stats()
	if stats.TotalRejected != 1 {
		t.Errorf("expected 1 rejected, got %d", stats.TotalRejected)
	}
}

func TestCircuitBreaker_TransitionsToHalfOpen(t *testing.T) {
	cfg := &Config{
		FailureThreshold:    2,
		SuccessThreshold:    2,
		OpenTimeout:         50 * time.Millisecond,
		HalfOpenMaxRequests: 1,
	}
	cb := newTestBreaker(cfg)
	ctx := context.Background()
	testErr := errors.New("service unavailable")

	// Open the circuit
	for i := 0; i < 2; i++ {
		cb.Execute(ctx, func(ctx context.Context) error {
			return testErr
		})
	}

	if cb.State() != StateOpen {
		t.Fatalf("expected open state, got %v", cb.State())
	}

	// Wait for timeout
	time.Sleep(60 * time.Millisecond)

	// Next request should trigger half-open
	err := cb.Execute(ctx, func(ctx context.Context) error {
		return nil // success
	})
	if err != nil {
		t.Errorf("expected success in half-open, got %v", err)
	}

	// State should be half-open or closed depending on success threshold
	// With success threshold of 2, one success keeps us in half-open
	// But we configured max 1 request in half-open, so it should have succeeded
}

func TestCircuitBreaker_ClosesAfterHalfOpenSuccesses(t *testing.T) {
	cfg := &Config{
		FailureThreshold:    2,
		SuccessThreshold:    2,
		OpenTimeout:         50 * time.Millisecond,
		HalfOpenMaxRequests: 10, // Allow many requests
	}
	cb := newTestBreaker(cfg)
	ctx := context.Background()
	testErr := errors.New("service unavailable")

	// Open the circuit
	for i := 0; i < 2; i++ {
		cb.Execute(ctx, func(ctx context.Context) error {
			return testErr
		})
	}

	// Wait for timeout
	time.Sleep(60 * time.Millisecond)

	// Execute successful requests to close the circuit
	for i := 0; i < 2; i++ {
		err := cb.Execute(ctx, func(ctx context.Context) error {
			return nil
		})
		if err != nil {
			t.Errorf("request %d failed: %v", i, err)
		}
	}

	if cb.State() != StateClosed {
		t.Errorf("expected closed state after successes, got %v", cb.State())
	}
}

func TestCircuitBreaker_ReopensOnHalfOpenFailure(t *testing.T) {
	cfg := &Config{
		FailureThreshold:    2,
		SuccessThreshold:    2,
		OpenTimeout:         50 * time.Millisecond,
		HalfOpenMaxRequests: 10,
	}
	cb := newTestBreaker(cfg)
	ctx := context.Background()
	testErr := errors.New("service unavailable")

	// Open the circuit
	for i := 0; i < 2; i++ {
		cb.Execute(ctx, func(ctx context.Context) error {
			return testErr
		})
	}

	// Wait for timeout
	time.Sleep(60 * time.Millisecond)

	// One success, then failure
	cb.Execute(ctx, func(ctx context.Context) error {
		return nil
	})

	cb.Execute(ctx, func(ctx context.Context) error {
		return testErr
	})

	// Should reopen
	if cb.State() != StateOpen {
		t.Errorf("expected open state after half-open failure, got %v", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenLimitsRequests(t *testing.T) {
	cfg := &Config{
		FailureThreshold:    2,
		SuccessThreshold:    2,
		OpenTimeout:         50 * time.Millisecond,
		HalfOpenMaxRequests: 1,
	}
	cb := newTestBreaker(cfg)
	ctx := context.Background()
	testErr := errors.New("service unavailable")

	// Open the circuit
	for i := 0; i < 2; i++ {
		cb.Execute(ctx, func(ctx context.Context) error {
			return testErr
		})
	}

	// Wait for timeout
	time.Sleep(60 * time.Millisecond)

	// First request triggers half-open
	cb.Execute(ctx, func(ctx context.Context) error {
		return nil
	})

	// With success threshold 2, one success keeps the circuit half-open, and
	// the single half-open slot is already used, so the second is rejected.
	err := cb.Execute(ctx, func(ctx context.Context) error {
		return nil
	})
	if !errors.Is(err, ErrTooManyRequests) {
		t.Errorf("expected ErrTooManyRequests for second half-open request, got %v", err)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := newTestBreaker(nil)
	ctx := context.Background()
	testErr := errors.New("service unavailable")

	// Open the circuit
	for i := 0; i < 3; i++ {
		cb.Execute(ctx, func(ctx context.Context) error {
			return testErr
		})
	}

	if cb.State() != StateOpen {
		t.Fatal("circuit should be open")
	}

	// Reset
	cb.Reset()

	if cb.State() != StateClosed {
		t.Errorf("expected closed state after reset, got %v", cb.State())
	}

	// Should accept requests again
	err := cb.Execute(ctx, func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Errorf("expected success after reset, got %v", err)
	}
}

func TestCircuitBreaker_Stats(t *testing.T) {
	cb := newTestBreaker(nil)
	ctx := context.Background()
	testErr := errors.New("test error")

	// Mix of successes and failures
	cb.Execute(ctx, func(ctx context.Context) error { return nil })
	cb.Execute(ctx, func(ctx context.Context) error { return testErr })
	cb.Execute(ctx, func(ctx context.Context) error { return nil })

	stats := cb.Stats()

	if stats.Name != "test" {
		t.Errorf("expected name 'test', got %q", stats.Name)
	}
	if stats.State != "closed" {
		t.Errorf("expected state 'closed', got %q", stats.State)
	}
	if stats.TotalRequests != 3 {
		t.Errorf("expected 3 requests, got %d", stats.TotalRequests)
	}
	if stats.TotalSuccesses != 2 {
		t.Errorf("expected 2 successes, got %d", stats.TotalSuccesses)
	}
	if stats.TotalFailures != 1 {
		t.Errorf("expected 1 failure, got %d", stats.TotalFailures)
	}
}

func TestCircuitBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	cb := newTestBreaker(nil) // 3 failures to open
	ctx := context.Background()
	testErr := errors.New("service unavailable")

	// 2 failures
	cb.Execute(ctx, func(ctx context.Context) error { return testErr })
	cb.Execute(ctx, func(ctx context.Context) error { return testErr })

	// 1 success resets counter
	cb.Execute(ctx, func(ctx context.Context) error { return nil })

	// 2 more failures shouldn't open (we need 3 consecutive)
	cb.Execute(ctx, func(ctx context.Context) error { return testErr })
	cb.Execute(ctx, func(ctx context.Context) error { return testErr })

	if cb.State() != StateClosed {
		t.Errorf("expected closed state (failures weren't consecutive), got %v", cb.State())
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"circuit open", ErrCircuitOpen, false},
		{"too many requests", ErrTooManyRequests, false},
		{"regular error", errors.New("service error"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ShouldRetry(tt.err)
			if result != tt.expected {
				t.Errorf("ShouldRetry(%v) = %v, expected %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("State.String() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.FailureThreshold <= 0 {
		t.Error("FailureThreshold should be positive")
	}
	if cfg.SuccessThreshold <= 0 {
		t.Error("SuccessThreshold should be positive")
	}
	if cfg.OpenTimeout <= 0 {
		t.Error("OpenTimeout should be positive")
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		t.Error("HalfOpenMaxRequests should be positive")
	}
}
