package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	return zap.New(core), logs
}

func TestBusinessEventLogger_RequestCreated(t *testing.T) {
	logger, logs := newTestLogger()
	bel := NewBusinessEventLogger(logger)

	requestID := uuid.New()
	bel.RequestCreated(context.Background(), requestID, "plumbing", "within_24h")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}

	entry := entries[0]
	if entry.Message != "request_created" {
		t.Errorf("expected message 'request_created', got '%s'", entry.Message)
	}

	fields := entry.ContextMap()
	if fields["event_type"] != "request.created" {
		t.Errorf("expected event_type 'request.created', got '%v'", fields["event_type"])
	}
	if fields["request_id"] != requestID.String() {
		t.Errorf("expected request_id '%s', got '%v'", requestID.String(), fields["request_id"])
	}
	if fields["service_type"] != "plumbing" {
		t.Errorf("expected service_type 'plumbing', got '%v'", fields["service_type"])
	}
}

func TestBusinessEventLogger_RequestTransitioned(t *testing.T) {
	logger, logs := newTestLogger()
	bel := NewBusinessEventLogger(logger)

	requestID := uuid.New()
	bel.RequestTransitioned(context.Background(), requestID, "calling", "analyzing")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}

	fields := entries[0].ContextMap()
	if fields["from_status"] != "calling" {
		t.Errorf("expected from_status 'calling', got '%v'", fields["from_status"])
	}
	if fields["to_status"] != "analyzing" {
		t.Errorf("expected to_status 'analyzing', got '%v'", fields["to_status"])
	}
}

func TestBusinessEventLogger_CallDispatched(t *testing.T) {
	logger, logs := newTestLogger()
	bel := NewBusinessEventLogger(logger)

	providerID := uuid.New()
	bel.CallDispatched(context.Background(), providerID, "+15551234567", false)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}

	entry := entries[0]
	if entry.Message != "call_dispatched" {
		t.Errorf("expected message 'call_dispatched', got '%s'", entry.Message)
	}

	fields := entry.ContextMap()
	// Phone should be masked
	if fields["to_number"] != "+15****67" {
		t.Errorf("expected masked phone '+15****67', got '%v'", fields["to_number"])
	}
}

func TestBusinessEventLogger_CallTerminal(t *testing.T) {
	logger, logs := newTestLogger()
	bel := NewBusinessEventLogger(logger)

	providerID := uuid.New()
	bel.CallTerminal(context.Background(), providerID, "completed", 5*time.Minute)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}

	entry := entries[0]
	if entry.Message != "call_terminal" {
		t.Errorf("expected message 'call_terminal', got '%s'", entry.Message)
	}

	fields := entry.ContextMap()
	if fields["status"] != "completed" {
		t.Errorf("expected status 'completed', got '%v'", fields["status"])
	}
}

func TestBusinessEventLogger_RecommendationsProduced(t *testing.T) {
	logger, logs := newTestLogger()
	bel := NewBusinessEventLogger(logger)

	requestID := uuid.New()
	bel.RecommendationsProduced(context.Background(), requestID, 5, 3)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}

	fields := entries[0].ContextMap()
	if fields["candidate_count"] != int64(5) {
		t.Errorf("expected candidate_count=5, got '%v'", fields["candidate_count"])
	}
	if fields["recommended_count"] != int64(3) {
		t.Errorf("expected recommended_count=3, got '%v'", fields["recommended_count"])
	}
}

func TestBusinessEventLogger_BookingOutcome(t *testing.T) {
	logger, logs := newTestLogger()
	bel := NewBusinessEventLogger(logger)

	requestID, providerID := uuid.New(), uuid.New()

	t.Run("success", func(t *testing.T) {
		bel.BookingOutcome(context.Background(), requestID, providerID, true)

		entries := logs.TakeAll()
		if len(entries) != 1 {
			t.Fatalf("expected 1 log entry, got %d", len(entries))
		}
		entry := entries[0]
		if entry.Message != "booking_completed" {
			t.Errorf("expected message 'booking_completed', got '%s'", entry.Message)
		}
		if entry.Level != zapcore.InfoLevel {
			t.Errorf("expected INFO level, got %v", entry.Level)
		}
	})

	t.Run("failure", func(t *testing.T) {
		bel.BookingOutcome(context.Background(), requestID, providerID, false)

		entries := logs.TakeAll()
		if len(entries) != 1 {
			t.Fatalf("expected 1 log entry, got %d", len(entries))
		}
		entry := entries[0]
		if entry.Message != "booking_failed" {
			t.Errorf("expected message 'booking_failed', got '%s'", entry.Message)
		}
		if entry.Level != zapcore.WarnLevel {
			t.Errorf("expected WARN level, got %v", entry.Level)
		}
	})
}

func TestBusinessEventLogger_WebhookReceived(t *testing.T) {
	logger, logs := newTestLogger()
	bel := NewBusinessEventLogger(logger)

	t.Run("valid webhook", func(t *testing.T) {
		bel.WebhookReceived(context.Background(), "abc123", true)

		entries := logs.TakeAll()
		if len(entries) != 1 {
			t.Fatalf("expected 1 log entry, got %d", len(entries))
		}

		entry := entries[0]
		if entry.Message != "webhook_received" {
			t.Errorf("expected message 'webhook_received', got '%s'", entry.Message)
		}
		if entry.Level != zapcore.InfoLevel {
			t.Errorf("expected INFO level, got %v", entry.Level)
		}
	})

	t.Run("invalid webhook", func(t *testing.T) {
		bel.WebhookReceived(context.Background(), "abc123", false)

		entries := logs.TakeAll()
		if len(entries) != 1 {
			t.Fatalf("expected 1 log entry, got %d", len(entries))
		}

		entry := entries[0]
		if entry.Message != "webhook_invalid" {
			t.Errorf("expected message 'webhook_invalid', got '%s'", entry.Message)
		}
		if entry.Level != zapcore.WarnLevel {
			t.Errorf("expected WARN level, got %v", entry.Level)
		}
	})
}

func TestBusinessEventLogger_VendorAPICall(t *testing.T) {
	logger, logs := newTestLogger()
	bel := NewBusinessEventLogger(logger)

	t.Run("success", func(t *testing.T) {
		bel.VendorAPICall(context.Background(), "/call", 250*time.Millisecond, true, 200)

		entries := logs.TakeAll()
		if len(entries) != 1 {
			t.Fatalf("expected 1 log entry, got %d", len(entries))
		}
		if entries[0].Message != "vendor_api_call" {
			t.Errorf("expected message 'vendor_api_call', got '%s'", entries[0].Message)
		}
	})

	t.Run("failure", func(t *testing.T) {
		bel.VendorAPICall(context.Background(), "/call", 250*time.Millisecond, false, 500)

		entries := logs.TakeAll()
		if len(entries) != 1 {
			t.Fatalf("expected 1 log entry, got %d", len(entries))
		}
		if entries[0].Message != "vendor_api_call_failed" {
			t.Errorf("expected message 'vendor_api_call_failed', got '%s'", entries[0].Message)
		}
		if entries[0].Level != zapcore.WarnLevel {
			t.Errorf("expected WARN level, got %v", entries[0].Level)
		}
	})
}

func TestBusinessEventLogger_APIError(t *testing.T) {
	logger, logs := newTestLogger()
	bel := NewBusinessEventLogger(logger)

	bel.APIError(context.Background(), "/providers/batch-call", "POST", 500, "boom")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.ErrorLevel {
		t.Errorf("expected ERROR level, got %v", entries[0].Level)
	}
}

func TestBusinessEventLogger_RateLimitExceeded(t *testing.T) {
	logger, logs := newTestLogger()
	bel := NewBusinessEventLogger(logger)

	bel.RateLimitExceeded(context.Background(), "vendor_call_budget", "192.168.1.100")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}

	fields := entries[0].ContextMap()
	if fields["identifier"] != "19****00" {
		t.Errorf("expected masked identifier '19****00', got '%v'", fields["identifier"])
	}
}

func TestMaskPhoneNumber(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"+15551234567", "+15****67"},
		{"1234", "****"},
		{"123", "****"},
		{"12345678", "123****78"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := maskPhoneNumber(tt.input)
			if result != tt.expected {
				t.Errorf("maskPhoneNumber(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestMaskIdentifier(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"192.168.1.100", "19****00"},
		{"abc", "****"},
		{"abcd", "****"},
		{"abcdef", "ab****ef"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := maskIdentifier(tt.input)
			if result != tt.expected {
				t.Errorf("maskIdentifier(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
