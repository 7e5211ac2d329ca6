// Package metrics provides metrics collection including business event logging.
package metrics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BusinessEventLogger provides structured logging for business events.
// This complements Prometheus metrics by providing detailed, searchable logs
// for business intelligence, debugging, and compliance.
type BusinessEventLogger struct {
	logger *zap.Logger
}

// NewBusinessEventLogger creates a new business event logger.
func NewBusinessEventLogger(logger *zap.Logger) *BusinessEventLogger {
	return &BusinessEventLogger{
		logger: logger.Named("business_events"),
	}
}

// RequestCreated logs when a new service request is submitted.
func (l *BusinessEventLogger) RequestCreated(ctx context.Context, requestID uuid.UUID, serviceType, urgency string) {
	l.logger.Info("request_created",
		zap.String("event_type", "request.created"),
		zap.String("request_id", requestID.String()),
		zap.String("service_type", serviceType),
		zap.String("urgency", urgency),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// RequestTransitioned logs a ServiceRequest status transition.
func (l *BusinessEventLogger) RequestTransitioned(ctx context.Context, requestID uuid.UUID, from, to string) {
	l.logger.Info("request_transitioned",
		zap.String("event_type", "request.transitioned"),
		zap.String("request_id", requestID.String()),
		zap.String("from_status", from),
		zap.String("to_status", to),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// CallDispatched logs when an outbound qualification or booking call is
// sent to the vendor.
func (l *BusinessEventLogger) CallDispatched(ctx context.Context, providerID uuid.UUID, toNumber string, isBooking bool) {
	l.logger.Info("call_dispatched",
		zap.String("event_type", "call.dispatched"),
		zap.String("provider_id", providerID.String()),
		zap.String("to_number", maskPhoneNumber(toNumber)),
		zap.Bool("is_booking", isBooking),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// CallTerminal logs when a call reaches a terminal status.
func (l *BusinessEventLogger) CallTerminal(ctx context.Context, providerID uuid.UUID, status string, duration time.Duration) {
	l.logger.Info("call_terminal",
		zap.String("event_type", "call.terminal"),
		zap.String("provider_id", providerID.String()),
		zap.String("status", status),
		zap.Duration("duration", duration),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// RecommendationsProduced logs a completed Recommender run.
func (l *BusinessEventLogger) RecommendationsProduced(ctx context.Context, requestID uuid.UUID, candidateCount, recommendedCount int) {
	l.logger.Info("recommendations_produced",
		zap.String("event_type", "recommendations.produced"),
		zap.String("request_id", requestID.String()),
		zap.Int("candidate_count", candidateCount),
		zap.Int("recommended_count", recommendedCount),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// BookingOutcome logs the result of a booking confirmation call.
func (l *BusinessEventLogger) BookingOutcome(ctx context.Context, requestID, providerID uuid.UUID, success bool) {
	fields := []zap.Field{
		zap.String("event_type", "booking.outcome"),
		zap.String("request_id", requestID.String()),
		zap.String("provider_id", providerID.String()),
		zap.Bool("success", success),
		zap.Time("timestamp", time.Now().UTC()),
	}
	if success {
		l.logger.Info("booking_completed", fields...)
	} else {
		l.logger.Warn("booking_failed", fields...)
	}
}

// WebhookReceived logs when a webhook is received from the voice vendor.
func (l *BusinessEventLogger) WebhookReceived(ctx context.Context, callID string, valid bool) {
	level := l.logger.Info
	eventName := "webhook_received"
	if !valid {
		level = l.logger.Warn
		eventName = "webhook_invalid"
	}
	level(eventName,
		zap.String("event_type", "webhook.received"),
		zap.String("call_id", callID),
		zap.Bool("valid", valid),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// APIError logs an API error for monitoring.
func (l *BusinessEventLogger) APIError(ctx context.Context, endpoint, method string, statusCode int, errorMsg string) {
	l.logger.Error("api_error",
		zap.String("event_type", "api.error"),
		zap.String("endpoint", endpoint),
		zap.String("method", method),
		zap.Int("status_code", statusCode),
		zap.String("error", errorMsg),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// VendorAPICall logs a call to the outbound voice vendor's REST API.
func (l *BusinessEventLogger) VendorAPICall(ctx context.Context, endpoint string, duration time.Duration, success bool, statusCode int) {
	level := l.logger.Info
	eventName := "vendor_api_call"
	if !success {
		level = l.logger.Warn
		eventName = "vendor_api_call_failed"
	}
	level(eventName,
		zap.String("event_type", "vendor_api.call"),
		zap.String("endpoint", endpoint),
		zap.Duration("duration", duration),
		zap.Bool("success", success),
		zap.Int("status_code", statusCode),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// RateLimitExceeded logs when a rate limit is exceeded.
func (l *BusinessEventLogger) RateLimitExceeded(ctx context.Context, limiterType string, identifier string) {
	l.logger.Warn("rate_limit_exceeded",
		zap.String("event_type", "rate_limit.exceeded"),
		zap.String("limiter_type", limiterType),
		zap.String("identifier", maskIdentifier(identifier)),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// Helper functions for data masking

// maskPhoneNumber masks a phone number for privacy.
func maskPhoneNumber(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return phone[:3] + "****" + phone[len(phone)-2:]
}

// maskIdentifier masks an identifier for privacy.
func maskIdentifier(id string) string {
	if len(id) <= 4 {
		return "****"
	}
	return id[:2] + "****" + id[len(id)-2:]
}
