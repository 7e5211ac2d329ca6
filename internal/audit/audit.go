// Package audit provides security and state-change event logging for
// compliance and forensics.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventType represents the type of audit event.
type EventType string

// Audit event types.
const (
	// ServiceRequest lifecycle events
	EventRequestCreated      EventType = "request.created"
	EventRequestTransitioned EventType = "request.transitioned"
	EventRequestFailed       EventType = "request.failed"

	// Booking events
	EventBookingConfirmed EventType = "booking.confirmed"
	EventBookingFailed    EventType = "booking.failed"

	// Webhook events
	EventWebhookReceived       EventType = "webhook.received"
	EventWebhookValidationFail EventType = "webhook.validation.failed"

	// Vendor API events
	EventVendorAPICallFailed EventType = "vendor_api.call.failed"
	EventCircuitBreakerOpen  EventType = "vendor_api.circuit.open"

	// Authorization events
	EventRateLimitExceeded EventType = "authz.ratelimit.exceeded"

	// System events
	EventServiceStarted  EventType = "system.started"
	EventServiceStopping EventType = "system.stopping"
)

// Severity represents the severity level of an audit event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Event represents an audit log entry.
type Event struct {
	// ID is a unique identifier for this event.
	ID string `json:"id"`

	// Timestamp when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type of event (e.g., "request.transitioned").
	Type EventType `json:"type"`

	// Severity level.
	Severity Severity `json:"severity"`

	// Actor identification (who performed the action).
	ActorType string `json:"actor_type,omitempty"` // "system", "webhook", "operator", "client"
	ActorName string `json:"actor_name,omitempty"`

	// Source of the event.
	SourceIP  string `json:"source_ip,omitempty"`
	RequestID string `json:"request_id,omitempty"` // Correlation ID

	// Resource being accessed/modified.
	ResourceType string `json:"resource_type,omitempty"` // "service_request", "provider", "call"
	ResourceID   string `json:"resource_id,omitempty"`

	// Action details.
	Action  string `json:"action"`           // Brief action description
	Outcome string `json:"outcome"`          // "success", "failure", "denied"
	Reason  string `json:"reason,omitempty"` // Failure/denial reason

	// Additional context.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Logger provides audit logging capabilities.
type Logger struct {
	logger *zap.Logger
}

// NewLogger creates a new audit logger.
func NewLogger(baseLogger *zap.Logger) *Logger {
	return &Logger{
		logger: baseLogger.Named("audit"),
	}
}

// Log records an audit event.
func (l *Logger) Log(ctx context.Context, event *Event) {
	// Ensure ID and timestamp are set
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	// Get severity-appropriate log level
	level := zap.InfoLevel
	switch event.Severity {
	case SeverityWarning:
		level = zap.WarnLevel
	case SeverityError:
		level = zap.ErrorLevel
	case SeverityCritical:
		level = zap.ErrorLevel // Critical also uses error level
	}

	// Convert metadata to JSON for logging
	var metadataJSON []byte
	if len(event.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			// If metadata can't be marshaled, log the error but continue
			metadataJSON = []byte(`{"error":"failed to marshal metadata"}`)
		}
	}

	// Log the event with structured fields
	fields := []zap.Field{
		zap.String("audit_id", event.ID),
		zap.Time("audit_timestamp", event.Timestamp),
		zap.String("event_type", string(event.Type)),
		zap.String("severity", string(event.Severity)),
		zap.String("action", event.Action),
		zap.String("outcome", event.Outcome),
	}

	// Add optional fields
	if event.ActorType != "" {
		fields = append(fields, zap.String("actor_type", event.ActorType))
	}
	if event.ActorName != "" {
		fields = append(fields, zap.String("actor_name", event.ActorName))
	}
	if event.SourceIP != "" {
		fields = append(fields, zap.String("source_ip", event.SourceIP))
	}
	if event.RequestID != "" {
		fields = append(fields, zap.String("request_id", event.RequestID))
	}
	if event.ResourceType != "" {
		fields = append(fields, zap.String("resource_type", event.ResourceType))
	}
	if event.ResourceID != "" {
		fields = append(fields, zap.String("resource_id", event.ResourceID))
	}
	if event.Reason != "" {
		fields = append(fields, zap.String("reason", event.Reason))
	}
	if len(metadataJSON) > 0 {
		fields = append(fields, zap.ByteString("metadata", metadataJSON))
	}

	// Log at appropriate level
	if ce := l.logger.Check(level, "security audit event"); ce != nil {
		ce.Write(fields...)
	}
}

// Helper methods for common audit scenarios

// RequestCreated logs a new service request submission.
func (l *Logger) RequestCreated(ctx context.Context, requestID, serviceType, requestCtx string) {
	l.Log(ctx, &Event{
		Type:         EventRequestCreated,
		Severity:     SeverityInfo,
		ActorType:    "system",
		RequestID:    requestCtx,
		ResourceType: "service_request",
		ResourceID:   requestID,
		Action:       "service request created",
		Outcome:      "success",
		Metadata: map[string]interface{}{
			"service_type": serviceType,
		},
	})
}

// RequestTransitioned logs a ServiceRequest status transition.
func (l *Logger) RequestTransitioned(ctx context.Context, requestID, from, to, requestCtx string) {
	l.Log(ctx, &Event{
		Type:         EventRequestTransitioned,
		Severity:     SeverityInfo,
		ActorType:    "system",
		RequestID:    requestCtx,
		ResourceType: "service_request",
		ResourceID:   requestID,
		Action:       "status transitioned",
		Outcome:      "success",
		Metadata: map[string]interface{}{
			"from_status": from,
			"to_status":   to,
		},
	})
}

// RequestFailed logs a ServiceRequest transitioning to FAILED.
func (l *Logger) RequestFailed(ctx context.Context, requestID, reason, requestCtx string) {
	l.Log(ctx, &Event{
		Type:         EventRequestFailed,
		Severity:     SeverityWarning,
		ActorType:    "system",
		RequestID:    requestCtx,
		ResourceType: "service_request",
		ResourceID:   requestID,
		Action:       "request failed",
		Outcome:      "failure",
		Reason:       reason,
	})
}

// BookingConfirmed logs a successful booking confirmation call.
func (l *Logger) BookingConfirmed(ctx context.Context, requestID, providerID, requestCtx string) {
	l.Log(ctx, &Event{
		Type:         EventBookingConfirmed,
		Severity:     SeverityInfo,
		ActorType:    "system",
		RequestID:    requestCtx,
		ResourceType: "service_request",
		ResourceID:   requestID,
		Action:       "booking confirmed",
		Outcome:      "success",
		Metadata: map[string]interface{}{
			"provider_id": providerID,
		},
	})
}

// BookingFailed logs a failed booking confirmation call.
func (l *Logger) BookingFailed(ctx context.Context, requestID, providerID, reason, requestCtx string) {
	l.Log(ctx, &Event{
		Type:         EventBookingFailed,
		Severity:     SeverityWarning,
		ActorType:    "system",
		RequestID:    requestCtx,
		ResourceType: "service_request",
		ResourceID:   requestID,
		Action:       "booking failed",
		Outcome:      "failure",
		Reason:       reason,
		Metadata: map[string]interface{}{
			"provider_id": providerID,
		},
	})
}

// WebhookReceived logs an incoming vendor webhook.
func (l *Logger) WebhookReceived(ctx context.Context, callID, ip, requestID string) {
	l.Log(ctx, &Event{
		Type:         EventWebhookReceived,
		Severity:     SeverityInfo,
		ActorType:    "webhook",
		SourceIP:     ip,
		RequestID:    requestID,
		ResourceType: "call",
		ResourceID:   callID,
		Action:       "webhook received",
		Outcome:      "success",
	})
}

// WebhookValidationFailed logs a webhook signature validation failure.
func (l *Logger) WebhookValidationFailed(ctx context.Context, ip, requestID, reason string) {
	l.Log(ctx, &Event{
		Type:      EventWebhookValidationFail,
		Severity:  SeverityWarning,
		ActorType: "webhook",
		SourceIP:  ip,
		RequestID: requestID,
		Action:    "webhook validation",
		Outcome:   "failure",
		Reason:    reason,
	})
}

// VendorAPICallFailed logs a failed call to the outbound voice vendor API.
func (l *Logger) VendorAPICallFailed(ctx context.Context, endpoint, requestID, reason string) {
	l.Log(ctx, &Event{
		Type:      EventVendorAPICallFailed,
		Severity:  SeverityError,
		ActorType: "system",
		RequestID: requestID,
		Action:    "vendor API call",
		Outcome:   "failure",
		Reason:    reason,
		Metadata: map[string]interface{}{
			"endpoint": endpoint,
		},
	})
}

// CircuitBreakerOpen logs the vendor-api circuit breaker tripping open.
func (l *Logger) CircuitBreakerOpen(ctx context.Context, service string) {
	l.Log(ctx, &Event{
		Type:      EventCircuitBreakerOpen,
		Severity:  SeverityCritical,
		ActorType: "system",
		Action:    "circuit breaker tripped",
		Outcome:   "denied",
		Metadata: map[string]interface{}{
			"service": service,
		},
	})
}

// RateLimitExceeded logs a rate limit violation.
func (l *Logger) RateLimitExceeded(ctx context.Context, identifier, ip, requestID, limiterType string) {
	l.Log(ctx, &Event{
		Type:      EventRateLimitExceeded,
		Severity:  SeverityWarning,
		ActorType: "client",
		SourceIP:  ip,
		RequestID: requestID,
		Action:    "request rate limited",
		Outcome:   "denied",
		Reason:    "rate limit exceeded",
		Metadata: map[string]interface{}{
			"limiter_type": limiterType,
			"identifier":   identifier,
		},
	})
}

// ServiceStarted logs service startup.
func (l *Logger) ServiceStarted(ctx context.Context, version, environment string) {
	l.Log(ctx, &Event{
		Type:      EventServiceStarted,
		Severity:  SeverityInfo,
		ActorType: "system",
		Action:    "service started",
		Outcome:   "success",
		Metadata: map[string]interface{}{
			"version":     version,
			"environment": environment,
		},
	})
}

// ServiceStopping logs service shutdown initiation.
func (l *Logger) ServiceStopping(ctx context.Context, reason string) {
	l.Log(ctx, &Event{
		Type:      EventServiceStopping,
		Severity:  SeverityInfo,
		ActorType: "system",
		Action:    "service stopping",
		Outcome:   "success",
		Reason:    reason,
	})
}
