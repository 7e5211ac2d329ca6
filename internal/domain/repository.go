package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ServiceRequestRepository persists ServiceRequest aggregates and enforces
// the request-status DAG on every status write.
type ServiceRequestRepository interface {
	// Create inserts a new service request in PENDING status.
	Create(ctx context.Context, req *ServiceRequest) error

	// GetByID retrieves a service request by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*ServiceRequest, error)

	// UpdateStatus moves a request to a new status. Implementations must
	// reject the call with an InvalidTransition error if domain.IsValidTransition
	// does not allow the edge.
	UpdateStatus(ctx context.Context, id uuid.UUID, to RequestStatus, failureReason string) error

	// SaveRecommendations persists the Recommender's ranked output and moves
	// the request to RECOMMENDED.
	SaveRecommendations(ctx context.Context, id uuid.UUID, recs []Recommendation) error

	// SetBookedProvider records the provider chosen at BOOKING time.
	SetBookedProvider(ctx context.Context, id uuid.UUID, providerID uuid.UUID) error

	// List retrieves service requests with pagination, most recent first.
	List(ctx context.Context, limit, offset int) ([]*ServiceRequest, error)
}

// ProviderRepository persists Provider candidates and their call outcomes.
type ProviderRepository interface {
	// CreateBatch inserts the providers discovered for a request.
	CreateBatch(ctx context.Context, providers []*Provider) error

	// GetByID retrieves a provider by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*Provider, error)

	// GetByRequestID retrieves all providers attached to a request.
	GetByRequestID(ctx context.Context, requestID uuid.UUID) ([]*Provider, error)

	// UpsertProviderCall records or updates a provider's call outcome. It is
	// idempotent on CallID: re-delivery of the same call's webhook or poll
	// result updates the existing row rather than creating a duplicate.
	UpsertProviderCall(ctx context.Context, providerID uuid.UUID, callID string, status CallStatus, data *StructuredCallData) error

	// UpdateBooking records a confirmed booking against a provider: the
	// confirmed date/time and, if given, a confirmation number.
	UpdateBooking(ctx context.Context, providerID uuid.UUID, bookingDate, bookingTime, confirmationNumber string) error
}

// InteractionLogRepository persists the raw transcript/recording record of
// each provider call.
type InteractionLogRepository interface {
	// AppendLog inserts a log entry. Duplicate delivery for the same CallID
	// is expected (webhook and poll both observe the same event) and must
	// not produce an error; the unique partial index on call_id absorbs it.
	AppendLog(ctx context.Context, log *InteractionLog) error

	// ListByRequestID retrieves every logged interaction for a request.
	ListByRequestID(ctx context.Context, requestID uuid.UUID) ([]*InteractionLog, error)
}

// IdempotencyRepository persists idempotency keys for outbound call-dispatch
// endpoints so retried client requests are not double-executed.
type IdempotencyRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, response []byte, expiresAt time.Time) error
	CleanupExpired(ctx context.Context) error
}
