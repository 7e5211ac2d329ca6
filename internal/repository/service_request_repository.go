package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldops/voicedispatch/internal/domain"
	apperrors "github.com/fieldops/voicedispatch/internal/errors"
)

// ServiceRequestRepository implements domain.ServiceRequestRepository using PostgreSQL.
type ServiceRequestRepository struct {
	pool *pgxpool.Pool
}

// NewServiceRequestRepository creates a new ServiceRequestRepository.
func NewServiceRequestRepository(pool *pgxpool.Pool) *ServiceRequestRepository {
	return &ServiceRequestRepository{pool: pool}
}

// Create inserts a new service request in PENDING status.
func (r *ServiceRequestRepository) Create(ctx context.Context, req *domain.ServiceRequest) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	recsJSON, err := json.Marshal(req.Recommendations)
	if err != nil {
		return apperrors.Wrap(err, "ServiceRequestRepository.Create", apperrors.CodeInternal, "failed to marshal recommendations")
	}

	query := `
		INSERT INTO service_requests (
			id, service_type, description, location, latitude, longitude,
			urgency, preferred_contact, contact_phone, max_budget,
			status, recommendations, booked_provider_id, failure_reason,
			notification_sent_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)`

	_, err = r.pool.Exec(ctx, query,
		req.ID,
		req.ServiceType,
		req.Description,
		req.Location,
		req.Latitude,
		req.Longitude,
		req.Urgency,
		req.PreferredContact,
		req.ContactPhone,
		req.MaxBudget,
		req.Status,
		recsJSON,
		req.BookedProviderID,
		req.FailureReason,
		req.NotificationSentAt,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		return apperrors.DatabaseError("ServiceRequestRepository.Create", err)
	}

	return nil
}

// GetByID retrieves a service request by ID.
func (r *ServiceRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ServiceRequest, error) {
	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT
			id, service_type, description, location, latitude, longitude,
			urgency, preferred_contact, contact_phone, max_budget,
			status, recommendations, booked_provider_id, failure_reason,
			notification_sent_at, created_at, updated_at
		FROM service_requests
		WHERE id = $1`

	return r.scanRequest(ctx, query, id)
}

// UpdateStatus moves a request to a new status, rejecting the write if the
// transition is not allowed by domain.IsValidTransition.
func (r *ServiceRequestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, to domain.RequestStatus, failureReason string) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !domain.IsValidTransition(current.Status, to) {
		return apperrors.InvalidTransition(string(current.Status), string(to))
	}

	query := `
		UPDATE service_requests SET
			status = $2,
			failure_reason = $3,
			updated_at = $4
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, to, failureReason, time.Now().UTC())
	if err != nil {
		return apperrors.DatabaseError("ServiceRequestRepository.UpdateStatus", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFound("service_request")
	}

	return nil
}

// SaveRecommendations persists the Recommender's ranked output and moves the
// request to RECOMMENDED.
func (r *ServiceRequestRepository) SaveRecommendations(ctx context.Context, id uuid.UUID, recs []domain.Recommendation) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !domain.IsValidTransition(current.Status, domain.RequestStatusRecommended) {
		return apperrors.InvalidTransition(string(current.Status), string(domain.RequestStatusRecommended))
	}

	recsJSON, err := json.Marshal(recs)
	if err != nil {
		return apperrors.Wrap(err, "ServiceRequestRepository.SaveRecommendations", apperrors.CodeInternal, "failed to marshal recommendations")
	}

	query := `
		UPDATE service_requests SET
			recommendations = $2,
			status = $3,
			updated_at = $4
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, recsJSON, domain.RequestStatusRecommended, time.Now().UTC())
	if err != nil {
		return apperrors.DatabaseError("ServiceRequestRepository.SaveRecommendations", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFound("service_request")
	}

	return nil
}

// SetBookedProvider records the provider chosen at BOOKING time.
func (r *ServiceRequestRepository) SetBookedProvider(ctx context.Context, id uuid.UUID, providerID uuid.UUID) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	query := `
		UPDATE service_requests SET
			booked_provider_id = $2,
			updated_at = $3
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, providerID, time.Now().UTC())
	if err != nil {
		return apperrors.DatabaseError("ServiceRequestRepository.SetBookedProvider", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFound("service_request")
	}

	return nil
}

// List retrieves service requests with pagination, most recent first.
func (r *ServiceRequestRepository) List(ctx context.Context, limit, offset int) ([]*domain.ServiceRequest, error) {
	ctx, cancel := WithListQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT
			id, service_type, description, location, latitude, longitude,
			urgency, preferred_contact, contact_phone, max_budget,
			status, recommendations, booked_provider_id, failure_reason,
			notification_sent_at, created_at, updated_at
		FROM service_requests
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, apperrors.DatabaseError("ServiceRequestRepository.List", err)
	}
	defer rows.Close()

	var requests []*domain.ServiceRequest
	for rows.Next() {
		req, err := scanRequestRow(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DatabaseError("ServiceRequestRepository.List", err)
	}

	return requests, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *ServiceRequestRepository) scanRequest(ctx context.Context, query string, args ...interface{}) (*domain.ServiceRequest, error) {
	req, err := scanRequestRow(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("service_request")
		}
		return nil, apperrors.DatabaseError("ServiceRequestRepository.scanRequest", err)
	}
	return req, nil
}

func scanRequestRow(row rowScanner) (*domain.ServiceRequest, error) {
	req := &domain.ServiceRequest{}
	var recsJSON []byte

	err := row.Scan(
		&req.ID,
		&req.ServiceType,
		&req.Description,
		&req.Location,
		&req.Latitude,
		&req.Longitude,
		&req.Urgency,
		&req.PreferredContact,
		&req.ContactPhone,
		&req.MaxBudget,
		&req.Status,
		&recsJSON,
		&req.BookedProviderID,
		&req.FailureReason,
		&req.NotificationSentAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(recsJSON) > 0 {
		if err := json.Unmarshal(recsJSON, &req.Recommendations); err != nil {
			return nil, apperrors.Wrap(err, "scanRequestRow", apperrors.CodeInternal, "failed to unmarshal recommendations")
		}
	}

	return req, nil
}
