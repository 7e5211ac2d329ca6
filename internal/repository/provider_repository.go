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

// ProviderRepository implements domain.ProviderRepository using PostgreSQL.
type ProviderRepository struct {
	pool *pgxpool.Pool
}

// NewProviderRepository creates a new ProviderRepository.
func NewProviderRepository(pool *pgxpool.Pool) *ProviderRepository {
	return &ProviderRepository{pool: pool}
}

// CreateBatch inserts the providers discovered for a request.
func (r *ProviderRepository) CreateBatch(ctx context.Context, providers []*domain.Provider) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	batch := &pgx.Batch{}
	query := `
		INSERT INTO providers (
			id, request_id, name, phone_number, address, rating, review_count,
			source_url, place_id, distance_miles, hours, is_open_now,
			call_id, call_status, structured_data, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)`

	for _, p := range providers {
		dataJSON, err := json.Marshal(p.StructuredData)
		if err != nil {
			return apperrors.Wrap(err, "ProviderRepository.CreateBatch", apperrors.CodeInternal, "failed to marshal structured data")
		}
		batch.Queue(query,
			p.ID, p.RequestID, p.Name, p.PhoneNumber, p.Address, p.Rating, p.ReviewCount,
			p.SourceURL, p.PlaceID, p.DistanceMiles, p.Hours, p.IsOpenNow,
			p.CallID, p.CallStatus, dataJSON, p.CreatedAt, p.UpdatedAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range providers {
		if _, err := results.Exec(); err != nil {
			return apperrors.DatabaseError("ProviderRepository.CreateBatch", err)
		}
	}

	return nil
}

// GetByID retrieves a provider by ID.
func (r *ProviderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Provider, error) {
	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT
			id, request_id, name, phone_number, address, rating, review_count,
			source_url, place_id, distance_miles, hours, is_open_now,
			call_id, call_status, structured_data,
			booking_confirmed, booking_date, booking_time, confirmation_number,
			created_at, updated_at
		FROM providers
		WHERE id = $1`

	p, err := scanProviderRow(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("provider")
		}
		return nil, apperrors.DatabaseError("ProviderRepository.GetByID", err)
	}
	return p, nil
}

// GetByRequestID retrieves all providers attached to a request.
func (r *ProviderRepository) GetByRequestID(ctx context.Context, requestID uuid.UUID) ([]*domain.Provider, error) {
	ctx, cancel := WithListQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT
			id, request_id, name, phone_number, address, rating, review_count,
			source_url, place_id, distance_miles, hours, is_open_now,
			call_id, call_status, structured_data,
			booking_confirmed, booking_date, booking_time, confirmation_number,
			created_at, updated_at
		FROM providers
		WHERE request_id = $1
		ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, apperrors.DatabaseError("ProviderRepository.GetByRequestID", err)
	}
	defer rows.Close()

	var providers []*domain.Provider
	for rows.Next() {
		p, err := scanProviderRow(rows)
		if err != nil {
			return nil, apperrors.DatabaseError("ProviderRepository.GetByRequestID", err)
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DatabaseError("ProviderRepository.GetByRequestID", err)
	}

	return providers, nil
}

// UpsertProviderCall records or updates a provider's call outcome. It is
// idempotent on CallID: this is an UPDATE keyed on the provider's own ID, so
// redelivery of the same call's webhook or poll result simply overwrites the
// same row.
func (r *ProviderRepository) UpsertProviderCall(ctx context.Context, providerID uuid.UUID, callID string, status domain.CallStatus, data *domain.StructuredCallData) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	dataJSON, err := json.Marshal(data)
	if err != nil {
		return apperrors.Wrap(err, "ProviderRepository.UpsertProviderCall", apperrors.CodeInternal, "failed to marshal structured data")
	}

	query := `
		UPDATE providers SET
			call_id = $2,
			call_status = $3,
			structured_data = $4,
			updated_at = $5
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, providerID, callID, status, dataJSON, time.Now().UTC())
	if err != nil {
		return apperrors.DatabaseError("ProviderRepository.UpsertProviderCall", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFound("provider")
	}

	return nil
}

// UpdateBooking records a confirmed booking against a provider.
func (r *ProviderRepository) UpdateBooking(ctx context.Context, providerID uuid.UUID, bookingDate, bookingTime, confirmationNumber string) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	query := `
		UPDATE providers SET
			booking_confirmed = true,
			booking_date = $2,
			booking_time = $3,
			confirmation_number = $4,
			updated_at = $5
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, providerID, bookingDate, bookingTime, confirmationNumber, time.Now().UTC())
	if err != nil {
		return apperrors.DatabaseError("ProviderRepository.UpdateBooking", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFound("provider")
	}

	return nil
}

func scanProviderRow(row rowScanner) (*domain.Provider, error) {
	p := &domain.Provider{}
	var dataJSON []byte

	err := row.Scan(
		&p.ID,
		&p.RequestID,
		&p.Name,
		&p.PhoneNumber,
		&p.Address,
		&p.Rating,
		&p.ReviewCount,
		&p.SourceURL,
		&p.PlaceID,
		&p.DistanceMiles,
		&p.Hours,
		&p.IsOpenNow,
		&p.CallID,
		&p.CallStatus,
		&dataJSON,
		&p.BookingConfirmed,
		&p.BookingDate,
		&p.BookingTime,
		&p.ConfirmationNumber,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(dataJSON) > 0 {
		p.StructuredData = &domain.StructuredCallData{}
		if err := json.Unmarshal(dataJSON, p.StructuredData); err != nil {
			return nil, apperrors.Wrap(err, "scanProviderRow", apperrors.CodeInternal, "failed to unmarshal structured data")
		}
	}

	return p, nil
}
