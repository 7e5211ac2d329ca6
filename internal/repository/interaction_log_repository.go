package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldops/voicedispatch/internal/domain"
	apperrors "github.com/fieldops/voicedispatch/internal/errors"
)

// InteractionLogRepository implements domain.InteractionLogRepository using PostgreSQL.
type InteractionLogRepository struct {
	pool *pgxpool.Pool
}

// NewInteractionLogRepository creates a new InteractionLogRepository.
func NewInteractionLogRepository(pool *pgxpool.Pool) *InteractionLogRepository {
	return &InteractionLogRepository{pool: pool}
}

// AppendLog inserts a log entry. Webhook delivery and background polling can
// both observe the same terminal call event; the unique partial index on
// call_id (see migrations) absorbs the second insert as a no-op rather than
// a constraint violation.
func (r *InteractionLogRepository) AppendLog(ctx context.Context, log *domain.InteractionLog) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	entriesJSON, err := json.Marshal(log.TranscriptEntries)
	if err != nil {
		return apperrors.Wrap(err, "InteractionLogRepository.AppendLog", apperrors.CodeInternal, "failed to marshal transcript entries")
	}

	query := `
		INSERT INTO interaction_logs (
			id, request_id, provider_id, call_id, transcript, transcript_entries,
			recording_url, duration_secs, raw_payload, source, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
		ON CONFLICT (call_id) WHERE call_id != '' DO NOTHING`

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}

	_, err = r.pool.Exec(ctx, query,
		log.ID,
		log.RequestID,
		log.ProviderID,
		log.CallID,
		log.Transcript,
		entriesJSON,
		log.RecordingURL,
		log.DurationSecs,
		log.RawPayload,
		log.Source,
		log.CreatedAt,
	)
	if err != nil {
		return apperrors.DatabaseError("InteractionLogRepository.AppendLog", err)
	}

	return nil
}

// ListByRequestID retrieves every logged interaction for a request.
func (r *InteractionLogRepository) ListByRequestID(ctx context.Context, requestID uuid.UUID) ([]*domain.InteractionLog, error) {
	ctx, cancel := WithListQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT
			id, request_id, provider_id, call_id, transcript, transcript_entries,
			recording_url, duration_secs, raw_payload, source, created_at
		FROM interaction_logs
		WHERE request_id = $1
		ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, apperrors.DatabaseError("InteractionLogRepository.ListByRequestID", err)
	}
	defer rows.Close()

	var logs []*domain.InteractionLog
	for rows.Next() {
		log := &domain.InteractionLog{}
		var entriesJSON []byte

		err := rows.Scan(
			&log.ID,
			&log.RequestID,
			&log.ProviderID,
			&log.CallID,
			&log.Transcript,
			&entriesJSON,
			&log.RecordingURL,
			&log.DurationSecs,
			&log.RawPayload,
			&log.Source,
			&log.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.DatabaseError("InteractionLogRepository.ListByRequestID", err)
		}

		if len(entriesJSON) > 0 {
			if err := json.Unmarshal(entriesJSON, &log.TranscriptEntries); err != nil {
				return nil, apperrors.Wrap(err, "InteractionLogRepository.ListByRequestID", apperrors.CodeInternal, "failed to unmarshal transcript entries")
			}
		}

		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DatabaseError("InteractionLogRepository.ListByRequestID", err)
	}

	return logs, nil
}
