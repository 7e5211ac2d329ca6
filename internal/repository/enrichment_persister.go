package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/fieldops/voicedispatch/internal/domain"
)

// EnrichmentPersister satisfies enricher.Persister by combining the two
// repositories a completed enrichment writes to: the provider's call
// outcome and the raw interaction log.
type EnrichmentPersister struct {
	Providers *ProviderRepository
	Logs      *InteractionLogRepository
}

// NewEnrichmentPersister builds a combined persister for the enricher.
func NewEnrichmentPersister(providers *ProviderRepository, logs *InteractionLogRepository) *EnrichmentPersister {
	return &EnrichmentPersister{Providers: providers, Logs: logs}
}

// UpsertProviderCall delegates to the provider repository.
func (p *EnrichmentPersister) UpsertProviderCall(ctx context.Context, providerID uuid.UUID, callID string, status domain.CallStatus, data *domain.StructuredCallData) error {
	return p.Providers.UpsertProviderCall(ctx, providerID, callID, status, data)
}

// AppendLog delegates to the interaction log repository.
func (p *EnrichmentPersister) AppendLog(ctx context.Context, log *domain.InteractionLog) error {
	return p.Logs.AppendLog(ctx, log)
}
