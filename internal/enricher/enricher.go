// Package enricher runs the background reconciliation retries that
// complete a call whose webhook delivery arrived without full analysis
// data. It polls the vendor on a fixed schedule rather than exponential
// backoff: waits of {3, 5, 8} seconds, each counted from the previous
// poll, so polls land 3, 8 and 16 seconds after the triggering webhook and
// it gives up after 16 seconds.
package enricher

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldops/voicedispatch/internal/domain"
	"github.com/fieldops/voicedispatch/internal/vendor"
)

// Schedule is the fixed set of delays, in order, between successive
// re-polls of the vendor after a webhook delivery; they add up to 16 seconds.
var Schedule = []time.Duration{3 * time.Second, 5 * time.Second, 8 * time.Second}

// VendorPoller is the subset of vendor.Client the enricher depends on.
type VendorPoller interface {
	GetCall(ctx context.Context, callID string) (*vendor.CallEvent, error)
	IsDataComplete(event *vendor.CallEvent) bool
}

// CacheMerger is the subset of cache.Cache the enricher writes to.
type CacheMerger interface {
	Merge(callID string, incoming *domain.CachedEntry) *domain.CachedEntry
	UpdateFetchStatus(callID string, status domain.FetchStatus)
}

// Persister is where a completed call's outcome and log are written once
// enrichment succeeds (or definitively fails).
type Persister interface {
	UpsertProviderCall(ctx context.Context, providerID uuid.UUID, callID string, status domain.CallStatus, data *domain.StructuredCallData) error
	AppendLog(ctx context.Context, log *domain.InteractionLog) error
}

// Sleeper abstracts the delay between retries so tests can run the full
// schedule without waiting in real time.
type Sleeper func(ctx context.Context, d time.Duration) error

// Enricher coordinates the retry schedule.
type Enricher struct {
	vendor    VendorPoller
	cache     CacheMerger
	persister Persister
	sleep     Sleeper
	logger    *zap.Logger
}

// New builds an Enricher.
func New(v VendorPoller, cache CacheMerger, persister Persister, sleep Sleeper, logger *zap.Logger) *Enricher {
	return &Enricher{vendor: v, cache: cache, persister: persister, sleep: sleep, logger: logger.Named("enricher")}
}

// Start launches the retry schedule for callID in the background. metadata
// is the providerId/serviceRequestId correlation pair captured when the
// call was dispatched (echoed back on the triggering webhook event).
// knownStatus/knownData are the terminal status and whatever analysis the
// triggering webhook already carried; if every retry comes back incomplete,
// the give-up path persists these instead of fabricating a failure. It
// never blocks the caller (WebhookIngestor's ack path).
func (e *Enricher) Start(callID string, metadata map[string]interface{}, knownStatus domain.CallStatus, knownData *domain.StructuredCallData) {
	go e.run(context.Background(), callID, metadata, knownStatus, knownData)
}

func (e *Enricher) run(ctx context.Context, callID string, metadata map[string]interface{}, knownStatus domain.CallStatus, knownData *domain.StructuredCallData) {
	providerID, requestID := correlationFromMetadata(metadata)
	e.cache.UpdateFetchStatus(callID, domain.FetchStatusFetching)

	for _, wait := range Schedule {
		if err := e.sleep(ctx, wait); err != nil {
			return
		}

		event, err := e.vendor.GetCall(ctx, callID)
		if err != nil {
			e.logger.Warn("enrichment poll failed, continuing", zap.String("call_id", callID), zap.Error(err))
			continue
		}

		if !e.vendor.IsDataComplete(event) {
			continue
		}

		e.complete(ctx, callID, providerID, requestID, event)
		return
	}

	e.logger.Warn("enrichment exhausted retry schedule without complete data", zap.String("call_id", callID))
	e.cache.UpdateFetchStatus(callID, domain.FetchStatusFetchFailed)

	// The triggering webhook already told us how the call ended -- a
	// no_answer/busy/voicemail call never carries vendor analysis, so it
	// will never satisfy IsDataComplete. Persist the known outcome instead
	// of mis-recording it as a hard failure.
	status := knownStatus
	if status == "" {
		status = domain.CallStatusFailed
	}
	if providerID != uuid.Nil {
		if err := e.persister.UpsertProviderCall(ctx, providerID, callID, status, knownData); err != nil {
			e.logger.Error("upsert provider call failed for partial result", zap.String("call_id", callID), zap.Error(err))
		}
	}
}

func (e *Enricher) complete(ctx context.Context, callID string, providerID, requestID uuid.UUID, event *vendor.CallEvent) {
	merged := e.cache.Merge(callID, &domain.CachedEntry{
		CallID:            callID,
		Status:            event.Status,
		Transcript:        event.Transcript,
		TranscriptEntries: event.TranscriptEntries,
		Data:              event.Data,
	})

	if providerID == uuid.Nil {
		e.logger.Warn("enrichment completed without a providerId to persist against", zap.String("call_id", callID))
		return
	}

	if err := e.persister.UpsertProviderCall(ctx, providerID, callID, event.Status, merged.Data); err != nil {
		e.logger.Error("upsert provider call failed after enrichment", zap.String("call_id", callID), zap.Error(err))
	}

	log := &domain.InteractionLog{
		RequestID:         requestID,
		ProviderID:        providerID,
		CallID:            callID,
		Transcript:        merged.Transcript,
		TranscriptEntries: merged.TranscriptEntries,
		Source:            "webhook",
	}
	if err := e.persister.AppendLog(ctx, log); err != nil {
		e.logger.Error("append log failed after enrichment", zap.String("call_id", callID), zap.Error(err))
	}
}

func correlationFromMetadata(metadata map[string]interface{}) (providerID, requestID uuid.UUID) {
	if metadata == nil {
		return uuid.Nil, uuid.Nil
	}
	if v, ok := metadata["providerId"].(string); ok {
		if id, err := uuid.Parse(v); err == nil {
			providerID = id
		}
	}
	if v, ok := metadata["serviceRequestId"].(string); ok {
		if id, err := uuid.Parse(v); err == nil {
			requestID = id
		}
	}
	return providerID, requestID
}
