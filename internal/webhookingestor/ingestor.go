// Package webhookingestor handles inbound vendor webhooks. It always
// acknowledges with 200: a malformed or unvalidatable payload is logged and
// dropped rather than rejected, because a 4xx here would make the vendor
// retry delivery of an event that is already a duplicate from its point of
// view.
package webhookingestor

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/fieldops/voicedispatch/internal/domain"
	"github.com/fieldops/voicedispatch/internal/vendor"
)

// WebhookVendor is the subset of vendor.Client the ingestor depends on.
type WebhookVendor interface {
	ValidateWebhook(r *http.Request) bool
	ParseWebhook(r *http.Request) (*vendor.CallEvent, error)
}

// CacheWriter is the subset of cache.Cache the ingestor writes to.
type CacheWriter interface {
	Set(callID string, entry *domain.CachedEntry)
}

// EnrichmentStarter kicks off the background reconciliation retries for a
// call whose webhook delivery was incomplete. knownStatus/knownData are the
// terminal status and whatever analysis the triggering webhook already
// carried, so that if enrichment exhausts its retry schedule without ever
// observing complete data, it still has something real to persist instead
// of guessing.
type EnrichmentStarter interface {
	Start(callID string, metadata map[string]interface{}, knownStatus domain.CallStatus, knownData *domain.StructuredCallData)
}

// Ingestor is an http.Handler for the vendor webhook endpoint.
type Ingestor struct {
	vendor   WebhookVendor
	cache    CacheWriter
	enricher EnrichmentStarter
	logger   *zap.Logger
}

// New builds an Ingestor.
func New(v WebhookVendor, cache CacheWriter, enricher EnrichmentStarter, logger *zap.Logger) *Ingestor {
	return &Ingestor{vendor: v, cache: cache, enricher: enricher, logger: logger.Named("webhookingestor")}
}

// ServeHTTP implements the always-200 webhook contract.
func (i *Ingestor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !i.vendor.ValidateWebhook(r) {
		i.logger.Warn("webhook signature validation failed", zap.String("remote_addr", r.RemoteAddr))
		ack(w)
		return
	}

	event, err := i.vendor.ParseWebhook(r)
	if err != nil {
		i.logger.Warn("webhook payload parse failed", zap.Error(err))
		ack(w)
		return
	}

	i.Handle(event)
	ack(w)
}

// Handle applies a parsed CallEvent to the cache and, if the call just
// reached a terminal status, kicks off background enrichment. It is
// exported separately from ServeHTTP so tests and any non-HTTP delivery path
// can drive it directly.
func (i *Ingestor) Handle(event *vendor.CallEvent) {
	if event.CallID == "" {
		i.logger.Warn("webhook event carried no call id")
		return
	}

	entry := &domain.CachedEntry{
		CallID:            event.CallID,
		Status:            event.Status,
		Transcript:        event.Transcript,
		TranscriptEntries: event.TranscriptEntries,
		Data:              event.Data,
		FetchStatus:       domain.FetchStatusPartial,
	}
	i.cache.Set(event.CallID, entry)

	if event.Status.IsTerminal() {
		i.enricher.Start(event.CallID, event.Metadata, event.Status, event.Data)
	}
}

func ack(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"success":true}`))
}
