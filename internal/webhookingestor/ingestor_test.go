package webhookingestor

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/fieldops/voicedispatch/internal/domain"
	"github.com/fieldops/voicedispatch/internal/vendor"
)

type fakeVendor struct {
	valid      bool
	event      *vendor.CallEvent
	parseErr   error
	parseCalls int
}

func (f *fakeVendor) ValidateWebhook(r *http.Request) bool { return f.valid }

func (f *fakeVendor) ParseWebhook(r *http.Request) (*vendor.CallEvent, error) {
	f.parseCalls++
	return f.event, f.parseErr
}

type fakeCache struct {
	entries map[string]*domain.CachedEntry
}

func (f *fakeCache) Set(callID string, entry *domain.CachedEntry) {
	if f.entries == nil {
		f.entries = map[string]*domain.CachedEntry{}
	}
	f.entries[callID] = entry
}

type fakeEnricher struct {
	started      []string
	startStatus  domain.CallStatus
	startData    *domain.StructuredCallData
}

func (f *fakeEnricher) Start(callID string, metadata map[string]interface{}, knownStatus domain.CallStatus, knownData *domain.StructuredCallData) {
	f.started = append(f.started, callID)
	f.startStatus = knownStatus
	f.startData = knownData
}

func TestServeHTTPReturns200OnInvalidSignature(t *testing.T) {
	v := &fakeVendor{valid: false}
	i := New(v, &fakeCache{}, &fakeEnricher{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/vapi/webhook", nil)
	rec := httptest.NewRecorder()
	i.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, expected 200 even on invalid signature", rec.Code)
	}
	if v.parseCalls != 0 {
		t.Error("expected ParseWebhook not to be called when signature is invalid")
	}
}

func TestServeHTTPReturns200OnMalformedPayload(t *testing.T) {
	v := &fakeVendor{valid: true, parseErr: errParse{}}
	i := New(v, &fakeCache{}, &fakeEnricher{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/vapi/webhook", nil)
	rec := httptest.NewRecorder()
	i.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, expected 200 even on malformed payload", rec.Code)
	}
}

type errParse struct{}

func (errParse) Error() string { return "bad payload" }

func TestHandleSetsCacheAndStartsEnrichmentOnTerminalStatus(t *testing.T) {
	cache := &fakeCache{}
	enricher := &fakeEnricher{}
	v := &fakeVendor{valid: true}
	i := New(v, cache, enricher, zap.NewNop())

	i.Handle(&vendor.CallEvent{
		CallID: "call-1",
		Status: domain.CallStatusCompleted,
		Data:   &domain.StructuredCallData{Recommended: true},
	})

	entry, ok := cache.entries["call-1"]
	if !ok {
		t.Fatal("expected cache entry to be set")
	}
	if entry.FetchStatus != domain.FetchStatusPartial {
		t.Errorf("FetchStatus = %q, expected partial immediately after webhook", entry.FetchStatus)
	}
	if entry.Status != domain.CallStatusCompleted {
		t.Errorf("entry.Status = %q, expected the webhook's terminal status to be cached immediately", entry.Status)
	}
	if len(enricher.started) != 1 || enricher.started[0] != "call-1" {
		t.Errorf("expected enrichment started for call-1, got %v", enricher.started)
	}
	if enricher.startStatus != domain.CallStatusCompleted {
		t.Errorf("enrichment started with status %q, expected the already-known terminal status", enricher.startStatus)
	}
}

func TestHandleDoesNotStartEnrichmentForNonTerminalStatus(t *testing.T) {
	cache := &fakeCache{}
	enricher := &fakeEnricher{}
	v := &fakeVendor{valid: true}
	i := New(v, cache, enricher, zap.NewNop())

	i.Handle(&vendor.CallEvent{CallID: "call-1", Status: domain.CallStatusInProgress})

	if len(enricher.started) != 0 {
		t.Errorf("expected no enrichment for an in-progress status update, got %v", enricher.started)
	}
	if _, ok := cache.entries["call-1"]; !ok {
		t.Error("expected the in-progress status to still be cached")
	}
}

func TestHandleIgnoresEventWithoutCallID(t *testing.T) {
	cache := &fakeCache{}
	i := New(&fakeVendor{valid: true}, cache, &fakeEnricher{}, zap.NewNop())

	i.Handle(&vendor.CallEvent{Status: domain.CallStatusInProgress})

	if len(cache.entries) != 0 {
		t.Error("expected no cache write for an event without a call id")
	}
}
