// Package directcaller runs the lifecycle of a single outbound qualification
// or booking call: build the assistant config, dispatch it to the vendor,
// await a terminal result via whichever observer gets there first (webhook
// delivery into the shared cache, or direct vendor polling), and hand back a
// normalized CallResult. It never raises on timeout or cancellation -- both
// produce a CallResult with a terminal-but-unsuccessful status.
package directcaller

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldops/voicedispatch/internal/assistantconfig"
	"github.com/fieldops/voicedispatch/internal/domain"
	"github.com/fieldops/voicedispatch/internal/vendor"
)

// Default polling cadence per spec: every 5s, up to 60 attempts (5 minutes).
const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxAttempts  = 60
)

// VendorCaller is the subset of vendor.Client DirectCaller depends on.
type VendorCaller interface {
	StartCall(ctx context.Context, req vendor.StartCallRequest) (*vendor.StartCallResponse, error)
	GetCall(ctx context.Context, callID string) (*vendor.CallEvent, error)
	IsDataComplete(event *vendor.CallEvent) bool
}

// CacheReader is the subset of cache.Cache DirectCaller depends on when
// running in webhook mode: it observes results WebhookIngestor wrote rather
// than polling the vendor directly.
type CacheReader interface {
	Get(callID string) (*domain.CachedEntry, bool)
}

// ProviderUpserter is the subset of domain.ProviderRepository DirectCaller
// writes to directly when webhook mode is off (webhook mode instead relies
// on WebhookIngestor/Enricher to persist).
type ProviderUpserter interface {
	UpsertProviderCall(ctx context.Context, providerID uuid.UUID, callID string, status domain.CallStatus, data *domain.StructuredCallData) error
}

// Config configures a Caller.
type Config struct {
	PollInterval time.Duration
	MaxAttempts  int

	// WebhookURL, when non-empty and the Request carries a ProviderID or
	// ServiceRequestID, is embedded as the assistant's serverUrl and switches
	// DirectCaller into webhook-mode polling of the cache instead of polling
	// the vendor directly.
	WebhookURL string
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

// Caller runs single-call lifecycles.
type Caller struct {
	cfg      Config
	vendor   VendorCaller
	cache    CacheReader
	upserter ProviderUpserter
	sleeper  func(ctx context.Context, d time.Duration) error
	logger   *zap.Logger
}

// New builds a Caller. sleep is the function used to wait between poll
// attempts; pass a clock-backed implementation so tests can avoid real
// delays (e.g. a function that blocks on clock.Clock.After but returns
// immediately under a mock clock).
func New(cfg Config, vc VendorCaller, cache CacheReader, upserter ProviderUpserter, sleep func(ctx context.Context, d time.Duration) error, logger *zap.Logger) *Caller {
	return &Caller{
		cfg:      cfg.withDefaults(),
		vendor:   vc,
		cache:    cache,
		upserter: upserter,
		sleeper:  sleep,
		logger:   logger.Named("directcaller"),
	}
}

// Request describes the single call to place.
type Request struct {
	ToNumber string
	CallInfo assistantconfig.CallRequest

	// ProviderID and ServiceRequestID, when set, let DirectCaller persist
	// directly in non-webhook mode (webhook mode persists via
	// WebhookIngestor/Enricher instead).
	ProviderID       uuid.UUID
	ServiceRequestID uuid.UUID
}

// Run executes the full call lifecycle and returns a CallResult. It never
// returns an error for call-scoped failures (vendor errors, timeouts,
// cancellation); those are reported as CallResult.Status/Err instead. A
// non-nil error return means the call could not even be dispatched.
func (c *Caller) Run(ctx context.Context, req Request) (*domain.CallResult, error) {
	webhookMode := c.cfg.WebhookURL != "" && (req.ProviderID != uuid.Nil || req.ServiceRequestID != uuid.Nil)

	callInfo := req.CallInfo
	if req.ProviderID != uuid.Nil {
		callInfo.ProviderID = req.ProviderID.String()
	}
	if req.ServiceRequestID != uuid.Nil {
		callInfo.ServiceRequestID = req.ServiceRequestID.String()
	}

	serverURL := ""
	if webhookMode {
		serverURL = c.cfg.WebhookURL
	}
	assistantCfg := assistantconfig.Build(callInfo, serverURL)

	startResp, err := c.vendor.StartCall(ctx, vendor.StartCallRequest{
		ToNumber:     req.ToNumber,
		FirstMessage: assistantCfg.FirstMessage,
		SystemPrompt: assistantCfg.Model.Messages[0]["content"],
		Metadata:     assistantCfg.Metadata,
	})
	if err != nil {
		return nil, err
	}

	var result *domain.CallResult
	if webhookMode {
		result = c.awaitViaCache(ctx, startResp.CallID)
	} else {
		result = c.awaitViaPolling(ctx, startResp.CallID)
	}
	result.ProviderID = req.ProviderID

	if !webhookMode && req.ProviderID != uuid.Nil {
		if err := c.upserter.UpsertProviderCall(ctx, req.ProviderID, result.CallID, result.Status, result.Data); err != nil {
			c.logger.Error("upsert provider call failed",
				zap.String("call_id", result.CallID), zap.Error(err))
		}
	}

	return result, nil
}

// awaitViaCache polls the shared cache, written to by WebhookIngestor, and
// returns the cached result on its first hit -- partial or complete. The
// enrichment loop is responsible for eventually completing the record; this
// caller's job is only to unblock the batch once the first observation
// lands.
func (c *Caller) awaitViaCache(ctx context.Context, callID string) *domain.CallResult {
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if entry, ok := c.cache.Get(callID); ok {
			return cachedEntryToResult(callID, entry)
		}
		if err := c.sleeper(ctx, c.cfg.PollInterval); err != nil {
			return &domain.CallResult{CallID: callID, Status: domain.CallStatusTimeout, Err: "cancelled"}
		}
	}
	c.logger.Warn("webhook mode poll exhausted without a cache hit", zap.String("call_id", callID))
	return &domain.CallResult{CallID: callID, Status: domain.CallStatusTimeout}
}

// awaitViaPolling polls the vendor directly until the call reaches a
// terminal status, per §4.3 GetCall/IsDataComplete.
func (c *Caller) awaitViaPolling(ctx context.Context, callID string) *domain.CallResult {
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		event, err := c.vendor.GetCall(ctx, callID)
		if err != nil {
			c.logger.Warn("vendor poll error, continuing", zap.String("call_id", callID), zap.Error(err))
		} else if event.Status.IsTerminal() {
			return &domain.CallResult{CallID: callID, Status: event.Status, Data: event.Data}
		}
		if err := c.sleeper(ctx, c.cfg.PollInterval); err != nil {
			return &domain.CallResult{CallID: callID, Status: domain.CallStatusTimeout, Err: "cancelled"}
		}
	}
	c.logger.Warn("polling exhausted before reaching a terminal status", zap.String("call_id", callID))
	return &domain.CallResult{CallID: callID, Status: domain.CallStatusTimeout}
}

func cachedEntryToResult(callID string, entry *domain.CachedEntry) *domain.CallResult {
	status := entry.Status
	if status == "" {
		status = domain.CallStatusInProgress
	}
	return &domain.CallResult{CallID: callID, Status: status, Data: entry.Data}
}

// Sleep is a clock-backed implementation of the sleeper function, honoring
// context cancellation.
func Sleep(clk interface {
	After(d time.Duration) <-chan time.Time
}) func(ctx context.Context, d time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		select {
		case <-clk.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
