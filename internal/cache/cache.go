// Package cache holds the short-lived, in-memory record of a provider call
// while webhook delivery and background polling race to complete it. Entries
// expire after a configurable TTL; a background reaper sweeps expired
// entries so long-idle requests don't accumulate memory.
package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fieldops/voicedispatch/internal/clock"
	"github.com/fieldops/voicedispatch/internal/domain"
)

// Config configures a Cache.
type Config struct {
	// TTL is how long an entry survives without being refreshed.
	TTL time.Duration
	// ReapInterval is how often the background reaper sweeps for expired
	// entries.
	ReapInterval time.Duration
}

// DefaultConfig returns the spec defaults: a 30 minute TTL, reaped every
// 5 minutes.
func DefaultConfig() Config {
	return Config{
		TTL:          30 * time.Minute,
		ReapInterval: 5 * time.Minute,
	}
}

// Store is the cache backend seam. The default backend is the in-memory
// map below; RedisStore (redis_store.go) implements the same contract over
// a shared github.com/redis/go-redis/v9 client so a multi-instance
// deployment can observe one another's webhook/poll results instead of
// each holding its own partial view.
type Store interface {
	Get(callID string) (*domain.CachedEntry, bool)
	Set(callID string, entry *domain.CachedEntry)
	Merge(callID string, incoming *domain.CachedEntry) *domain.CachedEntry
	UpdateFetchStatus(callID string, status domain.FetchStatus)
	Delete(callID string)
	Stats() Stats
	Stop()
}

// Cache is a single-mutex-protected map of callID to CachedEntry. It is safe
// for concurrent use by the webhook ingestor, the enrichment poller, and
// whatever handler serves cache-stats/debug endpoints.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*domain.CachedEntry

	cfg    Config
	clock  clock.Clock
	logger *zap.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Cache and starts its background reaper goroutine. Callers
// must call Stop during shutdown to release the reaper.
func New(cfg Config, clk clock.Clock, logger *zap.Logger) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = DefaultConfig().ReapInterval
	}

	c := &Cache{
		entries: make(map[string]*domain.CachedEntry),
		cfg:     cfg,
		clock:   clk,
		logger:  logger.Named("cache"),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	go c.reapLoop()

	return c
}

// Set creates or replaces the entry for callID, resetting its TTL.
func (c *Cache) Set(callID string, entry *domain.CachedEntry) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry.CallID = callID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	entry.ExpiresAt = now.Add(c.cfg.TTL)
	if entry.FetchStatus == "" {
		entry.FetchStatus = domain.FetchStatusPending
	}

	c.entries[callID] = entry
}

// Get retrieves the entry for callID. The second return value is false if
// no (unexpired) entry exists.
func (c *Cache) Get(callID string) (*domain.CachedEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[callID]
	if !ok {
		return nil, false
	}
	if c.clock.Now().After(entry.ExpiresAt) {
		return nil, false
	}

	copied := *entry
	return &copied, true
}

// UpdateFetchStatus sets the fetch-completeness marker for an entry without
// touching its content, creating the entry if it doesn't exist yet (a poll
// may observe status before any data has arrived).
func (c *Cache) UpdateFetchStatus(callID string, status domain.FetchStatus) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[callID]
	if !ok {
		entry = &domain.CachedEntry{CallID: callID, CreatedAt: now}
		c.entries[callID] = entry
	}
	entry.FetchStatus = status
	entry.UpdatedAt = now
	entry.ExpiresAt = now.Add(c.cfg.TTL)
}

// Merge folds an incoming observation (from a webhook or a poll) into the
// existing entry for callID. Field-wise: the longer transcript wins, data
// fields are unioned (non-zero incoming values override), and once merged
// the fetch status is set to complete. If no entry exists yet, incoming
// becomes the entry.
func (c *Cache) Merge(callID string, incoming *domain.CachedEntry) *domain.CachedEntry {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.entries[callID]
	if !ok {
		incoming.CallID = callID
		incoming.CreatedAt = now
		incoming.UpdatedAt = now
		incoming.ExpiresAt = now.Add(c.cfg.TTL)
		incoming.FetchStatus = domain.FetchStatusComplete
		c.entries[callID] = incoming
		copied := *incoming
		return &copied
	}

	if incoming.Status != "" {
		existing.Status = incoming.Status
	}
	if len(incoming.Transcript) > len(existing.Transcript) {
		existing.Transcript = incoming.Transcript
	}
	if len(incoming.TranscriptEntries) > len(existing.TranscriptEntries) {
		existing.TranscriptEntries = incoming.TranscriptEntries
	}
	existing.Data = mergeData(existing.Data, incoming.Data)

	existing.FetchStatus = domain.FetchStatusComplete
	existing.UpdatedAt = now
	existing.ExpiresAt = now.Add(c.cfg.TTL)

	copied := *existing
	return &copied
}

// mergeData unions two StructuredCallData, preferring non-zero incoming
// values field by field.
func mergeData(base, incoming *domain.StructuredCallData) *domain.StructuredCallData {
	if incoming == nil {
		return base
	}
	if base == nil {
		return incoming
	}

	merged := *base
	if incoming.Availability != "" {
		merged.Availability = incoming.Availability
	}
	if incoming.EstimatedRate != "" {
		merged.EstimatedRate = incoming.EstimatedRate
	}
	if incoming.SinglePersonFound {
		merged.SinglePersonFound = true
	}
	if incoming.TechnicianName != "" {
		merged.TechnicianName = incoming.TechnicianName
	}
	if incoming.AllCriteriaMet {
		merged.AllCriteriaMet = true
	}
	if len(incoming.CriteriaDetails) > 0 {
		merged.CriteriaDetails = incoming.CriteriaDetails
	}
	if incoming.CallOutcome != "" {
		merged.CallOutcome = incoming.CallOutcome
	}
	if incoming.Recommended {
		merged.Recommended = true
	}
	if incoming.Disqualified {
		merged.Disqualified = true
		merged.DisqualificationReason = incoming.DisqualificationReason
	}
	if incoming.EarliestAvailability != "" {
		merged.EarliestAvailability = incoming.EarliestAvailability
	}
	if incoming.Notes != "" {
		merged.Notes = incoming.Notes
	}
	return &merged
}

// Delete removes an entry outright (used by the cache-admin DELETE endpoint).
func (c *Cache) Delete(callID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, callID)
}

// Stats summarizes the current cache contents for the admin/metrics surface.
type Stats struct {
	Size      int
	ByStatus  map[domain.FetchStatus]int
}

// Stats returns a snapshot of cache size and fetch-status breakdown.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{ByStatus: make(map[domain.FetchStatus]int)}
	now := c.clock.Now()
	for _, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			continue
		}
		stats.Size++
		stats.ByStatus[entry.FetchStatus]++
	}
	return stats
}

// Stop halts the background reaper and blocks until it has exited.
func (c *Cache) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

func (c *Cache) reapLoop() {
	defer close(c.doneCh)

	ticker := c.clock.NewTicker(c.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C():
			c.reap()
		}
	}
}

func (c *Cache) reap() {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	reaped := 0
	for callID, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, callID)
			reaped++
		}
	}

	if reaped > 0 {
		c.logger.Debug("reaped expired cache entries",
			zap.Int("count", reaped),
			zap.Int("remaining", len(c.entries)),
		)
	}
}
