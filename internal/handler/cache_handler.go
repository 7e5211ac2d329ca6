package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fieldops/voicedispatch/internal/cache"
	"github.com/fieldops/voicedispatch/internal/domain"
)

// CacheStore is the subset of cache.Cache/cache.RedisStore the cache handler
// depends on.
type CacheStore interface {
	Get(callID string) (*domain.CachedEntry, bool)
	Delete(callID string)
	Stats() cache.Stats
}

// CacheHandler exposes the call cache for debugging and manual eviction.
type CacheHandler struct {
	store  CacheStore
	logger *zap.Logger
}

// CacheHandlerConfig holds configuration for CacheHandler.
type CacheHandlerConfig struct {
	Store  CacheStore
	Logger *zap.Logger
}

// NewCacheHandler creates a new CacheHandler.
func NewCacheHandler(cfg CacheHandlerConfig) *CacheHandler {
	if cfg.Logger == nil {
		panic("logger is required")
	}
	return &CacheHandler{store: cfg.Store, logger: cfg.Logger}
}

// RegisterRoutes registers cache routes on the router.
func (h *CacheHandler) RegisterRoutes(r chi.Router) {
	r.Get("/vapi/calls/{callId}", h.HandleGetCall)
	r.Delete("/vapi/calls/{callId}", h.HandleDeleteCall)
	r.Get("/vapi/cache/stats", h.HandleStats)
}

// HandleGetCall returns the cached CallResult for a call, or 404 if the
// entry has expired or was never written.
func (h *CacheHandler) HandleGetCall(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callId")

	entry, ok := h.store.Get(callID)
	if !ok {
		writeJSON(w, h.logger, http.StatusNotFound, map[string]interface{}{
			"success": false,
			"error":   "call not found",
		})
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": domain.CallResult{
			CallID: entry.CallID,
			Status: statusFromFetch(entry),
			Data:   entry.Data,
		},
	})
}

// HandleDeleteCall evicts a cache entry outright.
func (h *CacheHandler) HandleDeleteCall(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callId")
	h.store.Delete(callID)
	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{"success": true})
}

// HandleStats returns the current cache size and fetch-status breakdown.
func (h *CacheHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := h.store.Stats()
	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"size":     stats.Size,
		"byStatus": stats.ByStatus,
	})
}

func statusFromFetch(entry *domain.CachedEntry) domain.CallStatus {
	if entry.Status != "" {
		return entry.Status
	}
	if entry.FetchStatus == domain.FetchStatusComplete {
		return domain.CallStatusCompleted
	}
	return domain.CallStatusInProgress
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Debug("failed to write response", zap.Error(err))
	}
}
