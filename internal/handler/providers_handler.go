package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldops/voicedispatch/internal/assistantconfig"
	"github.com/fieldops/voicedispatch/internal/batchcaller"
	"github.com/fieldops/voicedispatch/internal/directcaller"
	"github.com/fieldops/voicedispatch/internal/domain"
)

// BatchRunner is the subset of batchcaller.Caller the providers handler
// depends on.
type BatchRunner interface {
	Run(ctx context.Context, serviceRequestID uuid.UUID, targets []batchcaller.ProviderTarget, maxConcurrent int) []*domain.CallResult
}

// SingleRunner is the subset of directcaller.Caller used for the
// POST /providers/call equivalent.
type SingleRunner interface {
	Run(ctx context.Context, req directcaller.Request) (*domain.CallResult, error)
}

// IdempotencyStore is the subset of repository.IdempotencyRepository the
// providers handler depends on. Replaying POST /providers/batch-call with
// the same serviceRequestId within the TTL window returns the saved
// response instead of re-dispatching calls to providers.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, response []byte, expiresAt time.Time) error
}

// idempotencyTTL bounds how long a batch-call response is replayable for a
// given serviceRequestId.
const idempotencyTTL = 24 * time.Hour

// ProvidersHandler exposes ad hoc batch/single call dispatch outside the
// request-orchestrator lifecycle, per the §6 `/providers/*` surface.
type ProvidersHandler struct {
	batch       BatchRunner
	single      SingleRunner
	idempotency IdempotencyStore

	webhookEnabled bool
	vapiConfigured bool

	logger *zap.Logger
}

// ProvidersHandlerConfig holds configuration for ProvidersHandler.
type ProvidersHandlerConfig struct {
	Batch          BatchRunner
	Single         SingleRunner
	Idempotency    IdempotencyStore
	WebhookEnabled bool
	VapiConfigured bool
	Logger         *zap.Logger
}

// NewProvidersHandler creates a new ProvidersHandler.
func NewProvidersHandler(cfg ProvidersHandlerConfig) *ProvidersHandler {
	if cfg.Logger == nil {
		panic("logger is required")
	}
	return &ProvidersHandler{
		batch:          cfg.Batch,
		single:         cfg.Single,
		idempotency:    cfg.Idempotency,
		webhookEnabled: cfg.WebhookEnabled,
		vapiConfigured: cfg.VapiConfigured,
		logger:         cfg.Logger,
	}
}

// RegisterRoutes registers provider call routes on the router.
func (h *ProvidersHandler) RegisterRoutes(r chi.Router) {
	r.Post("/providers/batch-call", h.HandleBatchCall)
	r.Post("/providers/call", h.HandleSingleCall)
	r.Get("/providers/call/status", h.HandleStatus)
}

// providerInput is one provider to dial, as submitted to either endpoint.
type providerInput struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
}

// batchCallRequest is the POST /providers/batch-call body.
type batchCallRequest struct {
	Providers        []providerInput `json:"providers"`
	ServiceNeeded     string          `json:"serviceNeeded"`
	UserCriteria      string          `json:"userCriteria"`
	Location          string          `json:"location"`
	Urgency           string          `json:"urgency"`
	MaxConcurrent     int             `json:"maxConcurrent"`
	ServiceRequestID  string          `json:"serviceRequestId,omitempty"`
}

// HandleBatchCall dispatches bounded-concurrency calls to a list of
// providers and returns their results in input order.
func (h *ProvidersHandler) HandleBatchCall(w http.ResponseWriter, r *http.Request) {
	var req batchCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, h.logger, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "invalid request body",
		})
		return
	}

	var serviceRequestID uuid.UUID
	if req.ServiceRequestID != "" {
		parsed, err := uuid.Parse(req.ServiceRequestID)
		if err != nil {
			writeJSON(w, h.logger, http.StatusBadRequest, map[string]interface{}{
				"success": false,
				"error":   "invalid serviceRequestId",
			})
			return
		}
		serviceRequestID = parsed

		if h.idempotency != nil {
			if cached, err := h.idempotency.Get(r.Context(), req.ServiceRequestID); err != nil {
				h.logger.Warn("idempotency lookup failed", zap.Error(err))
			} else if cached != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Idempotent-Replay", "true")
				w.WriteHeader(http.StatusOK)
				if _, err := w.Write(cached); err != nil {
					h.logger.Debug("failed to write replayed response", zap.Error(err))
				}
				return
			}
		}
	}

	targets := make([]batchcaller.ProviderTarget, 0, len(req.Providers))
	for _, p := range req.Providers {
		id := uuid.New()
		if p.ID != "" {
			if parsed, err := uuid.Parse(p.ID); err == nil {
				id = parsed
			}
		}
		targets = append(targets, batchcaller.ProviderTarget{
			ProviderID: id,
			ToNumber:   p.PhoneNumber,
			CallInfo: assistantconfig.CallRequest{
				ServiceNeeded: req.ServiceNeeded,
				UserCriteria:  req.UserCriteria,
				Location:      req.Location,
				Urgency:       req.Urgency,
				ProviderName:  p.Name,
				ProviderPhone: p.PhoneNumber,
			},
		})
	}

	results := h.batch.Run(r.Context(), serviceRequestID, targets, req.MaxConcurrent)

	body := map[string]interface{}{
		"success": true,
		"data":    results,
	}

	if h.idempotency != nil && req.ServiceRequestID != "" {
		if encoded, err := json.Marshal(body); err != nil {
			h.logger.Warn("failed to marshal response for idempotency save", zap.Error(err))
		} else if err := h.idempotency.Save(r.Context(), req.ServiceRequestID, encoded, time.Now().Add(idempotencyTTL)); err != nil {
			h.logger.Warn("idempotency save failed", zap.Error(err))
		}
	}

	writeJSON(w, h.logger, http.StatusOK, body)
}

// singleCallRequest is the POST /providers/call body.
type singleCallRequest struct {
	Provider      providerInput `json:"provider"`
	ServiceNeeded string        `json:"serviceNeeded"`
	UserCriteria  string        `json:"userCriteria"`
	Location      string        `json:"location"`
	Urgency       string        `json:"urgency"`
}

// HandleSingleCall dispatches one qualification call outside a batch.
func (h *ProvidersHandler) HandleSingleCall(w http.ResponseWriter, r *http.Request) {
	var req singleCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, h.logger, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "invalid request body",
		})
		return
	}

	result, err := h.single.Run(r.Context(), directcaller.Request{
		ToNumber: req.Provider.PhoneNumber,
		CallInfo: assistantconfig.CallRequest{
			ServiceNeeded: req.ServiceNeeded,
			UserCriteria:  req.UserCriteria,
			Location:      req.Location,
			Urgency:       req.Urgency,
			ProviderName:  req.Provider.Name,
			ProviderPhone: req.Provider.PhoneNumber,
		},
	})
	if err != nil {
		h.logger.Error("single call dispatch failed", zap.Error(err))
		writeJSON(w, h.logger, http.StatusBadGateway, map[string]interface{}{
			"success": false,
			"error":   "call dispatch failed",
		})
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    result,
	})
}

// HandleStatus reports which call-dispatch mode is active.
func (h *ProvidersHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	activeMethod := "polling"
	if h.webhookEnabled {
		activeMethod = "webhook"
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"webhookEnabled": h.webhookEnabled,
		"vapiConfigured": h.vapiConfigured,
		"activeMethod":   activeMethod,
	})
}
