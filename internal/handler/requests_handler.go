package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldops/voicedispatch/internal/assistantconfig"
	"github.com/fieldops/voicedispatch/internal/domain"
)

// RequestRepository is the subset of domain.ServiceRequestRepository the
// requests handler depends on.
type RequestRepository interface {
	Create(ctx context.Context, req *domain.ServiceRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ServiceRequest, error)
	List(ctx context.Context, limit, offset int) ([]*domain.ServiceRequest, error)
}

// RequestDriver advances a ServiceRequest through the orchestrator state
// machine and carries out the booking-selection transition.
type RequestDriver interface {
	Advance(ctx context.Context, requestID uuid.UUID) error
	SelectProvider(ctx context.Context, requestID, providerID uuid.UUID, booking assistantconfig.BookingContext) error
}

// BookingLimiter throttles repeated provider-selection attempts against
// the same service request, since each one dispatches a real confirmation
// call through the vendor.
type BookingLimiter interface {
	Check(ip, requestID string) bool
}

// EventLogger records business events for search/BI/audit consumption,
// independent of the request/response cycle.
type EventLogger interface {
	RequestCreated(ctx context.Context, requestID uuid.UUID, serviceType, urgency string)
}

// RequestsHandler exposes ServiceRequest submission, lookup, and provider
// selection. HandleCreate starts Advance in a background goroutine and
// responds 202 without waiting for it; this system has no separate job
// queue for it (§4.9's driver loop is just a function call).
type RequestsHandler struct {
	requests RequestRepository
	driver   RequestDriver
	booking  BookingLimiter
	events   EventLogger
	logger   *zap.Logger
}

// RequestsHandlerConfig holds configuration for RequestsHandler.
type RequestsHandlerConfig struct {
	Requests RequestRepository
	Driver   RequestDriver
	Booking  BookingLimiter
	Events   EventLogger
	Logger   *zap.Logger
}

// NewRequestsHandler creates a new RequestsHandler.
func NewRequestsHandler(cfg RequestsHandlerConfig) *RequestsHandler {
	if cfg.Logger == nil {
		panic("logger is required")
	}
	return &RequestsHandler{
		requests: cfg.Requests,
		driver:   cfg.Driver,
		booking:  cfg.Booking,
		events:   cfg.Events,
		logger:   cfg.Logger,
	}
}

// RegisterRoutes registers service-request routes on the router.
func (h *RequestsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/requests", h.HandleCreate)
	r.Get("/requests", h.HandleList)
	r.Get("/requests/{requestId}", h.HandleGet)
	r.Post("/requests/{requestId}/select-provider", h.HandleSelectProvider)
}

type createRequestBody struct {
	ServiceType      string   `json:"serviceType"`
	Description      string   `json:"description"`
	Location         string   `json:"location"`
	Latitude         float64  `json:"latitude,omitempty"`
	Longitude        float64  `json:"longitude,omitempty"`
	Urgency          string   `json:"urgency"`
	PreferredContact string   `json:"preferredContact"`
	ContactPhone     string   `json:"contactPhone,omitempty"`
	MaxBudget        *float64 `json:"maxBudget,omitempty"`
}

// HandleCreate submits a new ServiceRequest and kicks off the orchestrator
// driver loop in the background; the response returns immediately with the
// request in PENDING (or whatever status Advance has reached by the time
// the caller polls GET /requests/{requestId}).
func (h *RequestsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, h.logger, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "invalid request body",
		})
		return
	}

	req := &domain.ServiceRequest{
		ID:               uuid.New(),
		ServiceType:      body.ServiceType,
		Description:      body.Description,
		Location:         body.Location,
		Latitude:         body.Latitude,
		Longitude:        body.Longitude,
		Urgency:          domain.Urgency(body.Urgency),
		PreferredContact: domain.PreferredContact(body.PreferredContact),
		ContactPhone:     body.ContactPhone,
		MaxBudget:        body.MaxBudget,
		Status:           domain.RequestStatusPending,
	}

	if err := h.requests.Create(r.Context(), req); err != nil {
		h.logger.Error("creating service request failed", zap.Error(err))
		writeJSON(w, h.logger, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   "failed to create service request",
		})
		return
	}

	if h.events != nil {
		h.events.RequestCreated(r.Context(), req.ID, req.ServiceType, string(req.Urgency))
	}

	go func() {
		if err := h.driver.Advance(context.Background(), req.ID); err != nil {
			h.logger.Error("advancing service request failed", zap.String("request_id", req.ID.String()), zap.Error(err))
		}
	}()

	writeJSON(w, h.logger, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"data":    req,
	})
}

// HandleGet retrieves a single service request.
func (h *RequestsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "requestId"))
	if err != nil {
		writeJSON(w, h.logger, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "invalid request id",
		})
		return
	}

	req, err := h.requests.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, h.logger, http.StatusNotFound, map[string]interface{}{
			"success": false,
			"error":   "service request not found",
		})
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    req,
	})
}

// HandleList returns service requests, most recent first.
func (h *RequestsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := 20
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}

	requests, err := h.requests.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("listing service requests failed", zap.Error(err))
		writeJSON(w, h.logger, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   "failed to list service requests",
		})
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    requests,
	})
}

type selectProviderBody struct {
	ProviderID    string `json:"providerId"`
	PreferredDate string `json:"preferredDate,omitempty"`
	PreferredTime string `json:"preferredTime,omitempty"`
	CustomerName  string `json:"customerName,omitempty"`
}

// HandleSelectProvider moves a RECOMMENDED request into BOOKING and runs
// the confirmation call synchronously.
func (h *RequestsHandler) HandleSelectProvider(w http.ResponseWriter, r *http.Request) {
	requestID, err := uuid.Parse(chi.URLParam(r, "requestId"))
	if err != nil {
		writeJSON(w, h.logger, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "invalid request id",
		})
		return
	}

	if h.booking != nil && !h.booking.Check(r.RemoteAddr, requestID.String()) {
		writeJSON(w, h.logger, http.StatusTooManyRequests, map[string]interface{}{
			"success": false,
			"error":   "too many booking attempts for this request, try again later",
		})
		return
	}

	var body selectProviderBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, h.logger, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "invalid request body",
		})
		return
	}

	providerID, err := uuid.Parse(body.ProviderID)
	if err != nil {
		writeJSON(w, h.logger, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "invalid provider id",
		})
		return
	}

	booking := assistantconfig.BookingContext{
		PreferredDate: body.PreferredDate,
		PreferredTime: body.PreferredTime,
		CustomerName:  body.CustomerName,
	}

	if err := h.driver.SelectProvider(r.Context(), requestID, providerID, booking); err != nil {
		h.logger.Warn("select provider failed", zap.String("request_id", requestID.String()), zap.Error(err))
		writeJSON(w, h.logger, http.StatusConflict, map[string]interface{}{
			"success": false,
			"error":   "unable to select provider",
		})
		return
	}

	req, err := h.requests.GetByID(r.Context(), requestID)
	if err != nil {
		writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{"success": true})
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    req,
	})
}
