package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldops/voicedispatch/internal/assistantconfig"
	"github.com/fieldops/voicedispatch/internal/domain"
)

// mockRequestRepository implements RequestRepository for testing.
type mockRequestRepository struct {
	createErr error

	getReq *domain.ServiceRequest
	getErr error

	listReqs []*domain.ServiceRequest
	listErr  error

	created *domain.ServiceRequest
}

func (m *mockRequestRepository) Create(ctx context.Context, req *domain.ServiceRequest) error {
	m.created = req
	return m.createErr
}

func (m *mockRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ServiceRequest, error) {
	return m.getReq, m.getErr
}

func (m *mockRequestRepository) List(ctx context.Context, limit, offset int) ([]*domain.ServiceRequest, error) {
	return m.listReqs, m.listErr
}

// mockRequestDriver implements RequestDriver for testing.
type mockRequestDriver struct {
	advanceErr error

	selectProviderErr   error
	selectedRequestID   uuid.UUID
	selectedProviderID  uuid.UUID
	selectedBooking     assistantconfig.BookingContext
}

func (m *mockRequestDriver) Advance(ctx context.Context, requestID uuid.UUID) error {
	return m.advanceErr
}

func (m *mockRequestDriver) SelectProvider(ctx context.Context, requestID, providerID uuid.UUID, booking assistantconfig.BookingContext) error {
	m.selectedRequestID = requestID
	m.selectedProviderID = providerID
	m.selectedBooking = booking
	return m.selectProviderErr
}

// mockBookingLimiter implements BookingLimiter for testing.
type mockBookingLimiter struct {
	allow bool
}

func (m *mockBookingLimiter) Check(ip, requestID string) bool {
	return m.allow
}

// mockEventLogger implements EventLogger for testing.
type mockEventLogger struct {
	calls int
	lastRequestID uuid.UUID
	lastServiceType string
	lastUrgency string
}

func (m *mockEventLogger) RequestCreated(ctx context.Context, requestID uuid.UUID, serviceType, urgency string) {
	m.calls++
	m.lastRequestID = requestID
	m.lastServiceType = serviceType
	m.lastUrgency = urgency
}

func newTestRequestsHandler(repo *mockRequestRepository, driver *mockRequestDriver, booking BookingLimiter, events EventLogger) *RequestsHandler {
	return NewRequestsHandler(RequestsHandlerConfig{
		Requests: repo,
		Driver:   driver,
		Booking:  booking,
		Events:   events,
		Logger:   zap.NewNop(),
	})
}

func TestRequestsHandler_HandleCreate_Success(t *testing.T) {
	repo := &mockRequestRepository{}
	driver := &mockRequestDriver{}
	events := &mockEventLogger{}
	h := newTestRequestsHandler(repo, driver, nil, events)

	body := `{"serviceType":"plumbing","location":"Austin, TX","urgency":"immediate","preferredContact":"phone"}`
	req := httptest.NewRequest(http.MethodPost, "/requests", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()

	h.HandleCreate(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, rr.Code)
	}
	if repo.created == nil {
		t.Fatal("expected request to be created")
	}
	if repo.created.ServiceType != "plumbing" {
		t.Errorf("expected service type 'plumbing', got %q", repo.created.ServiceType)
	}
	if repo.created.Status != domain.RequestStatusPending {
		t.Errorf("expected status pending, got %q", repo.created.Status)
	}
}

func TestRequestsHandler_HandleCreate_NotifiesEventLogger(t *testing.T) {
	repo := &mockRequestRepository{}
	driver := &mockRequestDriver{}
	events := &mockEventLogger{}
	h := newTestRequestsHandler(repo, driver, nil, events)

	body := `{"serviceType":"electrical","urgency":"within_24h"}`
	req := httptest.NewRequest(http.MethodPost, "/requests", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()

	h.HandleCreate(rr, req)

	if events.calls != 1 {
		t.Fatalf("expected RequestCreated to be called once, got %d", events.calls)
	}
	if events.lastServiceType != "electrical" {
		t.Errorf("expected service type 'electrical', got %q", events.lastServiceType)
	}
	if events.lastUrgency != "within_24h" {
		t.Errorf("expected urgency 'within_24h', got %q", events.lastUrgency)
	}
}

func TestRequestsHandler_HandleCreate_InvalidBody(t *testing.T) {
	h := newTestRequestsHandler(&mockRequestRepository{}, &mockRequestDriver{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/requests", bytes.NewBufferString("{invalid"))
	rr := httptest.NewRecorder()

	h.HandleCreate(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestRequestsHandler_HandleCreate_RepositoryError(t *testing.T) {
	repo := &mockRequestRepository{createErr: errors.New("db unavailable")}
	h := newTestRequestsHandler(repo, &mockRequestDriver{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/requests", bytes.NewBufferString(`{"serviceType":"hvac"}`))
	rr := httptest.NewRecorder()

	h.HandleCreate(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, rr.Code)
	}
}

func TestRequestsHandler_HandleGet_Success(t *testing.T) {
	requestID := uuid.New()
	repo := &mockRequestRepository{getReq: &domain.ServiceRequest{ID: requestID, ServiceType: "plumbing"}}
	h := newTestRequestsHandler(repo, &mockRequestDriver{}, nil, nil)

	r := chi.NewRouter()
	r.Get("/requests/{requestId}", h.HandleGet)

	req := httptest.NewRequest(http.MethodGet, "/requests/"+requestID.String(), http.NoBody)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestRequestsHandler_HandleGet_InvalidID(t *testing.T) {
	h := newTestRequestsHandler(&mockRequestRepository{}, &mockRequestDriver{}, nil, nil)

	r := chi.NewRouter()
	r.Get("/requests/{requestId}", h.HandleGet)

	req := httptest.NewRequest(http.MethodGet, "/requests/not-a-uuid", http.NoBody)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestRequestsHandler_HandleGet_NotFound(t *testing.T) {
	repo := &mockRequestRepository{getErr: errors.New("no rows")}
	h := newTestRequestsHandler(repo, &mockRequestDriver{}, nil, nil)

	r := chi.NewRouter()
	r.Get("/requests/{requestId}", h.HandleGet)

	req := httptest.NewRequest(http.MethodGet, "/requests/"+uuid.New().String(), http.NoBody)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rr.Code)
	}
}

func TestRequestsHandler_HandleList_Success(t *testing.T) {
	repo := &mockRequestRepository{listReqs: []*domain.ServiceRequest{{ID: uuid.New()}, {ID: uuid.New()}}}
	h := newTestRequestsHandler(repo, &mockRequestDriver{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/requests?limit=5&offset=0", http.NoBody)
	rr := httptest.NewRecorder()

	h.HandleList(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp struct {
		Success bool                      `json:"success"`
		Data    []*domain.ServiceRequest `json:"data"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Errorf("expected 2 requests, got %d", len(resp.Data))
	}
}

func TestRequestsHandler_HandleSelectProvider_Success(t *testing.T) {
	requestID := uuid.New()
	providerID := uuid.New()
	repo := &mockRequestRepository{getReq: &domain.ServiceRequest{ID: requestID}}
	driver := &mockRequestDriver{}
	h := newTestRequestsHandler(repo, driver, &mockBookingLimiter{allow: true}, nil)

	r := chi.NewRouter()
	r.Post("/requests/{requestId}/select-provider", h.HandleSelectProvider)

	body := `{"providerId":"` + providerID.String() + `","customerName":"Jordan"}`
	req := httptest.NewRequest(http.MethodPost, "/requests/"+requestID.String()+"/select-provider", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if driver.selectedProviderID != providerID {
		t.Errorf("expected provider id %s, got %s", providerID, driver.selectedProviderID)
	}
	if driver.selectedBooking.CustomerName != "Jordan" {
		t.Errorf("expected customer name 'Jordan', got %q", driver.selectedBooking.CustomerName)
	}
}

func TestRequestsHandler_HandleSelectProvider_RateLimited(t *testing.T) {
	requestID := uuid.New()
	h := newTestRequestsHandler(&mockRequestRepository{}, &mockRequestDriver{}, &mockBookingLimiter{allow: false}, nil)

	r := chi.NewRouter()
	r.Post("/requests/{requestId}/select-provider", h.HandleSelectProvider)

	body := `{"providerId":"` + uuid.New().String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/requests/"+requestID.String()+"/select-provider", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("expected status %d, got %d", http.StatusTooManyRequests, rr.Code)
	}
}

func TestRequestsHandler_HandleSelectProvider_InvalidProviderID(t *testing.T) {
	requestID := uuid.New()
	h := newTestRequestsHandler(&mockRequestRepository{}, &mockRequestDriver{}, &mockBookingLimiter{allow: true}, nil)

	r := chi.NewRouter()
	r.Post("/requests/{requestId}/select-provider", h.HandleSelectProvider)

	body := `{"providerId":"not-a-uuid"}`
	req := httptest.NewRequest(http.MethodPost, "/requests/"+requestID.String()+"/select-provider", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestRequestsHandler_HandleSelectProvider_DriverError(t *testing.T) {
	requestID := uuid.New()
	driver := &mockRequestDriver{selectProviderErr: errors.New("request not in RECOMMENDED")}
	h := newTestRequestsHandler(&mockRequestRepository{}, driver, &mockBookingLimiter{allow: true}, nil)

	r := chi.NewRouter()
	r.Post("/requests/{requestId}/select-provider", h.HandleSelectProvider)

	body := `{"providerId":"` + uuid.New().String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/requests/"+requestID.String()+"/select-provider", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d", http.StatusConflict, rr.Code)
	}
}
