package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldops/voicedispatch/internal/batchcaller"
	"github.com/fieldops/voicedispatch/internal/directcaller"
	"github.com/fieldops/voicedispatch/internal/domain"
)

// mockBatchRunner implements BatchRunner for testing.
type mockBatchRunner struct {
	results []*domain.CallResult

	lastServiceRequestID uuid.UUID
	lastTargets          []batchcaller.ProviderTarget
}

func (m *mockBatchRunner) Run(ctx context.Context, serviceRequestID uuid.UUID, targets []batchcaller.ProviderTarget, maxConcurrent int) []*domain.CallResult {
	m.lastServiceRequestID = serviceRequestID
	m.lastTargets = targets
	return m.results
}

// mockSingleRunner implements SingleRunner for testing.
type mockSingleRunner struct {
	result *domain.CallResult
	err    error
}

func (m *mockSingleRunner) Run(ctx context.Context, req directcaller.Request) (*domain.CallResult, error) {
	return m.result, m.err
}

// mockIdempotencyStore implements IdempotencyStore for testing.
type mockIdempotencyStore struct {
	cached map[string][]byte
	getErr error
	saveErr error

	savedKey  string
	savedBody []byte
}

func (m *mockIdempotencyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.cached[key], nil
}

func (m *mockIdempotencyStore) Save(ctx context.Context, key string, response []byte, expiresAt time.Time) error {
	m.savedKey = key
	m.savedBody = response
	return m.saveErr
}

func newTestProvidersHandler(batch BatchRunner, single SingleRunner, idempotency IdempotencyStore) *ProvidersHandler {
	return NewProvidersHandler(ProvidersHandlerConfig{
		Batch:       batch,
		Single:      single,
		Idempotency: idempotency,
		Logger:      zap.NewNop(),
	})
}

func TestProvidersHandler_HandleBatchCall_Success(t *testing.T) {
	batch := &mockBatchRunner{results: []*domain.CallResult{
		{ProviderID: uuid.New(), Status: domain.CallStatusQueued},
	}}
	h := newTestProvidersHandler(batch, nil, nil)

	body := `{"providers":[{"name":"Ace Plumbing","phoneNumber":"+15125551234"}],"serviceNeeded":"plumbing","maxConcurrent":2}`
	req := httptest.NewRequest(http.MethodPost, "/providers/batch-call", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()

	h.HandleBatchCall(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if len(batch.lastTargets) != 1 {
		t.Fatalf("expected 1 target dispatched, got %d", len(batch.lastTargets))
	}
	if batch.lastTargets[0].ToNumber != "+15125551234" {
		t.Errorf("expected phone number to propagate, got %q", batch.lastTargets[0].ToNumber)
	}
}

func TestProvidersHandler_HandleBatchCall_InvalidBody(t *testing.T) {
	h := newTestProvidersHandler(&mockBatchRunner{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/providers/batch-call", bytes.NewBufferString("{invalid"))
	rr := httptest.NewRecorder()

	h.HandleBatchCall(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestProvidersHandler_HandleBatchCall_InvalidServiceRequestID(t *testing.T) {
	h := newTestProvidersHandler(&mockBatchRunner{}, nil, nil)

	body := `{"providers":[],"serviceRequestId":"not-a-uuid"}`
	req := httptest.NewRequest(http.MethodPost, "/providers/batch-call", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()

	h.HandleBatchCall(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestProvidersHandler_HandleBatchCall_IdempotentReplay(t *testing.T) {
	serviceRequestID := uuid.New()
	idempotency := &mockIdempotencyStore{
		cached: map[string][]byte{serviceRequestID.String(): []byte(`{"success":true,"data":[]}`)},
	}
	batch := &mockBatchRunner{}
	h := newTestProvidersHandler(batch, nil, idempotency)

	body := `{"providers":[{"name":"Ace Plumbing","phoneNumber":"+15125551234"}],"serviceRequestId":"` + serviceRequestID.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/providers/batch-call", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()

	h.HandleBatchCall(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if rr.Header().Get("X-Idempotent-Replay") != "true" {
		t.Error("expected X-Idempotent-Replay header to be set")
	}
	if batch.lastTargets != nil {
		t.Error("expected batch runner not to be invoked on a replay")
	}
}

func TestProvidersHandler_HandleBatchCall_SavesIdempotencyKey(t *testing.T) {
	serviceRequestID := uuid.New()
	idempotency := &mockIdempotencyStore{cached: map[string][]byte{}}
	batch := &mockBatchRunner{results: []*domain.CallResult{{ProviderID: uuid.New()}}}
	h := newTestProvidersHandler(batch, nil, idempotency)

	body := `{"providers":[{"name":"Ace Plumbing","phoneNumber":"+15125551234"}],"serviceRequestId":"` + serviceRequestID.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/providers/batch-call", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()

	h.HandleBatchCall(rr, req)

	if idempotency.savedKey != serviceRequestID.String() {
		t.Errorf("expected idempotency key %s, got %q", serviceRequestID, idempotency.savedKey)
	}
	if len(idempotency.savedBody) == 0 {
		t.Error("expected a saved response body")
	}
}

func TestProvidersHandler_HandleSingleCall_Success(t *testing.T) {
	single := &mockSingleRunner{result: &domain.CallResult{ProviderID: uuid.New(), Status: domain.CallStatusInProgress}}
	h := newTestProvidersHandler(nil, single, nil)

	body := `{"provider":{"name":"Ace Plumbing","phoneNumber":"+15125551234"},"serviceNeeded":"plumbing"}`
	req := httptest.NewRequest(http.MethodPost, "/providers/call", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()

	h.HandleSingleCall(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestProvidersHandler_HandleSingleCall_DispatchFailure(t *testing.T) {
	single := &mockSingleRunner{err: errors.New("vendor unreachable")}
	h := newTestProvidersHandler(nil, single, nil)

	body := `{"provider":{"name":"Ace Plumbing","phoneNumber":"+15125551234"}}`
	req := httptest.NewRequest(http.MethodPost, "/providers/call", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()

	h.HandleSingleCall(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Errorf("expected status %d, got %d", http.StatusBadGateway, rr.Code)
	}
}

func TestProvidersHandler_HandleSingleCall_InvalidBody(t *testing.T) {
	h := newTestProvidersHandler(nil, &mockSingleRunner{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/providers/call", bytes.NewBufferString("{invalid"))
	rr := httptest.NewRecorder()

	h.HandleSingleCall(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestProvidersHandler_HandleStatus_Webhook(t *testing.T) {
	h := NewProvidersHandler(ProvidersHandlerConfig{
		WebhookEnabled: true,
		VapiConfigured: true,
		Logger:         zap.NewNop(),
	})

	req := httptest.NewRequest(http.MethodGet, "/providers/call/status", http.NoBody)
	rr := httptest.NewRecorder()

	h.HandleStatus(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte(`"activeMethod":"webhook"`)) {
		t.Errorf("expected activeMethod webhook in body, got %s", rr.Body.String())
	}
}

func TestProvidersHandler_HandleStatus_Polling(t *testing.T) {
	h := NewProvidersHandler(ProvidersHandlerConfig{Logger: zap.NewNop()})

	req := httptest.NewRequest(http.MethodGet, "/providers/call/status", http.NoBody)
	rr := httptest.NewRecorder()

	h.HandleStatus(rr, req)

	if !bytes.Contains(rr.Body.Bytes(), []byte(`"activeMethod":"polling"`)) {
		t.Errorf("expected activeMethod polling in body, got %s", rr.Body.String())
	}
}
