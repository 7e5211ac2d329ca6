// Package orchestrator drives a ServiceRequest through its status DAG:
// search for candidates, dispatch qualification calls, score survivors,
// and, once the user picks one, run a booking call to confirm.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldops/voicedispatch/internal/assistantconfig"
	"github.com/fieldops/voicedispatch/internal/batchcaller"
	"github.com/fieldops/voicedispatch/internal/directcaller"
	"github.com/fieldops/voicedispatch/internal/domain"
	apperrors "github.com/fieldops/voicedispatch/internal/errors"
	"github.com/fieldops/voicedispatch/internal/recommender"
	"github.com/fieldops/voicedispatch/internal/search"
)

// BatchRunner is the subset of batchcaller.Caller the orchestrator depends on.
type BatchRunner interface {
	Run(ctx context.Context, serviceRequestID uuid.UUID, targets []batchcaller.ProviderTarget, maxConcurrent int) []*domain.CallResult
}

// BookingRunner is the subset of directcaller.Caller used for the single
// booking-confirmation call.
type BookingRunner interface {
	Run(ctx context.Context, req directcaller.Request) (*domain.CallResult, error)
}

// Config tunes orchestrator behavior.
type Config struct {
	MaxConcurrentCalls int
}

// Orchestrator drives the ServiceRequest state machine.
type Orchestrator struct {
	cfg Config

	requests  domain.ServiceRequestRepository
	providers domain.ProviderRepository
	logs      domain.InteractionLogRepository
	search    search.Adapter
	batch     BatchRunner
	booking   BookingRunner

	logger *zap.Logger
}

// New builds an Orchestrator.
func New(cfg Config, requests domain.ServiceRequestRepository, providers domain.ProviderRepository, logs domain.InteractionLogRepository, searchAdapter search.Adapter, batch BatchRunner, booking BookingRunner, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		requests:  requests,
		providers: providers,
		logs:      logs,
		search:    searchAdapter,
		batch:     batch,
		booking:   booking,
		logger:    logger.Named("orchestrator"),
	}
}

// Advance drives a request forward from its current persisted status until
// it reaches RECOMMENDED, FAILED, or COMPLETED. RECOMMENDED is a stopping
// point: the state machine waits there for SelectProvider.
func (o *Orchestrator) Advance(ctx context.Context, requestID uuid.UUID) error {
	req, err := o.requests.GetByID(ctx, requestID)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			o.fail(ctx, req, "cancelled")
			return ctx.Err()
		default:
		}

		switch req.Status {
		case domain.RequestStatusPending:
			if err := o.transition(ctx, req, domain.RequestStatusSearching); err != nil {
				return err
			}
		case domain.RequestStatusSearching:
			if err := o.runSearch(ctx, req); err != nil {
				return err
			}
		case domain.RequestStatusCalling:
			if err := o.runCalling(ctx, req); err != nil {
				return err
			}
		case domain.RequestStatusAnalyzing:
			if err := o.runAnalyzing(ctx, req); err != nil {
				return err
			}
			return nil
		case domain.RequestStatusRecommended, domain.RequestStatusBooking,
			domain.RequestStatusCompleted, domain.RequestStatusFailed:
			return nil
		default:
			return nil
		}
	}
}

func (o *Orchestrator) runSearch(ctx context.Context, req *domain.ServiceRequest) error {
	candidates, err := o.search.Find(ctx, search.Query{
		ServiceType: req.ServiceType,
		Location:    req.Location,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
	})
	if err != nil {
		o.fail(ctx, req, fmt.Sprintf("search failed: %v", err))
		return nil
	}
	if len(candidates) == 0 {
		o.fail(ctx, req, "no candidate providers found")
		return nil
	}

	providers := make([]*domain.Provider, 0, len(candidates))
	for _, c := range candidates {
		providers = append(providers, &domain.Provider{
			ID:            uuid.New(),
			RequestID:     req.ID,
			Name:          c.Name,
			PhoneNumber:   c.PhoneNumber,
			Address:       c.Address,
			Rating:        c.Rating,
			ReviewCount:   c.ReviewCount,
			SourceURL:     c.SourceURL,
			PlaceID:       c.PlaceID,
			DistanceMiles: c.DistanceMiles,
			Hours:         c.Hours,
			IsOpenNow:     c.IsOpenNow,
			CallStatus:    domain.CallStatusQueued,
		})
	}

	if err := o.providers.CreateBatch(ctx, providers); err != nil {
		o.logger.Error("persisting discovered providers failed", zap.String("request_id", req.ID.String()), zap.Error(err))
		o.fail(ctx, req, "failed to persist discovered providers")
		return nil
	}

	return o.transition(ctx, req, domain.RequestStatusCalling)
}

func (o *Orchestrator) runCalling(ctx context.Context, req *domain.ServiceRequest) error {
	providers, err := o.providers.GetByRequestID(ctx, req.ID)
	if err != nil {
		o.fail(ctx, req, "failed to load providers for calling")
		return nil
	}

	targets := make([]batchcaller.ProviderTarget, 0, len(providers))
	for _, p := range providers {
		targets = append(targets, batchcaller.ProviderTarget{
			ProviderID: p.ID,
			ToNumber:   p.PhoneNumber,
			CallInfo: assistantconfig.CallRequest{
				ServiceNeeded: req.ServiceType,
				UserCriteria:  req.Description,
				Location:      req.Location,
				Urgency:       string(req.Urgency),
				ProviderName:  p.Name,
				ProviderPhone: p.PhoneNumber,
			},
		})
	}

	o.batch.Run(ctx, req.ID, targets, o.cfg.MaxConcurrentCalls)

	return o.transition(ctx, req, domain.RequestStatusAnalyzing)
}

// runAnalyzing generates recommendations immediately once every dispatched
// call is terminal, per the contract that this must not wait on any
// external signal.
func (o *Orchestrator) runAnalyzing(ctx context.Context, req *domain.ServiceRequest) error {
	providers, err := o.providers.GetByRequestID(ctx, req.ID)
	if err != nil {
		o.fail(ctx, req, "failed to load providers for analysis")
		return nil
	}

	out := recommender.Run(providers)

	if err := o.requests.SaveRecommendations(ctx, req.ID, out.Recommendations); err != nil {
		o.logger.Error("saving recommendations failed", zap.String("request_id", req.ID.String()), zap.Error(err))
		o.fail(ctx, req, "failed to persist recommendations")
		return nil
	}

	o.logger.Info("recommendations generated",
		zap.String("request_id", req.ID.String()),
		zap.Int("candidate_count", len(providers)),
		zap.Int("recommended_count", len(out.Recommendations)),
		zap.String("summary", out.Summary),
	)
	return nil
}

// SelectProvider moves a RECOMMENDED request into BOOKING, runs a single
// confirmation call against the chosen provider, and either completes the
// request or leaves it in RECOMMENDED with a logged error.
func (o *Orchestrator) SelectProvider(ctx context.Context, requestID, providerID uuid.UUID, booking assistantconfig.BookingContext) error {
	req, err := o.requests.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != domain.RequestStatusRecommended {
		return apperrors.InvalidTransition(string(req.Status), string(domain.RequestStatusBooking))
	}

	provider, err := o.providers.GetByID(ctx, providerID)
	if err != nil {
		return err
	}

	if err := o.transition(ctx, req, domain.RequestStatusBooking); err != nil {
		return err
	}

	result, err := o.booking.Run(ctx, directcaller.Request{
		ToNumber: provider.PhoneNumber,
		CallInfo: assistantconfig.CallRequest{
			ServiceNeeded: req.ServiceType,
			ProviderName:  provider.Name,
			ProviderPhone: provider.PhoneNumber,
			Booking:       &booking,
		},
		ProviderID:       providerID,
		ServiceRequestID: requestID,
	})
	confirmed := err == nil && result.Status == domain.CallStatusCompleted &&
		result.Data != nil && result.Data.BookingConfirmed
	if !confirmed {
		o.logger.Warn("booking call did not confirm the appointment",
			zap.String("request_id", requestID.String()), zap.Error(err))
		if tErr := o.transition(ctx, req, domain.RequestStatusRecommended); tErr != nil {
			o.logger.Error("reverting to recommended after unconfirmed booking failed", zap.Error(tErr))
		}
		return nil
	}

	if err := o.providers.UpdateBooking(ctx, providerID, result.Data.BookingDate, result.Data.BookingTime, result.Data.ConfirmationNumber); err != nil {
		o.logger.Error("marking provider as booked failed", zap.String("provider_id", providerID.String()), zap.Error(err))
		return nil
	}

	if err := o.requests.SetBookedProvider(ctx, requestID, providerID); err != nil {
		o.logger.Error("recording booked provider failed", zap.String("request_id", requestID.String()), zap.Error(err))
		return nil
	}

	return o.transition(ctx, req, domain.RequestStatusCompleted)
}

func (o *Orchestrator) transition(ctx context.Context, req *domain.ServiceRequest, to domain.RequestStatus) error {
	if !domain.IsValidTransition(req.Status, to) {
		o.logger.Warn("rejected invalid transition",
			zap.String("request_id", req.ID.String()), zap.String("from", string(req.Status)), zap.String("to", string(to)))
		return apperrors.InvalidTransition(string(req.Status), string(to))
	}
	if err := o.requests.UpdateStatus(ctx, req.ID, to, ""); err != nil {
		return err
	}
	req.Status = to
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, req *domain.ServiceRequest, reason string) {
	if !domain.IsValidTransition(req.Status, domain.RequestStatusFailed) {
		return
	}
	if err := o.requests.UpdateStatus(ctx, req.ID, domain.RequestStatusFailed, reason); err != nil {
		o.logger.Error("persisting FAILED status failed", zap.String("request_id", req.ID.String()), zap.Error(err))
		return
	}
	req.Status = domain.RequestStatusFailed
	o.logger.Info("request failed", zap.String("request_id", req.ID.String()), zap.String("reason", reason))
}
