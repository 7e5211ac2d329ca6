// Package batchcaller fans a service request's provider list out to bounded
// concurrent DirectCaller runs and collects their results in input order.
package batchcaller

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fieldops/voicedispatch/internal/assistantconfig"
	"github.com/fieldops/voicedispatch/internal/directcaller"
	"github.com/fieldops/voicedispatch/internal/domain"
)

const (
	// DefaultMaxConcurrent is used when the caller does not specify one.
	DefaultMaxConcurrent = 5
	// MinMaxConcurrent and MaxMaxConcurrent bound whatever the caller asks for.
	MinMaxConcurrent = 1
	MaxMaxConcurrent = 10
)

// ClampConcurrency normalizes a requested concurrency level to the allowed
// range, substituting the default when none was requested.
func ClampConcurrency(n int) int {
	if n <= 0 {
		return DefaultMaxConcurrent
	}
	if n < MinMaxConcurrent {
		return MinMaxConcurrent
	}
	if n > MaxMaxConcurrent {
		return MaxMaxConcurrent
	}
	return n
}

// DirectRunner is the subset of directcaller.Caller the batch depends on.
type DirectRunner interface {
	Run(ctx context.Context, req directcaller.Request) (*domain.CallResult, error)
}

// ProviderTarget is one provider to call within a batch.
type ProviderTarget struct {
	ProviderID uuid.UUID
	ToNumber   string
	CallInfo   assistantconfig.CallRequest
}

// Caller runs bounded-concurrency batches of DirectCaller calls.
type Caller struct {
	runner DirectRunner
	logger *zap.Logger
}

// New builds a Caller.
func New(runner DirectRunner, logger *zap.Logger) *Caller {
	return &Caller{runner: runner, logger: logger.Named("batchcaller")}
}

// Run dispatches one DirectCaller task per target, at most maxConcurrent at
// a time, and returns results in the same order as targets. A per-task
// failure never fails the batch: it contributes a CallResult with
// status=error instead. If ctx is already cancelled before a task starts,
// that task is never dispatched and instead reports status=timeout.
func (c *Caller) Run(ctx context.Context, serviceRequestID uuid.UUID, targets []ProviderTarget, maxConcurrent int) []*domain.CallResult {
	maxConcurrent = ClampConcurrency(maxConcurrent)
	results := make([]*domain.CallResult, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for i, target := range targets {
		i, target := i, target

		if ctx.Err() != nil {
			results[i] = &domain.CallResult{ProviderID: target.ProviderID, Status: domain.CallStatusTimeout, Err: "cancelled before dispatch"}
			continue
		}

		g.Go(func() error {
			req := directcaller.Request{
				ToNumber:         target.ToNumber,
				CallInfo:         target.CallInfo,
				ProviderID:       target.ProviderID,
				ServiceRequestID: serviceRequestID,
			}
			result, err := c.runner.Run(gctx, req)
			if err != nil {
				c.logger.Error("direct call dispatch failed", zap.String("provider_id", target.ProviderID.String()), zap.Error(err))
				results[i] = &domain.CallResult{ProviderID: target.ProviderID, Status: domain.CallStatusError, Err: err.Error()}
				return nil
			}
			results[i] = result
			return nil
		})
	}

	// g.Wait's error is always nil: task bodies above never return a
	// non-nil error, so a per-task failure cannot cancel its siblings.
	_ = g.Wait()
	return results
}
