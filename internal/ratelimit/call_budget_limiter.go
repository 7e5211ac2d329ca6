// Package ratelimit provides rate limiting functionality for cost control.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CallBudgetLimiter bounds how many outbound vendor calls DirectCaller and
// BatchCaller may dispatch, protecting the per-minute cost of the voice
// vendor's API.
type CallBudgetLimiter struct {
	mu sync.RWMutex

	// Configuration
	maxRequestsPerMinute int
	maxRequestsPerHour   int
	maxRequestsPerDay    int
	maxConcurrent        int

	// State
	minuteBucket  *tokenBucket
	hourBucket    *tokenBucket
	dayBucket     *tokenBucket
	currentActive int

	// Metrics
	totalRequests   int64
	totalRejected   int64
	lastRejectedAt  time.Time
	rejectionReason string

	logger *zap.Logger
}

// CallBudgetConfig holds configuration for the call budget limiter.
type CallBudgetConfig struct {
	MaxRequestsPerMinute int
	MaxRequestsPerHour   int
	MaxRequestsPerDay    int
	MaxConcurrent        int
}

// DefaultCallBudgetConfig returns sensible defaults for cost control.
func DefaultCallBudgetConfig() *CallBudgetConfig {
	return &CallBudgetConfig{
		MaxRequestsPerMinute: 10,  // 10 calls dispatched per minute
		MaxRequestsPerHour:   100, // 100 calls dispatched per hour
		MaxRequestsPerDay:    500, // 500 calls dispatched per day
		MaxConcurrent:        5,   // 5 concurrent outbound calls
	}
}

// NewCallBudgetLimiter creates a new call budget limiter.
func NewCallBudgetLimiter(cfg *CallBudgetConfig, logger *zap.Logger) *CallBudgetLimiter {
	if cfg == nil {
		cfg = DefaultCallBudgetConfig()
	}

	now := time.Now()
	return &CallBudgetLimiter{
		maxRequestsPerMinute: cfg.MaxRequestsPerMinute,
		maxRequestsPerHour:   cfg.MaxRequestsPerHour,
		maxRequestsPerDay:    cfg.MaxRequestsPerDay,
		maxConcurrent:        cfg.MaxConcurrent,
		minuteBucket:         newTokenBucket(cfg.MaxRequestsPerMinute, time.Minute, now),
		hourBucket:           newTokenBucket(cfg.MaxRequestsPerHour, time.Hour, now),
		dayBucket:            newTokenBucket(cfg.MaxRequestsPerDay, 24*time.Hour, now),
		logger:               logger,
	}
}

// Errors for rate limiting.
var (
	ErrRateLimitExceeded       = errors.New("rate limit exceeded")
	ErrMinuteLimitExceeded     = errors.New("minute rate limit exceeded")
	ErrHourLimitExceeded       = errors.New("hour rate limit exceeded")
	ErrDayLimitExceeded        = errors.New("day rate limit exceeded")
	ErrConcurrentLimitExceeded = errors.New("concurrent request limit exceeded")
)

// Acquire attempts to acquire a rate limit slot for dispatching a call.
// Returns nil if successful, or an error if rate limited.
func (cl *CallBudgetLimiter) Acquire(ctx context.Context) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	cl.totalRequests++
	now := time.Now()

	// Check concurrent limit
	if cl.currentActive >= cl.maxConcurrent {
		cl.reject("concurrent limit", now)
		return ErrConcurrentLimitExceeded
	}

	// Check minute limit
	if !cl.minuteBucket.tryAcquire(now) {
		cl.reject("minute limit", now)
		return ErrMinuteLimitExceeded
	}

	// Check hour limit
	if !cl.hourBucket.tryAcquire(now) {
		// Rollback minute bucket
		cl.minuteBucket.release()
		cl.reject("hour limit", now)
		return ErrHourLimitExceeded
	}

	// Check day limit
	if !cl.dayBucket.tryAcquire(now) {
		// Rollback minute and hour buckets
		cl.minuteBucket.release()
		cl.hourBucket.release()
		cl.reject("day limit", now)
		return ErrDayLimitExceeded
	}

	// All checks passed
	cl.currentActive++

	cl.logger.Debug("call budget acquired",
		zap.Int("active", cl.currentActive),
		zap.Int("minute_remaining", cl.minuteBucket.remaining()),
		zap.Int("hour_remaining", cl.hourBucket.remaining()),
		zap.Int("day_remaining", cl.dayBucket.remaining()),
	)

	return nil
}

// Release releases a rate limit slot after a dispatched call completes.
func (cl *CallBudgetLimiter) Release() {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.currentActive > 0 {
		cl.currentActive--
	}

	cl.logger.Debug("call budget released",
		zap.Int("active", cl.currentActive),
	)
}

// Wait blocks until a rate limit slot is available or context is canceled.
func (cl *CallBudgetLimiter) Wait(ctx context.Context) error {
	// Try to acquire immediately
	if err := cl.Acquire(ctx); err == nil {
		return nil
	}

	// Poll for availability
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := cl.Acquire(ctx); err == nil {
				return nil
			}
		}
	}
}

// reject records a rejection.
func (cl *CallBudgetLimiter) reject(reason string, t time.Time) {
	cl.totalRejected++
	cl.lastRejectedAt = t
	cl.rejectionReason = reason

	cl.logger.Warn("call budget exceeded",
		zap.String("reason", reason),
		zap.Int64("total_rejected", cl.totalRejected),
	)
}

// Stats returns current rate limiter statistics.
func (cl *CallBudgetLimiter) Stats() CallBudgetStats {
	cl.mu.RLock()
	defer cl.mu.RUnlock()

	now := time.Now()
	return CallBudgetStats{
		CurrentActive:       cl.currentActive,
		MaxConcurrent:       cl.maxConcurrent,
		MinuteRemaining:     cl.minuteBucket.remaining(),
		MinuteMax:           cl.maxRequestsPerMinute,
		HourRemaining:       cl.hourBucket.remaining(),
		HourMax:             cl.maxRequestsPerHour,
		DayRemaining:        cl.dayBucket.remaining(),
		DayMax:              cl.maxRequestsPerDay,
		TotalRequests:       cl.totalRequests,
		TotalRejected:       cl.totalRejected,
		LastRejectedAt:      cl.lastRejectedAt,
		LastRejectionReason: cl.rejectionReason,
		MinuteResetIn:       cl.minuteBucket.resetIn(now),
		HourResetIn:         cl.hourBucket.resetIn(now),
		DayResetIn:          cl.dayBucket.resetIn(now),
	}
}

// CallBudgetStats holds statistics about the rate limiter.
type CallBudgetStats struct {
	CurrentActive       int           `json:"current_active"`
	MaxConcurrent       int           `json:"max_concurrent"`
	MinuteRemaining     int           `json:"minute_remaining"`
	MinuteMax           int           `json:"minute_max"`
	HourRemaining       int           `json:"hour_remaining"`
	HourMax             int           `json:"hour_max"`
	DayRemaining        int           `json:"day_remaining"`
	DayMax              int           `json:"day_max"`
	TotalRequests       int64         `json:"total_requests"`
	TotalRejected       int64         `json:"total_rejected"`
	LastRejectedAt      time.Time     `json:"last_rejected_at,omitempty"`
	LastRejectionReason string        `json:"last_rejection_reason,omitempty"`
	MinuteResetIn       time.Duration `json:"minute_reset_in"`
	HourResetIn         time.Duration `json:"hour_reset_in"`
	DayResetIn          time.Duration `json:"day_reset_in"`
}

// tokenBucket is a simple fixed-window token bucket: all tokens are restored
// at once each time a full period has passed since the last reset.
type tokenBucket struct {
	max       int
	period    time.Duration
	tokens    int
	lastReset time.Time
}

func newTokenBucket(maxTokens int, period time.Duration, now time.Time) *tokenBucket {
	return &tokenBucket{
		max:       maxTokens,
		period:    period,
		tokens:    maxTokens,
		lastReset: now,
	}
}

func (b *tokenBucket) tryAcquire(now time.Time) bool {
	b.refill(now)
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

func (b *tokenBucket) release() {
	if b.tokens < b.max {
		b.tokens++
	}
}

func (b *tokenBucket) remaining() int {
	return b.tokens
}

func (b *tokenBucket) resetIn(now time.Time) time.Duration {
	elapsed := now.Sub(b.lastReset)
	remaining := b.period - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (b *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastReset)
	if elapsed >= b.period {
		// Reset the bucket
		b.tokens = b.max
		b.lastReset = now
	}
}
