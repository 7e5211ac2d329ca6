// Package middleware provides HTTP middleware for the application.
package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RateLimiter implements a token bucket rate limiter per IP address.
type RateLimiter struct {
	mu       sync.RWMutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
	logger   *zap.Logger
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(rate int, window time.Duration, logger *zap.Logger) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		logger:   logger,
	}

	// Start cleanup goroutine
	go rl.cleanup()

	return rl
}

// cleanup removes stale visitors periodically.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window * 2)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		now := time.Now()
		for ip, v := range rl.visitors {
			if now.Sub(v.lastReset) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// allow checks if a request from the given IP is allowed.
func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{
			tokens:    rl.rate - 1,
			lastReset: now,
		}
		return true
	}

	// Reset tokens if window has passed
	if now.Sub(v.lastReset) >= rl.window {
		v.tokens = rl.rate - 1
		v.lastReset = now
		return true
	}

	// Check if tokens available
	if v.tokens > 0 {
		v.tokens--
		return true
	}

	return false
}

// remaining returns the number of remaining requests for an IP.
func (rl *RateLimiter) remaining(ip string) int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	v, exists := rl.visitors[ip]
	if !exists {
		return rl.rate
	}

	now := time.Now()
	if now.Sub(v.lastReset) >= rl.window {
		return rl.rate
	}

	return v.tokens
}

// RateLimit returns HTTP middleware that rate limits requests.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getClientIP(r)

			if !rl.allow(ip) {
				rl.logger.Warn("rate limit exceeded",
					zap.String("ip", ip),
					zap.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", "60")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			// Set rate limit headers
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.remaining(ip)))

			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP extracts the client IP address from a request.
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (set by proxies)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP in the list
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return strings.TrimSpace(xff[:i])
			}
		}
		return strings.TrimSpace(xff)
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr - use net.SplitHostPort for proper IPv4/IPv6 handling
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// If SplitHostPort fails, return RemoteAddr as-is (may not have port)
		return r.RemoteAddr
	}
	return host
}

// BookingAttemptLimiter throttles repeated provider-selection attempts
// against the same service request. Each attempt dispatches a real
// confirmation call through the vendor, so this guards against a caller
// hammering POST /requests/{id}/select-provider from burning through the
// call budget on one request.
type BookingAttemptLimiter struct {
	mu       sync.RWMutex
	attempts map[string]*bookingAttempts
	logger   *zap.Logger
}

type bookingAttempts struct {
	count     int
	firstTry  time.Time
	blockedAt time.Time
}

const (
	maxBookingAttempts = 5
	bookingWindow      = 15 * time.Minute
	bookingBlockTime   = 30 * time.Minute
)

// NewBookingAttemptLimiter creates a new booking-attempt limiter.
func NewBookingAttemptLimiter(logger *zap.Logger) *BookingAttemptLimiter {
	bal := &BookingAttemptLimiter{
		attempts: make(map[string]*bookingAttempts),
		logger:   logger,
	}

	// Start cleanup goroutine
	go bal.cleanup()

	return bal
}

// cleanup removes stale entries periodically.
func (bal *BookingAttemptLimiter) cleanup() {
	ticker := time.NewTicker(bookingWindow)
	defer ticker.Stop()

	for range ticker.C {
		bal.mu.Lock()
		now := time.Now()
		for key, a := range bal.attempts {
			// Remove if blocked and block expired, or if window expired
			if (!a.blockedAt.IsZero() && now.Sub(a.blockedAt) > bookingBlockTime) ||
				(a.blockedAt.IsZero() && now.Sub(a.firstTry) > bookingWindow) {
				delete(bal.attempts, key)
			}
		}
		bal.mu.Unlock()
	}
}

// Check checks if a booking attempt is allowed and records it.
// Returns true if allowed, false if blocked.
func (bal *BookingAttemptLimiter) Check(ip, requestID string) bool {
	key := ip + ":" + requestID

	bal.mu.Lock()
	defer bal.mu.Unlock()

	now := time.Now()

	a, exists := bal.attempts[key]
	if !exists {
		bal.attempts[key] = &bookingAttempts{
			count:    1,
			firstTry: now,
		}
		return true
	}

	// Check if currently blocked
	if !a.blockedAt.IsZero() {
		if now.Sub(a.blockedAt) < bookingBlockTime {
			bal.logger.Warn("booking attempt blocked",
				zap.String("ip", ip),
				zap.String("request_id", requestID),
				zap.Duration("remaining", bookingBlockTime-now.Sub(a.blockedAt)),
			)
			return false
		}
		// Block expired, reset
		a.count = 1
		a.firstTry = now
		a.blockedAt = time.Time{}
		return true
	}

	// Check if window expired
	if now.Sub(a.firstTry) > bookingWindow {
		a.count = 1
		a.firstTry = now
		return true
	}

	// Increment attempts
	a.count++

	// Check if should block
	if a.count > maxBookingAttempts {
		a.blockedAt = now
		bal.logger.Warn("booking attempt rate limit exceeded, blocking",
			zap.String("ip", ip),
			zap.String("request_id", requestID),
			zap.Int("attempts", a.count),
		)
		return false
	}

	return true
}

// RecordSuccess records a successful booking and resets the counter.
func (bal *BookingAttemptLimiter) RecordSuccess(ip, requestID string) {
	key := ip + ":" + requestID

	bal.mu.Lock()
	defer bal.mu.Unlock()

	delete(bal.attempts, key)
}

// RemainingAttempts returns the number of remaining booking attempts.
func (bal *BookingAttemptLimiter) RemainingAttempts(ip, requestID string) int {
	key := ip + ":" + requestID

	bal.mu.RLock()
	defer bal.mu.RUnlock()

	a, exists := bal.attempts[key]
	if !exists {
		return maxBookingAttempts
	}

	if !a.blockedAt.IsZero() {
		return 0
	}

	now := time.Now()
	if now.Sub(a.firstTry) > bookingWindow {
		return maxBookingAttempts
	}

	remaining := maxBookingAttempts - a.count
	if remaining < 0 {
		return 0
	}
	return remaining
}
