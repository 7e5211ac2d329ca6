package middleware

import (
	"net/http"

	"github.com/fieldops/voicedispatch/internal/metrics"
)

// ErrorRateTracking records every request against an ErrorRateTracker,
// categorizing 5xx responses as HTTP errors. The alert callback on the
// tracker (if configured) fires independently of the Prometheus counters
// registered elsewhere, giving ops a second, sliding-window signal.
func ErrorRateTracking(tracker *metrics.ErrorRateTracker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			tracker.RecordRequest()
			if rw.statusCode >= 500 {
				tracker.RecordError(metrics.ErrorCategoryHTTP)
			}
		})
	}
}
