// Package metrics provides Prometheus metrics collection for the application.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Dispatch metrics
	CallsDispatchedTotal prometheus.Counter
	CallsTerminalTotal   *prometheus.CounterVec

	// Webhook ingestion metrics
	WebhooksReceivedTotal *prometheus.CounterVec

	// Cache metrics
	CacheSize     prometheus.Gauge
	CacheByStatus *prometheus.GaugeVec

	// Enrichment metrics
	EnrichmentAttemptsTotal *prometheus.CounterVec

	// ServiceRequest lifecycle metrics
	RequestStateTransitionsTotal *prometheus.CounterVec
	RecommenderRunsTotal         prometheus.Counter

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec

	// Database metrics
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
	DBQueryDuration    *prometheus.HistogramVec
	DBQueryErrors      *prometheus.CounterVec

	// Registry used for this metrics instance (nil means default registry)
	registry prometheus.Gatherer
}

// NewMetrics creates a new Metrics instance with all collectors registered.
func NewMetrics() *Metrics {
	m := newMetricsWithRegistry(prometheus.DefaultRegisterer)
	m.registry = prometheus.DefaultGatherer
	return m
}

// NewMetricsWithRegistry creates metrics using a custom registry (for testing).
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	m := newMetricsWithRegistry(reg)
	m.registry = reg
	return m
}

func newMetricsWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicedispatch_http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status code",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voicedispatch_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "voicedispatch_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		// Dispatch metrics
		CallsDispatchedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "voicedispatch_calls_dispatched_total",
				Help: "Total number of outbound calls dispatched to the voice vendor",
			},
		),
		CallsTerminalTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicedispatch_calls_terminal_total",
				Help: "Total number of calls that reached a terminal status, by status",
			},
			[]string{"status"}, // "completed", "no_answer", "failed", "voicemail", ...
		),

		// Webhook ingestion metrics
		WebhooksReceivedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicedispatch_webhooks_received_total",
				Help: "Total number of webhooks received from the voice vendor, by outcome",
			},
			[]string{"outcome"}, // "accepted", "invalid_signature", "unknown_call"
		),

		// Cache metrics
		CacheSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "voicedispatch_cache_size",
				Help: "Number of entries currently held in the call cache",
			},
		),
		CacheByStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "voicedispatch_cache_entries_by_status",
				Help: "Number of cache entries by fetch status",
			},
			[]string{"status"},
		),

		// Enrichment metrics
		EnrichmentAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicedispatch_enrichment_attempts_total",
				Help: "Total number of background enrichment poll attempts, by outcome",
			},
			[]string{"outcome"}, // "complete", "incomplete", "exhausted"
		),

		// ServiceRequest lifecycle metrics
		RequestStateTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicedispatch_request_state_transitions_total",
				Help: "Total number of ServiceRequest status transitions, by destination status",
			},
			[]string{"to"},
		),
		RecommenderRunsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "voicedispatch_recommender_runs_total",
				Help: "Total number of completed recommender runs",
			},
		),

		// Circuit breaker metrics
		CircuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "voicedispatch_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"service"},
		),
		CircuitBreakerTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicedispatch_circuit_breaker_trips_total",
				Help: "Total number of times a circuit breaker has tripped, by service",
			},
			[]string{"service"},
		),

		// Database metrics
		DBConnectionsOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "voicedispatch_db_connections_open",
				Help: "Number of open database connections",
			},
		),
		DBConnectionsInUse: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "voicedispatch_db_connections_in_use",
				Help: "Number of database connections currently in use",
			},
		),
		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voicedispatch_db_query_duration_seconds",
				Help:    "Duration of database queries",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"}, // "select", "insert", "update", "delete"
		),
		DBQueryErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicedispatch_db_query_errors_total",
				Help: "Total number of database query errors",
			},
			[]string{"operation"},
		),
	}
}

// Handler returns the Prometheus HTTP handler for scraping metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware returns an HTTP middleware that records request metrics.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()

		// Normalize path for metrics (avoid high cardinality)
		path := normalizePath(r.URL.Path)

		m.HTTPRequestsTotal.WithLabelValues(
			r.Method,
			path,
			strconv.Itoa(wrapped.statusCode),
		).Inc()

		m.HTTPRequestDuration.WithLabelValues(
			r.Method,
			path,
		).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}

// normalizePath normalizes URL paths to prevent high cardinality labels.
func normalizePath(path string) string {
	switch path {
	case "/", "/health", "/healthz", "/ready", "/readyz", "/live", "/metrics":
		return path
	}

	if len(path) > 12 && path[:12] == "/vapi/calls/" {
		return "/vapi/calls/:callId"
	}

	return path
}

// Helper methods for recording specific events

// RecordCallDispatched records a dispatched outbound call.
func (m *Metrics) RecordCallDispatched() {
	m.CallsDispatchedTotal.Inc()
}

// RecordCallTerminal records a call reaching a terminal status.
func (m *Metrics) RecordCallTerminal(status string) {
	m.CallsTerminalTotal.WithLabelValues(status).Inc()
}

// RecordWebhook records a webhook receipt by outcome.
func (m *Metrics) RecordWebhook(outcome string) {
	m.WebhooksReceivedTotal.WithLabelValues(outcome).Inc()
}

// SetCacheSize sets the total number of entries in the call cache.
func (m *Metrics) SetCacheSize(count int) {
	m.CacheSize.Set(float64(count))
}

// SetCacheByStatus sets the number of cache entries for a given fetch status.
func (m *Metrics) SetCacheByStatus(status string, count int) {
	m.CacheByStatus.WithLabelValues(status).Set(float64(count))
}

// RecordEnrichmentAttempt records a background enrichment poll outcome.
func (m *Metrics) RecordEnrichmentAttempt(outcome string) {
	m.EnrichmentAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordRequestStateTransition records a ServiceRequest status transition.
func (m *Metrics) RecordRequestStateTransition(to string) {
	m.RequestStateTransitionsTotal.WithLabelValues(to).Inc()
}

// RecordRecommenderRun records a completed recommender run.
func (m *Metrics) RecordRecommenderRun() {
	m.RecommenderRunsTotal.Inc()
}

// SetCircuitBreakerState sets the circuit breaker state for a service.
// State: 0=closed, 1=half-open, 2=open
func (m *Metrics) SetCircuitBreakerState(service string, state int) {
	m.CircuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker tripping open.
func (m *Metrics) RecordCircuitBreakerTrip(service string) {
	m.CircuitBreakerTrips.WithLabelValues(service).Inc()
}

// UpdateDBConnections updates database connection metrics.
func (m *Metrics) UpdateDBConnections(open, inUse int) {
	m.DBConnectionsOpen.Set(float64(open))
	m.DBConnectionsInUse.Set(float64(inUse))
}

// RecordDBQuery records a database query.
func (m *Metrics) RecordDBQuery(operation string, duration time.Duration, err error) {
	m.DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.DBQueryErrors.WithLabelValues(operation).Inc()
	}
}
