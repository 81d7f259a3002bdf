package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics provides Prometheus metrics for configdesk.
type Metrics struct {
	config MetricsConfig

	// Completion metrics
	completionRequests *prometheus.CounterVec
	completionDuration *prometheus.HistogramVec
	completionItems    *prometheus.HistogramVec

	// Sync metrics
	syncResults  *prometheus.CounterVec
	syncDuration *prometheus.HistogramVec

	// Persistence metrics
	persistWrites   *prometheus.CounterVec
	persistDuration *prometheus.HistogramVec

	// HTTP metrics
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	// Error metrics
	errorsByClass *prometheus.CounterVec

	// System metrics
	activeSessions prometheus.Gauge
	pendingWrites  prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		completionRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "completion_requests_total",
				Help:      "Total number of completion requests",
			},
			[]string{"token_kind", "outcome"},
		),
		completionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "completion_duration_seconds",
				Help:      "Time spent resolving the cursor and generating suggestions",
				Buckets:   buckets,
			},
			[]string{"token_kind"},
		),
		completionItems: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "completion_items",
				Help:      "Number of suggestions returned per request",
				Buckets:   []float64{0, 1, 2, 4, 8, 16},
			},
			[]string{"token_kind"},
		),

		syncResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_results_total",
				Help:      "Total number of applied edits by source and result status",
			},
			[]string{"source", "status"},
		),
		syncDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_duration_seconds",
				Help:      "Time spent parsing and validating an edit",
				Buckets:   buckets,
			},
			[]string{"source"},
		),

		persistWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "persist_writes_total",
				Help:      "Total number of persistence writes",
			},
			[]string{"store", "status"},
		),
		persistDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "persist_duration_seconds",
				Help:      "Duration of persistence writes in seconds",
				Buckets:   buckets,
			},
			[]string{"store"},
		),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of API requests",
			},
			[]string{"method", "route", "code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of API requests in seconds",
				Buckets:   buckets,
			},
			[]string{"route"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),

		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Current number of open editing sessions",
			},
		),
		pendingWrites: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_writes",
				Help:      "Number of sessions with a debounced write waiting",
			},
		),
	}

	registry.MustRegister(
		m.completionRequests,
		m.completionDuration,
		m.completionItems,
		m.syncResults,
		m.syncDuration,
		m.persistWrites,
		m.persistDuration,
		m.httpRequests,
		m.httpDuration,
		m.errorsByClass,
		m.activeSessions,
		m.pendingWrites,
	)

	return m, nil
}

// NewNopMetrics returns a Metrics whose recording methods do nothing.
func NewNopMetrics() *Metrics {
	return &Metrics{}
}

// Completion Metrics

// RecordCompletion records one completion request. outcome is "ok",
// "empty" or "not_found".
func (m *Metrics) RecordCompletion(tokenKind, outcome string, items int, duration time.Duration) {
	if m == nil || m.completionRequests == nil {
		return
	}
	m.completionRequests.WithLabelValues(tokenKind, outcome).Inc()
	m.completionDuration.WithLabelValues(tokenKind).Observe(duration.Seconds())
	m.completionItems.WithLabelValues(tokenKind).Observe(float64(items))
}

// Sync Metrics

// RecordSync records the outcome of an edit. source is "text" or "structured".
func (m *Metrics) RecordSync(source, status string, duration time.Duration) {
	if m == nil || m.syncResults == nil {
		return
	}
	m.syncResults.WithLabelValues(source, status).Inc()
	m.syncDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// Persistence Metrics

// RecordPersist records a persistence write and whether it succeeded.
func (m *Metrics) RecordPersist(store string, err error, duration time.Duration) {
	if m == nil || m.persistWrites == nil {
		return
	}
	status := "succeeded"
	if err != nil {
		status = "failed"
	}
	m.persistWrites.WithLabelValues(store, status).Inc()
	m.persistDuration.WithLabelValues(store).Observe(duration.Seconds())
}

// HTTP Metrics

// RecordHTTPRequest records a served API request.
func (m *Metrics) RecordHTTPRequest(method, route, code string, duration time.Duration) {
	if m == nil || m.httpRequests == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, code).Inc()
	m.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// Error Metrics

// RecordError records an error by class.
func (m *Metrics) RecordError(errorClass string) {
	if m == nil || m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
}

// System Metrics

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil || m.activeSessions == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil || m.activeSessions == nil {
		return
	}
	m.activeSessions.Dec()
}

// AddPendingWrites adjusts the pending write gauge by delta.
func (m *Metrics) AddPendingWrites(delta float64) {
	if m == nil || m.pendingWrites == nil {
		return
	}
	m.pendingWrites.Add(delta)
}

// Registry returns the underlying registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts a dedicated HTTP listener for metrics when
// ListenAddress is set.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Str("addr", m.config.ListenAddress).Msg("metrics server stopped")
		}
	}()

	return nil
}
