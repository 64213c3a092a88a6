package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for sync cycles and upstream calls.
// Every method is a no-op on a nil or disabled Metrics.
type Metrics struct {
	config MetricsConfig

	// Cycle metrics
	cyclesStarted   *prometheus.CounterVec
	cyclesCompleted *prometheus.CounterVec
	cycleDuration   *prometheus.HistogramVec
	activeCycles    prometheus.Gauge

	// Phase metrics
	phaseDuration   *prometheus.HistogramVec
	locationResults *prometheus.CounterVec
	itemsSynced     *prometheus.CounterVec

	// Upstream metrics
	apiCalls        *prometheus.CounterVec
	apiCallDuration *prometheus.HistogramVec
	reauths         *prometheus.CounterVec
	networkRetries  *prometheus.CounterVec

	// System metrics
	locations prometheus.Gauge

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

		cyclesStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_started_total",
				Help:      "Total number of sync cycles started",
			},
			[]string{"kind"},
		),
		cyclesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_completed_total",
				Help:      "Total number of sync cycles completed",
			},
			[]string{"kind", "status"},
		),
		cycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Duration of sync cycles in seconds",
				Buckets:   buckets,
			},
			[]string{"kind"},
		),
		activeCycles: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_cycles",
				Help:      "Current number of running sync cycles",
			},
		),

		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Duration of sync phases in seconds",
				Buckets:   buckets,
			},
			[]string{"phase"},
		),
		locationResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "location_results_total",
				Help:      "Per-location phase outcomes",
			},
			[]string{"phase", "status", "error_kind"},
		),
		itemsSynced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_synced_total",
				Help:      "Items processed by successful phase tasks",
			},
			[]string{"phase"},
		),

		apiCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_calls_total",
				Help:      "Upstream API calls by service and outcome",
			},
			[]string{"service", "outcome"},
		),
		apiCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_call_duration_seconds",
				Help:      "Duration of upstream API calls in seconds, retries included",
				Buckets:   buckets,
			},
			[]string{"service"},
		),
		reauths: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reauthentications_total",
				Help:      "Backoffice sessions re-established after rejection",
			},
			[]string{"account"},
		),
		networkRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "network_retries_total",
				Help:      "Requests retried after a transient network fault",
			},
			[]string{"service"},
		),

		locations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "locations",
				Help:      "Number of locations in the current cycle",
			},
		),
	}

	registry.MustRegister(
		m.cyclesStarted,
		m.cyclesCompleted,
		m.cycleDuration,
		m.activeCycles,
		m.phaseDuration,
		m.locationResults,
		m.itemsSynced,
		m.apiCalls,
		m.apiCallDuration,
		m.reauths,
		m.networkRetries,
		m.locations,
	)

	return m, nil
}

// Cycle Metrics

// RecordCycleStarted increments the counter for started cycles.
func (m *Metrics) RecordCycleStarted(kind string) {
	if m == nil || m.cyclesStarted == nil {
		return
	}
	m.cyclesStarted.WithLabelValues(kind).Inc()
	m.activeCycles.Inc()
}

// RecordCycleCompleted records a completed cycle with its status and duration.
func (m *Metrics) RecordCycleCompleted(kind, status string, duration time.Duration) {
	if m == nil || m.cyclesCompleted == nil {
		return
	}
	m.cyclesCompleted.WithLabelValues(kind, status).Inc()
	m.cycleDuration.WithLabelValues(kind).Observe(duration.Seconds())
	m.activeCycles.Dec()
}

// Phase Metrics

// RecordPhase records the duration of one phase.
func (m *Metrics) RecordPhase(phase string, duration time.Duration) {
	if m == nil || m.phaseDuration == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordLocationResult records one per-location outcome.
func (m *Metrics) RecordLocationResult(phase string, success bool, errorKind string) {
	if m == nil || m.locationResults == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.locationResults.WithLabelValues(phase, status, errorKind).Inc()
}

// AddItemsSynced adds processed items for a phase.
func (m *Metrics) AddItemsSynced(phase string, n int) {
	if m == nil || m.itemsSynced == nil || n <= 0 {
		return
	}
	m.itemsSynced.WithLabelValues(phase).Add(float64(n))
}

// Upstream Metrics

// RecordAPICall records one logical upstream call.
func (m *Metrics) RecordAPICall(service, outcome string, duration time.Duration) {
	if m == nil || m.apiCalls == nil {
		return
	}
	m.apiCalls.WithLabelValues(service, outcome).Inc()
	m.apiCallDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordReauthentication records a session rejected and re-established.
func (m *Metrics) RecordReauthentication(account string) {
	if m == nil || m.reauths == nil {
		return
	}
	m.reauths.WithLabelValues(account).Inc()
}

// RecordNetworkRetry records one network retry.
func (m *Metrics) RecordNetworkRetry(service string) {
	if m == nil || m.networkRetries == nil {
		return
	}
	m.networkRetries.WithLabelValues(service).Inc()
}

// System Metrics

// SetLocations sets the number of locations in the current cycle.
func (m *Metrics) SetLocations(n int) {
	if m == nil || m.locations == nil {
		return
	}
	m.locations.Set(float64(n))
}

// Registry returns the underlying registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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

// StartMetricsServer serves metrics until ctx is cancelled.
func (m *Metrics) StartMetricsServer(ctx context.Context, logger *Logger) error {
	if m == nil || !m.config.Enabled {
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
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// Metrics are best-effort; the sync loop keeps running.
			logger.WithError(err).Error("metrics server stopped")
		}
	}()

	return nil
}
