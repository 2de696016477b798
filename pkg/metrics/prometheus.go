// Package metrics provides Prometheus metrics for the bloons API client.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the client.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          atomic.Bool
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Fetch layer
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	fetchErrors         *prometheus.CounterVec
	rateLimitRetries    *prometheus.CounterVec
	backoffWaits        prometheus.Counter

	// Admission gate
	gateInFlight prometheus.Gauge
	gateWait     prometheus.Histogram

	// Pagination
	pagesFetched      *prometheus.CounterVec
	paginationLatency *prometheus.HistogramVec
	workerBusy        prometheus.Gauge

	// Resources
	resourceLoads *prometheus.CounterVec

	errorRateByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "bloons",
		subsystem:        "client",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	m.enabled.Store(true)

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one block per metric
	auto := promauto.With(m.registry)
	constLabels := prometheus.Labels(m.customLabels)

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_requests_total"),
		Help:        "Total number of upstream HTTP requests by endpoint and status",
		ConstLabels: constLabels,
	}, []string{"endpoint", "status"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_request_duration_seconds"),
		Help:        "Upstream HTTP request latency in seconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: constLabels,
	}, []string{"endpoint"})

	m.fetchErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("fetch_errors_total"),
		Help:        "Classified fetch errors by endpoint and kind",
		ConstLabels: constLabels,
	}, []string{"endpoint", "kind"})

	m.rateLimitRetries = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("rate_limit_retries_total"),
		Help:        "Requests retried after a rate-limit response",
		ConstLabels: constLabels,
	}, []string{"endpoint"})

	m.backoffWaits = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("backoff_waits_total"),
		Help:        "Requests that waited on a shared backoff deadline",
		ConstLabels: constLabels,
	})

	m.gateInFlight = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("gate_in_flight"),
		Help:        "Requests currently holding an admission slot",
		ConstLabels: constLabels,
	})

	m.gateWait = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("gate_wait_seconds"),
		Help:        "Time spent waiting for an admission slot",
		Buckets:     m.histogramBuckets,
		ConstLabels: constLabels,
	})

	m.pagesFetched = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("pages_fetched_total"),
		Help:        "Leaderboard pages fetched by outcome (records, empty)",
		ConstLabels: constLabels,
	}, []string{"outcome"})

	m.paginationLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("pagination_duration_seconds"),
		Help:        "Duration of a full paginated fetch by strategy",
		Buckets:     m.histogramBuckets,
		ConstLabels: constLabels,
	}, []string{"strategy"})

	m.workerBusy = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("workers_busy"),
		Help:        "Pool workers currently running a job",
		ConstLabels: constLabels,
	})

	m.resourceLoads = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("resource_loads_total"),
		Help:        "Resource loads by kind and outcome (ok, error, seeded)",
		ConstLabels: constLabels,
	}, []string{"kind", "outcome"})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("errors_by_component_total"),
		Help:        "Errors by component and type",
		ConstLabels: constLabels,
	}, []string{"component", "error_type"})
}

// Enabled reports whether recording is on.
func (m *Manager) Enabled() bool { return m.enabled.Load() }

// SetEnabled toggles recording on the global manager.
func SetEnabled(enabled bool) { globalManager.enabled.Store(enabled) }

// IsEnabled reports whether the global manager records.
func IsEnabled() bool { return globalManager.Enabled() }

// RecordHTTPRequest counts one upstream request.
func RecordHTTPRequest(endpoint, status string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, status).Inc()
}

// RecordHTTPRequestDuration observes one upstream request latency.
func RecordHTTPRequestDuration(endpoint string, d time.Duration) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// RecordFetchError counts a classified fetch error.
func RecordFetchError(endpoint, kind string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.fetchErrors.WithLabelValues(endpoint, kind).Inc()
}

// RecordRateLimitRetry counts a retry caused by a rate-limit response.
func RecordRateLimitRetry(endpoint string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.rateLimitRetries.WithLabelValues(endpoint).Inc()
}

// RecordBackoffWait counts a request held back by a shared backoff.
func RecordBackoffWait() {
	if !globalManager.Enabled() {
		return
	}
	globalManager.backoffWaits.Inc()
}

// UpdateGateInFlight moves the in-flight gauge by delta.
func UpdateGateInFlight(delta float64) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.gateInFlight.Add(delta)
}

// RecordGateWait observes time spent waiting for admission.
func RecordGateWait(d time.Duration) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.gateWait.Observe(d.Seconds())
}

// RecordPageFetched counts a fetched page by outcome.
func RecordPageFetched(outcome string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.pagesFetched.WithLabelValues(outcome).Inc()
}

// RecordPaginationDuration observes a whole paginated fetch.
func RecordPaginationDuration(strategy string, d time.Duration) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.paginationLatency.WithLabelValues(strategy).Observe(d.Seconds())
}

// UpdateWorkerBusy moves the busy-worker gauge by delta.
func UpdateWorkerBusy(delta float64) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.workerBusy.Add(delta)
}

// RecordResourceLoad counts a resource load by kind and outcome.
func RecordResourceLoad(kind, outcome string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.resourceLoads.WithLabelValues(kind, outcome).Inc()
}

// RecordErrorByComponent records errors by component.
func RecordErrorByComponent(component, errorType string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
