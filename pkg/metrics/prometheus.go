// Package metrics provides Prometheus metrics for the lakeline timeline service.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch outcomes used as the "outcome" label on cache fetch counters.
const (
	OutcomeSuccess    = "success"
	OutcomeNotFound   = "not_found"
	OutcomeError      = "error"
	OutcomeSkipped    = "skipped"
	OutcomeSuperseded = "superseded"
)

// Manager manages all Prometheus metrics for the lakeline service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Keyed cache
	cacheFetches    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheInFlight   prometheus.Gauge
	cacheEntries    prometheus.Gauge
	cacheListeners  prometheus.Gauge
	cacheDispatchKO prometheus.Counter

	// Pan/zoom and orchestration
	gestures           *prometheus.CounterVec
	settles            prometheus.Counter
	orchestratorRuns   prometheus.Counter
	orchestratorDays   prometheus.Histogram
	orchestratorFilter *prometheus.CounterVec
	renders            prometheus.Counter

	// Sessions
	sessionsActive  prometheus.Gauge
	sessionsOpened  prometheus.Counter
	sessionsEvicted prometheus.Counter

	// Upstream STAC/tiler
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  prometheus.Histogram
	breakerState     *prometheus.GaugeVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	streamClients       prometheus.Gauge

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueue       prometheus.Counter
	queueDequeue       prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

var globalManager atomic.Pointer[Manager] //nolint:gochecknoglobals // singleton metrics manager

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager.Store(NewManager(WithPrometheusRegistry(customRegistry)))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "lakeline",
		subsystem:        "timeline",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		enabled:          true,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

// SetManager replaces the manager used by the package-level recorders.
func SetManager(m *Manager) error {
	if m == nil {
		return ErrNoManager
	}
	globalManager.Store(m)
	return nil
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.cacheFetches = m.counterVec("cache_fetches_total", "Cache fetch requests by outcome", "outcome")
	m.cacheLatency = m.histogram("cache_fetch_latency_milliseconds", "Latency of settled cache fetches in milliseconds", m.histogramBuckets)
	m.cacheInFlight = m.gauge("cache_fetches_in_flight", "Cache fetches currently loading")
	m.cacheEntries = m.gauge("cache_entries", "Entries held in the keyed cache")
	m.cacheListeners = m.gauge("cache_listeners", "Registered cache change listeners")
	m.cacheDispatchKO = m.counter("cache_dispatch_rejected_total", "Fetches the dispatcher refused to run")

	m.gestures = m.counterVec("gestures_total", "Pan/zoom gestures by kind", "kind")
	m.settles = m.counter("settles_total", "Settled pan/zoom interactions")
	m.orchestratorRuns = m.counter("orchestrator_runs_total", "Debounced visible-range fetch batches")
	m.orchestratorDays = m.histogram("orchestrator_days", "Days dispatched per visible-range batch", []float64{1, 7, 14, 31, 62, 124, 365})
	m.orchestratorFilter = m.counterVec("orchestrator_filter_total", "Allowed-day filter outcomes", "result")
	m.renders = m.counter("renders_total", "Render callbacks delivered")

	m.sessionsActive = m.gauge("sessions_active", "Open timeline sessions")
	m.sessionsOpened = m.counter("sessions_opened_total", "Timeline sessions opened")
	m.sessionsEvicted = m.counter("sessions_evicted_total", "Timeline sessions evicted or closed")

	m.upstreamRequests = m.counterVec("upstream_requests_total", "Requests to STAC and tiler by status class", "status")
	m.upstreamLatency = m.histogram("upstream_latency_milliseconds", "Upstream request latency in milliseconds", m.histogramBuckets)
	m.breakerState = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "breaker_state",
		Help:        "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		ConstLabels: m.constLabels,
	}, []string{"name"})

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		ConstLabels: m.constLabels,
		Buckets:     m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
	m.streamClients = m.gauge("stream_clients", "Connected websocket render streams")

	m.queueSize = m.gauge("queue_size", "Current size of the fetch job queue")
	m.queueCapacity = m.gauge("queue_capacity", "Capacity of the fetch job queue")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Fetch job queue utilization (0-1)")
	m.queueEnqueue = m.counter("queue_enqueue_total", "Jobs enqueued")
	m.queueDequeue = m.counter("queue_dequeue_total", "Jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Failed enqueue attempts")

	m.workerCount = m.gauge("worker_count", "Configured fetch workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Workers currently running a job")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Job processing latency in milliseconds", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Jobs that panicked or failed inside a worker")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100})
}

func current() *Manager {
	m := globalManager.Load()
	if m == nil || !m.enabled {
		return nil
	}
	return m
}

// Cache metrics.

// RecordCacheFetch counts a fetch request by outcome.
func RecordCacheFetch(outcome string) {
	if m := current(); m != nil {
		m.cacheFetches.WithLabelValues(outcome).Inc()
	}
}

// RecordCacheLatency records a settled fetch's latency.
func RecordCacheLatency(latencyMs float64) {
	if m := current(); m != nil {
		m.cacheLatency.Observe(latencyMs)
	}
}

// AddCacheInFlight moves the in-flight gauge by delta.
func AddCacheInFlight(delta int) {
	if m := current(); m != nil {
		m.cacheInFlight.Add(float64(delta))
	}
}

// UpdateCacheEntries sets the cache entry count.
func UpdateCacheEntries(count int) {
	if m := current(); m != nil {
		m.cacheEntries.Set(float64(count))
	}
}

// UpdateCacheListeners sets the listener count.
func UpdateCacheListeners(count int) {
	if m := current(); m != nil {
		m.cacheListeners.Set(float64(count))
	}
}

// RecordCacheDispatchRejected counts a refused dispatch.
func RecordCacheDispatchRejected() {
	if m := current(); m != nil {
		m.cacheDispatchKO.Inc()
	}
}

// Interaction metrics.

// RecordGesture counts a gesture event (down, move, up, wheel, impose).
func RecordGesture(kind string) {
	if m := current(); m != nil {
		m.gestures.WithLabelValues(kind).Inc()
	}
}

// RecordSettle counts a settled interaction.
func RecordSettle() {
	if m := current(); m != nil {
		m.settles.Inc()
	}
}

// RecordOrchestratorRun records one debounced batch and its day count.
func RecordOrchestratorRun(days int) {
	if m := current(); m != nil {
		m.orchestratorRuns.Inc()
		m.orchestratorDays.Observe(float64(days))
	}
}

// RecordOrchestratorFilter counts allowed-day filter results (all, list, empty, error).
func RecordOrchestratorFilter(result string) {
	if m := current(); m != nil {
		m.orchestratorFilter.WithLabelValues(result).Inc()
	}
}

// RecordRender counts a delivered render callback.
func RecordRender() {
	if m := current(); m != nil {
		m.renders.Inc()
	}
}

// Session metrics.

// UpdateSessionsActive sets the open session count.
func UpdateSessionsActive(count int) {
	if m := current(); m != nil {
		m.sessionsActive.Set(float64(count))
	}
}

// RecordSessionOpened counts an opened session.
func RecordSessionOpened() {
	if m := current(); m != nil {
		m.sessionsOpened.Inc()
	}
}

// RecordSessionEvicted counts a closed or evicted session.
func RecordSessionEvicted() {
	if m := current(); m != nil {
		m.sessionsEvicted.Inc()
	}
}

// Upstream metrics.

// RecordUpstreamRequest counts an upstream call by status class (2xx, 4xx, 5xx, error).
func RecordUpstreamRequest(status string, latencyMs float64) {
	if m := current(); m != nil {
		m.upstreamRequests.WithLabelValues(status).Inc()
		m.upstreamLatency.Observe(latencyMs)
	}
}

// UpdateBreakerState publishes a circuit breaker state.
func UpdateBreakerState(name string, state int) {
	if m := current(); m != nil {
		m.breakerState.WithLabelValues(name).Set(float64(state))
	}
}

// HTTP metrics.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if m := current(); m != nil {
		m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if m := current(); m != nil {
		m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// AddStreamClients moves the websocket client gauge by delta.
func AddStreamClients(delta int) {
	if m := current(); m != nil {
		m.streamClients.Add(float64(delta))
	}
}

// Queue metrics.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	if m := current(); m != nil {
		m.queueSize.Set(float64(size))
	}
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	if m := current(); m != nil {
		m.queueCapacity.Set(float64(capacity))
	}
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	if m := current(); m != nil {
		m.queueUtilization.Set(utilization)
	}
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	if m := current(); m != nil {
		m.queueEnqueue.Inc()
	}
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	if m := current(); m != nil {
		m.queueDequeue.Inc()
	}
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	if m := current(); m != nil {
		m.queueEnqueueErrors.Inc()
	}
}

// Worker metrics.

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	if m := current(); m != nil {
		m.workerCount.Set(float64(count))
	}
}

// AddWorkerActive moves the active worker gauge by delta.
func AddWorkerActive(delta int) {
	if m := current(); m != nil {
		m.workerActiveCount.Add(float64(delta))
	}
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if m := current(); m != nil {
		m.workerProcessingLatency.Observe(latencyMs)
	}
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	if m := current(); m != nil {
		m.workerErrors.Inc()
	}
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if m := current(); m != nil {
		m.errorsByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// System metrics.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if m := current(); m != nil {
		m.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if m := current(); m != nil {
		m.systemGoroutineCount.Set(float64(count))
	}
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if m := current(); m != nil {
		m.systemGCPauseTime.Observe(pauseMs)
	}
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
