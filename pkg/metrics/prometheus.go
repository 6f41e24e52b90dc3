// Package metrics provides Prometheus metrics for the padeliq service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	secondsBuckets   []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Pipeline
	analyses         *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	stageDuration    *prometheus.HistogramVec
	strokes          *prometheus.CounterVec
	segments         prometheus.Counter
	degradedFrames   *prometheus.CounterVec
	compositeScore   *prometheus.HistogramVec

	// In-flight guard
	inflight          prometheus.Gauge
	inflightRejected  prometheus.Counter
	backpressureTotal prometheus.Counter

	// Queue and workers
	queueSize         prometheus.Gauge
	queueCapacity     prometheus.Gauge
	queueEnqueue      *prometheus.CounterVec
	queueDequeue      prometheus.Counter
	workerCount       prometheus.Gauge
	workerActiveCount prometheus.Gauge
	workerErrors      prometheus.Counter

	// Store
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrors          *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
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
		namespace:        "padeliq",
		subsystem:        "analysis",
		histogramBuckets: prometheus.DefBuckets,
		secondsBuckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.analyses = auto.NewCounterVec(
		m.counterOpts("analyses_total", "Pipeline runs by video kind and outcome"),
		[]string{"kind", "outcome"},
	)
	m.analysisDuration = auto.NewHistogramVec(
		m.histogramOpts("analysis_duration_seconds", "End-to-end pipeline run duration", m.secondsBuckets),
		[]string{"kind"},
	)
	m.stageDuration = auto.NewHistogramVec(
		m.histogramOpts("stage_duration_seconds", "Duration of each pipeline stage", m.histogramBuckets),
		[]string{"stage"},
	)
	m.strokes = auto.NewCounterVec(
		m.counterOpts("strokes_total", "Accepted strokes by type"),
		[]string{"type"},
	)
	m.segments = auto.NewCounter(m.counterOpts("segments_total", "Stroke segments detected before validation"))
	m.degradedFrames = auto.NewCounterVec(
		m.counterOpts("degraded_frames_total", "Frames or poses dropped after an upstream timeout"),
		[]string{"component"},
	)
	m.compositeScore = auto.NewHistogramVec(
		m.histogramOpts("composite_score", "Distribution of composite scores", []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}),
		[]string{"kind"},
	)

	m.inflight = auto.NewGauge(m.gaugeOpts("inflight", "Analyses currently holding the in-flight guard"))
	m.inflightRejected = auto.NewCounter(m.counterOpts("inflight_rejected_total", "Requests rejected because the same video is in flight"))
	m.backpressureTotal = auto.NewCounter(m.counterOpts("backpressure_total", "Requests rejected because the queue was full"))

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current size of the job queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum queue capacity"))
	m.queueEnqueue = auto.NewCounterVec(
		m.counterOpts("queue_enqueue_total", "Enqueue attempts by outcome (ok, full, closed, cancelled)"),
		[]string{"outcome"},
	)
	m.queueDequeue = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Total number of jobs dequeued"))
	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Number of running workers"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Number of workers running a job"))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Jobs that finished with an error"))

	m.storeLatency = auto.NewHistogramVec(
		m.histogramOpts("store_latency_seconds", "Score store operation latency", m.histogramBuckets),
		[]string{"op"},
	)
	m.storeErrors = auto.NewCounterVec(m.counterOpts("store_errors_total", "Score store errors"), []string{"op"})

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
			[]float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500}),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpErrors = auto.NewCounterVec(
		m.counterOpts("http_errors_total", "HTTP error responses by endpoint and error kind"),
		[]string{"endpoint", "method", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// RecordAnalysis records a finished pipeline run.
func RecordAnalysis(kind, outcome string, seconds float64) {
	globalManager.analyses.WithLabelValues(kind, outcome).Inc()
	globalManager.analysisDuration.WithLabelValues(kind).Observe(seconds)
}

// RecordStage records the duration of one pipeline stage.
func RecordStage(stage string, seconds float64) {
	globalManager.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordStroke increments the accepted strokes counter for a type.
func RecordStroke(strokeType string) {
	globalManager.strokes.WithLabelValues(strokeType).Inc()
}

// RecordSegments adds detected segments.
func RecordSegments(n int) {
	globalManager.segments.Add(float64(n))
}

// RecordDegraded records a frame or pose dropped after a timeout.
func RecordDegraded(component string) {
	globalManager.degradedFrames.WithLabelValues(component).Inc()
}

// RecordCompositeScore observes a composite score.
func RecordCompositeScore(kind string, score float64) {
	globalManager.compositeScore.WithLabelValues(kind).Observe(score)
}

// UpdateInflight sets the number of held in-flight keys.
func UpdateInflight(n int64) {
	globalManager.inflight.Set(float64(n))
}

// RecordInflightRejected counts a duplicate request.
func RecordInflightRejected() {
	globalManager.inflightRejected.Inc()
}

// RecordBackpressure counts a request rejected by a full queue.
func RecordBackpressure() {
	globalManager.backpressureTotal.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an enqueue attempt by outcome.
func RecordQueueEnqueue(outcome string) {
	globalManager.queueEnqueue.WithLabelValues(outcome).Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeue.Inc()
}

// UpdateWorkerCount sets the number of running workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordStoreLatency observes a store operation.
func RecordStoreLatency(op string, seconds float64) {
	globalManager.storeLatency.WithLabelValues(op).Observe(seconds)
}

// RecordStoreError counts a failed store operation.
func RecordStoreError(op string) {
	globalManager.storeErrors.WithLabelValues(op).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error response.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.httpErrors.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
