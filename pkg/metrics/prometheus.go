package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Delegate metrics
	assessmentsCreated *prometheus.CounterVec
	createErrors       *prometheus.CounterVec
	reads              *prometheus.CounterVec
	readErrors         *prometheus.CounterVec
	leasesActive       prometheus.Gauge

	// Subscriber fan-out
	dispatches       prometheus.Counter
	callbacks        prometheus.Counter
	callbackPanics   prometheus.Counter
	loopQueueDepth   prometheus.Gauge
	droppedCallbacks prometheus.Counter

	// Resolution
	resolutions      prometheus.Counter
	resolutionErrors *prometheus.CounterVec
	rebinds          prometheus.Counter

	// Store
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "nh",
		subsystem:        "tray",
		histogramBuckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.assessmentsCreated = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "assessments_created_total",
		Help:      "Assessments created through input delegates, by dimension",
	}, []string{"dimension"})

	m.createErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "assessment_create_errors_total",
		Help:      "Failed assessment writes, by reason",
	}, []string{"reason"})

	m.reads = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "assessment_reads_total",
		Help:      "Latest-assessment reads, by source (cache, backend, static)",
	}, []string{"source"})

	m.readErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "assessment_read_errors_total",
		Help:      "Latest-assessment reads that failed and were reported as not assessed",
	}, []string{"delegate"})

	m.leasesActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "delegate_leases_active",
		Help:      "Delegates handed out and not yet released",
	})

	m.dispatches = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dispatches_total",
		Help:      "Dispatch calls that had at least one subscriber",
	})

	m.callbacks = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "callbacks_run_total",
		Help:      "Subscriber callbacks executed by the task loop",
	})

	m.callbackPanics = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "callback_panics_total",
		Help:      "Subscriber callbacks that panicked",
	})

	m.droppedCallbacks = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "callbacks_dropped_total",
		Help:      "Callbacks that could not be scheduled because the loop was closed",
	})

	m.loopQueueDepth = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "loop_queue_depth",
		Help:      "Tasks waiting in the dispatch loop",
	})

	m.resolutions = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "resolutions_total",
		Help:      "Successful widget resolutions",
	})

	m.resolutionErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "resolution_errors_total",
		Help:      "Failed widget resolutions, by reason",
	}, []string{"reason"})

	m.rebinds = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "surface_rebinds_total",
		Help:      "Surfaces rebuilt after an active method change",
	})

	m.storeLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_latency_milliseconds",
		Help:      "Assessment store operation latency in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"backend", "op"})

	m.storeErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_errors_total",
		Help:      "Assessment store operation errors",
	}, []string{"backend", "op"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "HTTP requests by endpoint, method and status",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
}

// RecordAssessmentCreated counts a successful write on dimension.
func RecordAssessmentCreated(dimension string) {
	globalManager.assessmentsCreated.WithLabelValues(dimension).Inc()
}

// RecordCreateError counts a failed write.
func RecordCreateError(reason string) {
	globalManager.createErrors.WithLabelValues(reason).Inc()
}

// RecordRead counts a latest-assessment read served from source.
func RecordRead(source string) {
	globalManager.reads.WithLabelValues(source).Inc()
}

// RecordReadError counts a swallowed read failure.
func RecordReadError(delegate string) {
	globalManager.readErrors.WithLabelValues(delegate).Inc()
}

// LeaseAcquired increments the live lease gauge.
func LeaseAcquired() { globalManager.leasesActive.Inc() }

// LeaseReleased decrements the live lease gauge.
func LeaseReleased() { globalManager.leasesActive.Dec() }

// RecordDispatch counts a dispatch with subscribers.
func RecordDispatch() { globalManager.dispatches.Inc() }

// RecordCallback counts an executed callback.
func RecordCallback() { globalManager.callbacks.Inc() }

// RecordCallbackPanic counts a recovered callback panic.
func RecordCallbackPanic() { globalManager.callbackPanics.Inc() }

// RecordCallbackDropped counts a callback the loop refused.
func RecordCallbackDropped() { globalManager.droppedCallbacks.Inc() }

// UpdateLoopQueueDepth sets the number of pending loop tasks.
func UpdateLoopQueueDepth(depth int) {
	globalManager.loopQueueDepth.Set(float64(depth))
}

// RecordResolution counts a successful resolution.
func RecordResolution() { globalManager.resolutions.Inc() }

// RecordResolutionError counts a failed resolution.
func RecordResolutionError(reason string) {
	globalManager.resolutionErrors.WithLabelValues(reason).Inc()
}

// RecordRebind counts a surface rebind.
func RecordRebind() { globalManager.rebinds.Inc() }

// RecordStoreLatency observes a store operation latency in milliseconds.
func RecordStoreLatency(backend, op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(backend, op).Observe(latencyMs)
}

// RecordStoreError counts a store operation error.
func RecordStoreError(backend, op string) {
	globalManager.storeErrors.WithLabelValues(backend, op).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// GetRegistry returns the registry the global manager uses.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Global returns the global manager, for tests that read collector values.
func Global() *Manager {
	return globalManager
}

// LeasesActive exposes the lease gauge.
func (m *Manager) LeasesActive() prometheus.Gauge { return m.leasesActive }

// CallbackPanics exposes the callback panic counter.
func (m *Manager) CallbackPanics() prometheus.Counter { return m.callbackPanics }

// ReadErrors exposes the read error counter for one delegate kind.
func (m *Manager) ReadErrors(delegate string) prometheus.Counter {
	return m.readErrors.WithLabelValues(delegate)
}

// ResolutionErrors exposes the resolution error counter for one reason.
func (m *Manager) ResolutionErrors(reason string) prometheus.Counter {
	return m.resolutionErrors.WithLabelValues(reason)
}
