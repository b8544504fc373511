package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/foxzi/pushry/internal/push"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for pushry
type Metrics struct {
	// Send engine
	SendsTotal           *prometheus.CounterVec
	BatchesTotal         prometheus.Counter
	BatchSize            prometheus.Histogram
	BatchDurationSeconds prometheus.Histogram
	RejectedTokensTotal  prometheus.Counter

	// Runs
	RunsTotal          *prometheus.CounterVec
	RunDurationSeconds prometheus.Histogram
	RunSkippedTotal    prometheus.Counter
	RunsActive         prometheus.Gauge

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// System metrics
	UptimeSeconds    prometheus.Gauge
	Goroutines       prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		SendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pushry_sends_total",
				Help: "Total number of push send attempts by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),
		BatchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pushry_batches_total",
				Help: "Total number of completed batches",
			},
		),
		BatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pushry_batch_size",
				Help:    "Number of tokens per batch",
				Buckets: []float64{1, 10, 50, 100, 200, 300, 400, 500},
			},
		),
		BatchDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pushry_batch_duration_seconds",
				Help:    "Time spent sending one batch",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
		RejectedTokensTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pushry_rejected_tokens_total",
				Help: "Total number of malformed tokens dropped before sending",
			},
		),

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pushry_runs_total",
				Help: "Total number of send runs",
			},
			[]string{"status"},
		),
		RunDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pushry_run_duration_seconds",
				Help:    "Send run duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
			},
		),
		RunSkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pushry_run_skipped_tokens_total",
				Help: "Total number of tokens never dispatched because a run was cancelled",
			},
		),
		RunsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pushry_runs_active",
				Help: "Number of send runs currently in progress",
			},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pushry_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pushry_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pushry_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pushry_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pushry_goroutines",
				Help: "Number of active goroutines",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pushry_storage_used_bytes",
				Help: "Size of local data files in bytes",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.SendsTotal,
		m.BatchesTotal,
		m.BatchSize,
		m.BatchDurationSeconds,
		m.RejectedTokensTotal,
		m.RunsTotal,
		m.RunDurationSeconds,
		m.RunSkippedTotal,
		m.RunsActive,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.UptimeSeconds,
		m.Goroutines,
		m.StorageUsedBytes,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// ObserveSend records the outcome of one token send.
// Safe for concurrent use by batch workers.
func (m *Metrics) ObserveSend(channel push.Channel, o push.Outcome) {
	m.SendsTotal.WithLabelValues(string(channel), push.OutcomeLabel(o)).Inc()
}

// ObserveBatch records a completed batch
func (m *Metrics) ObserveBatch(size int, d time.Duration) {
	m.BatchesTotal.Inc()
	m.BatchSize.Observe(float64(size))
	m.BatchDurationSeconds.Observe(d.Seconds())
}

// ObserveRun records a finished send run
func (m *Metrics) ObserveRun(result *push.Result) {
	status := "completed"
	if result.Cancelled() {
		status = "cancelled"
		m.RunSkippedTotal.Add(float64(result.Skipped))
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDurationSeconds.Observe(result.Duration.Seconds())
}

// ObserveRejected records tokens dropped by pre-send validation
func (m *Metrics) ObserveRejected(n int) {
	m.RejectedTokensTotal.Add(float64(n))
}
