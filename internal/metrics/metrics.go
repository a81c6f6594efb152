// Package metrics provides Prometheus metrics for the judge engine:
// HTTP request metrics for the Submission Gateway, and job lifecycle
// metrics for the Worker Pool and Sandbox Driver.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	instance *Metrics
)

// Metrics holds all Prometheus metric collectors for the judge engine.
type Metrics struct {
	// HTTP Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	HTTPResponseSize     *prometheus.HistogramVec

	// Job lifecycle metrics
	JobsQueued        prometheus.Counter
	JobsStarted       prometheus.Counter
	JobsCompleted     *prometheus.CounterVec // by terminal status
	ExecutionDuration prometheus.Histogram
	ActiveJobs        prometheus.Gauge
	QueueDepth        prometheus.Gauge
	WorkerCapacity    prometheus.Gauge

	// System Metrics
	BuildInfo   *prometheus.GaugeVec
	StartupTime prometheus.Gauge
}

// Get returns the singleton Metrics instance.
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	m := &Metrics{}

	m.HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "judge",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by endpoint, method, and status code",
		},
		[]string{"endpoint", "method", "status"},
	)

	m.HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "judge",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "method"},
	)

	m.HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "judge",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)

	m.HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "judge",
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"endpoint"},
	)

	m.JobsQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "judge",
			Subsystem: "jobs",
			Name:      "queued_total",
			Help:      "Total number of jobs enqueued to the worker pool",
		},
	)

	m.JobsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "judge",
			Subsystem: "jobs",
			Name:      "started_total",
			Help:      "Total number of jobs claimed by a worker",
		},
	)

	m.JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "judge",
			Subsystem: "jobs",
			Name:      "completed_total",
			Help:      "Total number of jobs reaching a terminal status, by status",
		},
		[]string{"status"},
	)

	m.ExecutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "judge",
			Subsystem: "jobs",
			Name:      "execution_duration_seconds",
			Help:      "Sandbox execution duration in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		},
	)

	m.ActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "judge",
			Subsystem: "jobs",
			Name:      "active",
			Help:      "Number of jobs currently claimed by a worker",
		},
	)

	m.QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "judge",
			Subsystem: "jobs",
			Name:      "queue_depth",
			Help:      "Number of jobs waiting in the dispatcher queue",
		},
	)

	m.WorkerCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "judge",
			Subsystem: "jobs",
			Name:      "worker_capacity",
			Help:      "Configured worker pool size",
		},
	)

	m.BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "judge",
			Subsystem: "build",
			Name:      "info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_date"},
	)

	m.StartupTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "judge",
			Subsystem: "server",
			Name:      "startup_timestamp",
			Help:      "Server startup timestamp",
		},
	)

	m.StartupTime.Set(float64(time.Now().Unix()))

	return m
}

// RecordHTTPRequest records an HTTP request metric.
func (m *Metrics) RecordHTTPRequest(endpoint, method string, statusCode int, duration time.Duration, responseSize int) {
	status := statusCodeToLabel(statusCode)
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(endpoint, method).Observe(duration.Seconds())
	m.HTTPResponseSize.WithLabelValues(endpoint).Observe(float64(responseSize))
}

// SetBuildInfo sets build information.
func (m *Metrics) SetBuildInfo(version, commit, buildDate string) {
	m.BuildInfo.WithLabelValues(version, commit, buildDate).Set(1)
}

func statusCodeToLabel(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
