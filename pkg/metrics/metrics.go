// Package metrics exposes Prometheus collectors for remote calls and row
// fetches made by the pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for a pipeline process.
type Metrics struct {
	// Remote call metrics
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge

	// Row metrics
	rowsFetched  *prometheus.CounterVec
	rowsRejected *prometheus.CounterVec

	// Run metrics
	runsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics instance backed by its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matrix_remote_requests_total",
				Help: "Total number of requests sent to the numbers service by endpoint and status",
			},
			[]string{"endpoint", "status_code"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "matrix_remote_request_duration_seconds",
				Help:    "Numbers service request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),

		requestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "matrix_remote_requests_in_flight",
				Help: "Number of numbers service requests currently awaiting a response",
			},
		),

		rowsFetched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matrix_rows_fetched_total",
				Help: "Total number of rows accepted into an assembled matrix",
			},
			[]string{"dataset"},
		),

		rowsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matrix_rows_rejected_total",
				Help: "Total number of rows rejected by dataset and reason",
			},
			[]string{"dataset", "reason"},
		),

		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matrix_runs_total",
				Help: "Total number of pipeline runs by final stage",
			},
			[]string{"stage"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.requestsInFlight,
		m.rowsFetched,
		m.rowsRejected,
		m.runsTotal,
	)

	return m
}

// RecordRequest records a completed remote request. statusCode is 0 when no
// response arrived.
func (m *Metrics) RecordRequest(endpoint string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	m.requestsTotal.WithLabelValues(endpoint, status).Inc()
	m.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RequestStarted increments the in-flight gauge and returns the matching
// decrement.
func (m *Metrics) RequestStarted() func() {
	if m == nil {
		return func() {}
	}
	m.requestsInFlight.Inc()
	return m.requestsInFlight.Dec
}

// RecordRowFetched records a row accepted for dataset.
func (m *Metrics) RecordRowFetched(dataset string) {
	if m == nil {
		return
	}
	m.rowsFetched.WithLabelValues(dataset).Inc()
}

// RecordRowRejected records a row rejected for dataset.
func (m *Metrics) RecordRowRejected(dataset, reason string) {
	if m == nil {
		return
	}
	m.rowsRejected.WithLabelValues(dataset, reason).Inc()
}

// RecordRun records a finished run by the stage it ended in.
func (m *Metrics) RecordRun(stage string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(stage).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RequestTimer measures a single remote request.
type RequestTimer struct {
	start    time.Time
	metrics  *Metrics
	endpoint string
	done     func()
}

// NewRequestTimer starts timing a request to endpoint.
func (m *Metrics) NewRequestTimer(endpoint string) *RequestTimer {
	return &RequestTimer{
		start:    time.Now(),
		metrics:  m,
		endpoint: endpoint,
		done:     m.RequestStarted(),
	}
}

// Finish records the request outcome.
func (rt *RequestTimer) Finish(statusCode int) {
	rt.done()
	rt.metrics.RecordRequest(rt.endpoint, statusCode, time.Since(rt.start))
}
