// Package metrics holds the pipeline's Prometheus collectors.
//
// Every method is safe on a nil *Metrics, so components can take metrics
// as an optional dependency.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trumpsword"

// Metrics is the set of pipeline collectors.
type Metrics struct {
	itemsTotal      *prometheus.CounterVec
	syncTotal       *prometheus.CounterVec
	sourceErrors    *prometheus.CounterVec
	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	classifications *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. A nil reg gets a
// fresh private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		itemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Raw items processed, by source and outcome (created, resynced, dropped, failed).",
		}, []string{"source", "outcome"}),
		syncTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_total",
			Help:      "External sync attempts, by result.",
		}, []string{"result"}),
		sourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetch_errors_total",
			Help:      "Source fetch failures, by source.",
		}, []string{"source"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs, by kind (collect, historical, retry, reset).",
		}, []string{"kind"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Pipeline run duration, by kind.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"kind"}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Classifications, by event type and method.",
		}, []string{"type", "method"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by route, method and status.",
		}, []string{"handler", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration, by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"handler", "method"}),
		gatherer: reg,
	}
	reg.MustRegister(m.itemsTotal, m.syncTotal, m.sourceErrors, m.runsTotal, m.runDuration,
		m.classifications, m.httpRequests, m.httpDuration)
	return m
}

// ItemProcessed counts one item outcome for a source.
func (m *Metrics) ItemProcessed(source, outcome string) {
	if m == nil {
		return
	}
	m.itemsTotal.WithLabelValues(source, outcome).Inc()
}

// SyncResult counts one sync attempt ("success" or "failed").
func (m *Metrics) SyncResult(result string) {
	if m == nil {
		return
	}
	m.syncTotal.WithLabelValues(result).Inc()
}

// SourceError counts a failed fetch.
func (m *Metrics) SourceError(source string) {
	if m == nil {
		return
	}
	m.sourceErrors.WithLabelValues(source).Inc()
}

// Classified counts one classification.
func (m *Metrics) Classified(typ, method string) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(typ, method).Inc()
}

// ObserveRun counts a run of kind and records how long it took since start.
func (m *Metrics) ObserveRun(kind string, start time.Time) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(kind).Inc()
	m.runDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(handler, method string, status int, start time.Time) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(handler, method).Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
