// Package metrics defines the Prometheus collectors for pipeline execution,
// index builds and external-model calls, and exposes a scrape handler.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the experiment platform.
type Metrics struct {
	PipelineQueriesTotal *prometheus.CounterVec
	PipelineLatency      *prometheus.HistogramVec
	RunCacheHitsTotal    prometheus.Counter
	RunCacheMissesTotal  prometheus.Counter
	ExpansionNoopTotal   *prometheus.CounterVec
	ExternalCallsTotal   *prometheus.CounterVec
	IndexDocumentsTotal  *prometheus.CounterVec
	IndexBuildsTotal     *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec

	registry *prometheus.Registry
}

var (
	defaultOnce sync.Once
	defaultM    *Metrics
)

// Default returns a process-wide Metrics registered on its own registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultM = New(prometheus.NewRegistry())
	})
	return defaultM
}

// New creates the collectors and registers them on reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		PipelineQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_queries_total",
				Help: "Queries executed per pipeline by outcome (ok, empty, error).",
			},
			[]string{"pipeline", "outcome"},
		),
		PipelineLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_latency_seconds",
				Help:    "Per-query pipeline latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"pipeline"},
		),
		RunCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "run_cache_hits_total",
				Help: "Pipeline runs served from the persisted run cache.",
			},
		),
		RunCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "run_cache_misses_total",
				Help: "Pipeline runs that had to be computed.",
			},
		),
		ExpansionNoopTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "expansion_noop_total",
				Help: "Expansion stages that returned the query unchanged, by model and reason.",
			},
			[]string{"model", "reason"},
		),
		ExternalCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "external_calls_total",
				Help: "Calls to external models by collaborator and status.",
			},
			[]string{"collaborator", "status"},
		),
		IndexDocumentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_documents_total",
				Help: "Documents indexed by index variant.",
			},
			[]string{"index"},
		),
		IndexBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_builds_total",
				Help: "Index build attempts by status.",
			},
			[]string{"status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.PipelineQueriesTotal,
		m.PipelineLatency,
		m.RunCacheHitsTotal,
		m.RunCacheMissesTotal,
		m.ExpansionNoopTotal,
		m.ExternalCallsTotal,
		m.IndexDocumentsTotal,
		m.IndexBuildsTotal,
		m.CircuitBreakerState,
	)
	return m
}

// Handler returns the Prometheus scrape HTTP handler for m's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
