// Package telemetry owns the Prometheus collectors for the evidence pipeline.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "evidence"

// Outcome labels shared by the provider and harvest counters.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeUnsupported = "unsupported"
)

// Metrics is safe to use through a nil pointer; every method becomes a no-op.
type Metrics struct {
	registry *prometheus.Registry

	providerRequests *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	providerResults  *prometheus.CounterVec
	harvestOutcomes  *prometheus.CounterVec
	limiterWait      *prometheus.HistogramVec
	dedupDrops       *prometheus.CounterVec
	fallbacks        prometheus.Counter
}

// New registers the collectors on a fresh registry together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Search provider calls by provider, mode and outcome.",
		}, []string{"provider", "mode", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Search provider call latency including rate limiter wait.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "mode"}),
		providerResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_results_total",
			Help:      "Hits returned by search providers.",
		}, []string{"provider", "mode"}),
		harvestOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "harvest_outcomes_total",
			Help:      "Harvest attempts by outcome reason.",
		}, []string{"outcome"}),
		limiterWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ratelimit_wait_seconds",
			Help:      "Time spent waiting for rate limiter tokens.",
			Buckets:   []float64{0, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"limiter"}),
		dedupDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_dropped_total",
			Help:      "Items dropped as duplicates by stage.",
		}, []string{"stage"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_fallbacks_total",
			Help:      "Discovery retries without the include-domain filter.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.providerRequests,
		m.providerLatency,
		m.providerResults,
		m.harvestOutcomes,
		m.limiterWait,
		m.dedupDrops,
		m.fallbacks,
	)
	return m
}

// Registry exposes the underlying registry for tests and custom handlers.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveProvider(provider, mode, outcome string, results int, took time.Duration) {
	if m == nil {
		return
	}
	m.providerRequests.WithLabelValues(provider, mode, outcome).Inc()
	m.providerLatency.WithLabelValues(provider, mode).Observe(took.Seconds())
	if results > 0 {
		m.providerResults.WithLabelValues(provider, mode).Add(float64(results))
	}
}

func (m *Metrics) ObserveHarvest(outcome string) {
	if m == nil {
		return
	}
	m.harvestOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveWait satisfies ratelimit.Observer.
func (m *Metrics) ObserveWait(limiter string, wait time.Duration) {
	if m == nil {
		return
	}
	m.limiterWait.WithLabelValues(limiter).Observe(wait.Seconds())
}

func (m *Metrics) ObserveDedup(stage string, dropped int) {
	if m == nil || dropped <= 0 {
		return
	}
	m.dedupDrops.WithLabelValues(stage).Add(float64(dropped))
}

func (m *Metrics) ObserveFallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}
