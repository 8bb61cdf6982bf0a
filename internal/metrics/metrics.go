package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records resolve events as Prometheus series. It satisfies
// graph.Metrics.
type Metrics struct {
	registry *prometheus.Registry

	cacheHitsTotal     prometheus.Counter
	cacheMissesTotal   prometheus.Counter
	articlesFetched    prometheus.Histogram
	extractionsTotal   *prometheus.CounterVec
	extractionDuration *prometheus.HistogramVec
	jobsTotal          *prometheus.CounterVec
}

// New creates the collectors on their own registry so tests and multiple
// binaries never collide on the default one.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "newsgraph_cache_hits_total",
				Help: "Total number of graph requests served from the cache",
			},
		),
		cacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "newsgraph_cache_misses_total",
				Help: "Total number of graph requests that missed the cache",
			},
		),
		articlesFetched: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "newsgraph_articles_fetched",
				Help:    "Number of articles aggregated per extraction",
				Buckets: []float64{0, 1, 5, 10, 12, 15, 20},
			},
		),
		extractionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsgraph_extractions_total",
				Help: "Total number of graph extractions by outcome",
			},
			[]string{"outcome"},
		),
		extractionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "newsgraph_extraction_duration_seconds",
				Help:    "Duration of graph extractions including aggregation",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 120},
			},
			[]string{"outcome"},
		),
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsgraph_jobs_total",
				Help: "Total number of queued resolve jobs by result",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		m.cacheHitsTotal,
		m.cacheMissesTotal,
		m.articlesFetched,
		m.extractionsTotal,
		m.extractionDuration,
		m.jobsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) CacheHit() {
	m.cacheHitsTotal.Inc()
}

func (m *Metrics) CacheMiss() {
	m.cacheMissesTotal.Inc()
}

func (m *Metrics) ArticlesFetched(n int) {
	m.articlesFetched.Observe(float64(n))
}

func (m *Metrics) Extraction(outcome string, d time.Duration) {
	m.extractionsTotal.WithLabelValues(outcome).Inc()
	m.extractionDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// Job counts a processed queue message. result is one of "ack", "retry" or
// "dead".
func (m *Metrics) Job(result string) {
	m.jobsTotal.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
