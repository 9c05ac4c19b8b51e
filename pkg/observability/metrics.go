package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the index server.
type Metrics struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestErrors   *prometheus.CounterVec

	// Index operation metrics
	VectorsInserted prometheus.Counter
	SearchesTotal   prometheus.Counter
	SearchLatency   prometheus.Histogram
	SearchResultSize prometheus.Histogram

	// Index state metrics
	IndexSize     prometheus.Gauge
	IndexMaxLayer prometheus.Gauge

	// Snapshot metrics
	SnapshotSaves        prometheus.Counter
	SnapshotSaveDuration prometheus.Histogram
	SnapshotLoads        prometheus.Counter
	SnapshotLoadDuration prometheus.Histogram

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
	CacheSize   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics with the given
// registerer. A nil registerer uses the default one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "annex_requests_total",
				Help: "Total number of requests by method and status",
			},
			[]string{"method", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "annex_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method"},
		),
		RequestErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "annex_request_errors_total",
				Help: "Total number of request errors by method and error kind",
			},
			[]string{"method", "kind"},
		),

		VectorsInserted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "annex_vectors_inserted_total",
				Help: "Total number of vectors inserted",
			},
		),
		SearchesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "annex_searches_total",
				Help: "Total number of search operations",
			},
		),
		SearchLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "annex_search_latency_seconds",
				Help:    "Search latency in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		SearchResultSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "annex_search_result_size",
				Help:    "Number of results returned by search",
				Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500},
			},
		),

		IndexSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "annex_index_size",
				Help: "Number of vectors in the index",
			},
		),
		IndexMaxLayer: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "annex_index_max_layer",
				Help: "Top layer of the HNSW graph",
			},
		),

		SnapshotSaves: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "annex_snapshot_saves_total",
				Help: "Total number of snapshot save operations",
			},
		),
		SnapshotSaveDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "annex_snapshot_save_duration_seconds",
				Help:    "Snapshot save duration in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
			},
		),
		SnapshotLoads: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "annex_snapshot_loads_total",
				Help: "Total number of snapshot load operations",
			},
		),
		SnapshotLoadDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "annex_snapshot_load_duration_seconds",
				Help:    "Snapshot load duration in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
			},
		),

		CacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "annex_cache_hits_total",
				Help: "Total number of query cache hits",
			},
		),
		CacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "annex_cache_misses_total",
				Help: "Total number of query cache misses",
			},
		),
		CacheSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "annex_cache_size",
				Help: "Current number of entries in the query cache",
			},
		),
	}
}

// RecordRequest records a request with duration and status.
func (m *Metrics) RecordRequest(method, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, status).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordError records a request error by kind.
func (m *Metrics) RecordError(method, kind string) {
	m.RequestErrors.WithLabelValues(method, kind).Inc()
}

// RecordInsert records vector insertions.
func (m *Metrics) RecordInsert(count int) {
	m.VectorsInserted.Add(float64(count))
}

// RecordSearch records a search operation.
func (m *Metrics) RecordSearch(duration time.Duration, resultSize int) {
	m.SearchesTotal.Inc()
	m.SearchLatency.Observe(duration.Seconds())
	m.SearchResultSize.Observe(float64(resultSize))
}

// RecordSnapshotSave records a snapshot save.
func (m *Metrics) RecordSnapshotSave(duration time.Duration) {
	m.SnapshotSaves.Inc()
	m.SnapshotSaveDuration.Observe(duration.Seconds())
}

// RecordSnapshotLoad records a snapshot load.
func (m *Metrics) RecordSnapshotLoad(duration time.Duration) {
	m.SnapshotLoads.Inc()
	m.SnapshotLoadDuration.Observe(duration.Seconds())
}

// RecordCacheHit records a query cache hit.
func (m *Metrics) RecordCacheHit() {
	m.CacheHits.Inc()
}

// RecordCacheMiss records a query cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.CacheMisses.Inc()
}

// UpdateIndex updates the index state gauges.
func (m *Metrics) UpdateIndex(size, maxLayer int) {
	m.IndexSize.Set(float64(size))
	m.IndexMaxLayer.Set(float64(maxLayer))
}

// UpdateCacheSize updates the cache size gauge.
func (m *Metrics) UpdateCacheSize(size int) {
	m.CacheSize.Set(float64(size))
}
