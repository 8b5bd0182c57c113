package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	searchDuration  prometheus.Histogram
	ingestDuration  prometheus.Histogram
	reindexDuration prometheus.Histogram

	chunksTotal prometheus.Gauge

	cacheHitsTotal    prometheus.Counter
	cacheMissesTotal  prometheus.Counter
	dedupSkipsTotal   prometheus.Counter
	providerFallbacks *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			searchDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_search_duration_seconds",
					Help:    "Hybrid search duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			ingestDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_ingest_duration_seconds",
					Help:    "Chunk ingestion duration in seconds per source.",
					Buckets: prometheus.DefBuckets,
				},
			),
			reindexDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_reindex_duration_seconds",
					Help:    "Full reindex duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			chunksTotal: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_chunks_total",
					Help: "Total chunks currently indexed.",
				},
			),
			cacheHitsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "memory_cache_hits_total",
					Help: "Total embedding cache hits.",
				},
			),
			cacheMissesTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "memory_cache_misses_total",
					Help: "Total embedding cache misses.",
				},
			),
			dedupSkipsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "memory_dedup_skips_total",
					Help: "Total chunks skipped as duplicates during ingestion.",
				},
			),
			providerFallbacks: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_provider_fallbacks_total",
					Help: "Total embedding provider fallbacks by provider.",
				},
				[]string{"provider"},
			),
		}

		prometheus.MustRegister(
			m.searchDuration,
			m.ingestDuration,
			m.reindexDuration,
			m.chunksTotal,
			m.cacheHitsTotal,
			m.cacheMissesTotal,
			m.dedupSkipsTotal,
			m.providerFallbacks,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func ObserveSearch(duration time.Duration) {
	getMetrics().searchDuration.Observe(duration.Seconds())
}

func ObserveIngest(duration time.Duration) {
	getMetrics().ingestDuration.Observe(duration.Seconds())
}

func ObserveReindex(duration time.Duration) {
	getMetrics().reindexDuration.Observe(duration.Seconds())
}

func SetChunksTotal(total int) {
	getMetrics().chunksTotal.Set(float64(total))
}

func RecordCacheHit() {
	getMetrics().cacheHitsTotal.Inc()
}

func RecordCacheMiss() {
	getMetrics().cacheMissesTotal.Inc()
}

func RecordDedupSkip() {
	getMetrics().dedupSkipsTotal.Inc()
}

func RecordProviderFallback(provider string) {
	getMetrics().providerFallbacks.WithLabelValues(provider).Inc()
}
