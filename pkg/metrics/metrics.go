package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_cache_hits_total",
		Help: "Total number of tile cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_cache_misses_total",
		Help: "Total number of tile cache misses",
	})

	CacheStores = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_cache_stores_total",
		Help: "Total number of tile cache store operations",
	})

	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_cache_evictions_total",
		Help: "Total number of tiles evicted from the cache",
	})

	FetchAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_fetch_attempts_total",
		Help: "Total number of upstream HTTP fetch attempts",
	})

	FetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tile_fetch_failures_total",
		Help: "Total number of failed tile fetches by reason",
	}, []string{"reason"})

	UpstreamLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tile_upstream_latency_seconds",
		Help:    "Latency of upstream tile fetches in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// Redis metrics
	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "redis_operation_duration_seconds",
		Help:    "Duration of Redis operations in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"operation"})

	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redis_errors_total",
		Help: "Total number of Redis errors",
	}, []string{"operation"})
)
