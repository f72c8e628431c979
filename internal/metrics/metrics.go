package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Search metrics
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_searches_total",
			Help: "Total number of search requests",
		},
		[]string{"handle", "engine", "status"},
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_search_duration_seconds",
			Help:    "Duration of search requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handle", "engine"},
	)

	// Backend metrics
	EngineRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_engine_request_duration_seconds",
			Help:    "Duration of backend engine calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"engine", "operation"},
	)

	EngineErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_engine_errors_total",
			Help: "Total number of backend engine errors",
		},
		[]string{"engine", "operation"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cache_hits_total",
			Help: "Total number of result cache hits",
		},
		[]string{"kind"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cache_misses_total",
			Help: "Total number of result cache misses",
		},
		[]string{"kind"},
	)
)
