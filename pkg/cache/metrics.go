package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts pages found in Redis.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rmsync_cache_hits_total",
			Help: "Total number of page cache hits",
		},
	)

	// CacheMisses counts pages not found in Redis.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rmsync_cache_misses_total",
			Help: "Total number of page cache misses",
		},
	)

	// NotModifiedResponses counts pages the server revalidated with 304.
	NotModifiedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rmsync_304_responses_total",
			Help: "Total number of 304 Not Modified responses",
		},
	)

	// CacheErrors tracks cache operation errors.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rmsync_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
