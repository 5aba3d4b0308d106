package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pullpush_cache_hits_total",
			Help: "Total number of page cache hits",
		},
	)

	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pullpush_cache_misses_total",
			Help: "Total number of page cache misses",
		},
	)

	cacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pullpush_cache_size_bytes",
			Help: "Bytes written to the page cache",
		},
	)

	cacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pullpush_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
