package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	backendFile  = "file"
	backendRedis = "redis"
)

var (
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchlist_session_cache_hits_total",
			Help: "Total number of persisted sessions loaded",
		},
		[]string{"backend"},
	)

	cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchlist_session_cache_misses_total",
			Help: "Total number of session loads that found nothing persisted",
		},
		[]string{"backend"},
	)

	cacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchlist_session_cache_errors_total",
			Help: "Total number of session cache operation errors",
		},
		[]string{"backend", "operation"}, // "load", "save"
	)
)
