package tiles

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheHits counts session resolutions served from the in-memory slot.
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_session_cache_hits_total",
		Help: "Total number of tile session resolutions served from cache",
	})

	// cacheMisses counts resolutions that had to create a new session.
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_session_cache_misses_total",
		Help: "Total number of tile session resolutions requiring creation",
	})

	// coalescedWaits counts callers that attached to an in-flight creation.
	coalescedWaits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_session_coalesced_waits_total",
		Help: "Total number of callers coalesced onto an in-flight session creation",
	})

	// creationsTotal counts session creation calls by outcome.
	creationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tile_session_creations_total",
			Help: "Total number of tile session creation calls",
		},
		[]string{"outcome"},
	)

	// tileFetchesTotal counts upstream tile fetches by outcome.
	tileFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tile_fetches_total",
			Help: "Total number of upstream tile fetches",
		},
		[]string{"outcome"},
	)
)
