package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// evaluationsTotal counts session evaluations by result.
	// result: "valid", "refreshed", "terminal"
	evaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_evaluations_total",
			Help: "Total number of session token evaluations",
		},
		[]string{"result"},
	)

	// refreshTotal counts refresh exchange calls by outcome.
	refreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_token_refresh_total",
			Help: "Total number of token refresh exchanges",
		},
		[]string{"outcome"},
	)
)
