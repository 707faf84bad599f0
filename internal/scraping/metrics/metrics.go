package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProbesTotal tracks credential health probes by outcome status
	ProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_credential_probes_total",
			Help: "Total number of credential health probes",
		},
		[]string{"outcome"},
	)

	// SelectionsTotal tracks pool selections by the path taken
	SelectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_pool_selections_total",
			Help: "Total number of credential pool selections",
		},
		[]string{"path"},
	)

	// RecoveriesTotal tracks credentials recovered by probing
	RecoveriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_credential_recoveries_total",
			Help: "Total number of credentials recovered to active by probing",
		},
	)

	// ReplacementsTotal tracks mid-request credential replacements by tier
	ReplacementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_credential_replacements_total",
			Help: "Total number of mid-request credential replacements",
		},
		[]string{"tier"},
	)

	// ItemsTotal tracks processed work items by result
	ItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_batch_items_total",
			Help: "Total number of processed work items",
		},
		[]string{"result"},
	)

	// ActorRunDuration tracks end-to-end actor run duration
	ActorRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harvester_actor_run_duration_seconds",
			Help:    "End-to-end actor run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// ActorPollAttempts tracks how many status polls a run needed
	ActorPollAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harvester_actor_poll_attempts",
			Help:    "Number of status polls per actor run",
			Buckets: []float64{1, 2, 5, 10, 20, 40, 60},
		},
	)
)
