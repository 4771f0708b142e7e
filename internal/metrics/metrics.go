package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts completed repair cycles.
	CyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rotatarr_cycles_total",
			Help: "Total number of completed repair cycles",
		},
	)

	// IndexersChecked counts per-indexer decisions by final state.
	IndexersChecked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rotatarr_indexers_checked_total",
			Help: "Total number of per-indexer repair decisions",
		},
		[]string{"state"},
	)

	// CandidatesTried counts remediation candidates tested.
	CandidatesTried = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rotatarr_candidates_tried_total",
			Help: "Total number of remediation candidates tested",
		},
		[]string{"payload"},
	)

	// APIRequests counts aggregator API calls by endpoint and status code.
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rotatarr_api_requests_total",
			Help: "Total number of aggregator API requests",
		},
		[]string{"endpoint", "code"},
	)

	// IndexersInCooldown tracks how many indexers are currently skipped.
	IndexersInCooldown = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rotatarr_indexers_in_cooldown",
			Help: "Number of indexers currently inside a cooldown window",
		},
	)

	// CycleDuration tracks wall time per repair cycle.
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rotatarr_cycle_duration_seconds",
			Help:    "Repair cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
