package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine-level metrics for the arbitrage scheduler (§5/§6): these track
// the scan/analyze/execute cycle itself.
var (
	CyclesRun = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spotarb_cycles_total",
		Help: "Total number of scan-analyze-execute cycles run",
	})

	OpportunitiesFound = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spotarb_opportunities_found_total",
		Help: "Total number of opportunities selected by the analyzer for execution",
	})

	ExecutionsByState = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spotarb_executions_total",
		Help: "Completed executions by terminal state",
	}, []string{"state"})

	VenueBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "spotarb_venue_breaker_state",
		Help: "Per-venue circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"venue"})

	CycleDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "spotarb_cycle_duration_seconds",
		Help:    "Wall-clock duration of one full scan-analyze-execute cycle",
		Buckets: prometheus.DefBuckets,
	})
)

// RecordExecution increments ExecutionsByState for the given terminal
// state string.
func RecordExecution(state string) {
	ExecutionsByState.WithLabelValues(state).Inc()
}
