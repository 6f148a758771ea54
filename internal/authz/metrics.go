package authz

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// decisionsTotal counts authorization decisions by outcome.
	decisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Total number of authorization decisions",
		},
		[]string{"outcome"},
	)

	// decisionDuration observes decision latency.
	decisionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "authz_decision_duration_seconds",
			Help:    "Authorization decision duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.000001, 10, 8),
		},
	)

	// reloadsTotal counts rule table reloads.
	reloadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authz_reloads_total",
			Help: "Total number of rule table reloads",
		},
	)
)

// recordDecision records one authorization decision.
func recordDecision(outcome string, elapsed time.Duration) {
	decisionsTotal.WithLabelValues(outcome).Inc()
	decisionDuration.Observe(elapsed.Seconds())
}

// recordReload records a rule table reload.
func recordReload() {
	reloadsTotal.Inc()
}
