package retry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reqpipe",
			Subsystem: "retry",
			Name:      "attempts_total",
			Help:      "Total number of upstream call attempts by outcome",
		},
		[]string{"upstream", "outcome"},
	)

	rejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reqpipe",
			Subsystem: "retry",
			Name:      "rejected_total",
			Help:      "Total number of requests rejected by an open circuit before any attempt",
		},
		[]string{"upstream"},
	)

	exhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reqpipe",
			Subsystem: "retry",
			Name:      "exhausted_total",
			Help:      "Total number of operations that failed every attempt",
		},
		[]string{"upstream"},
	)

	backoffDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "reqpipe",
			Subsystem: "retry",
			Name:      "backoff_duration_seconds",
			Help:      "Duration of backoff waits between attempts",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)
)

func recordAttempt(upstream, outcome string) {
	attemptsTotal.WithLabelValues(upstream, outcome).Inc()
}

func recordRejected(upstream string) {
	rejectedTotal.WithLabelValues(upstream).Inc()
}

func recordExhausted(upstream string) {
	exhaustedTotal.WithLabelValues(upstream).Inc()
}

func recordBackoff(d time.Duration) {
	backoffDuration.Observe(d.Seconds())
}
