package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// verificationsTotal counts credential verifications by type and result.
	verificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_verifications_total",
			Help: "Total number of credential verifications",
		},
		[]string{"type", "result"},
	)

	// verificationDuration observes verification latency.
	verificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auth_verification_duration_seconds",
			Help:    "Credential verification duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	// failuresTotal counts verification failures by reason.
	failuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_failures_total",
			Help: "Total number of verification failures by reason",
		},
		[]string{"reason"},
	)
)

// recordVerification records one verification outcome.
func recordVerification(authType, result string, elapsed time.Duration) {
	verificationsTotal.WithLabelValues(authType, result).Inc()
	verificationDuration.WithLabelValues(authType).Observe(elapsed.Seconds())
}

// recordFailure records a verification failure reason.
func recordFailure(reason string) {
	failuresTotal.WithLabelValues(reason).Inc()
}
