package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stateGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "reqpipe",
			Subsystem: "circuit_breaker",
			Name:      "state",
			Help:      "Current state of the circuit breaker (0=closed, 1=open, 2=half-open)",
		},
		[]string{"upstream"},
	)

	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reqpipe",
			Subsystem: "circuit_breaker",
			Name:      "requests_total",
			Help:      "Total number of requests checked against circuit breakers",
		},
		[]string{"upstream", "result"},
	)

	failuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reqpipe",
			Subsystem: "circuit_breaker",
			Name:      "failures_total",
			Help:      "Total number of failures recorded by circuit breakers",
		},
		[]string{"upstream"},
	)

	successesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reqpipe",
			Subsystem: "circuit_breaker",
			Name:      "successes_total",
			Help:      "Total number of successes recorded by circuit breakers",
		},
		[]string{"upstream"},
	)

	stateChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reqpipe",
			Subsystem: "circuit_breaker",
			Name:      "state_changes_total",
			Help:      "Total number of circuit breaker state changes",
		},
		[]string{"upstream", "from", "to"},
	)
)

func recordState(name string, state State) {
	stateGauge.WithLabelValues(name).Set(float64(state))
}

func recordRequest(name string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "rejected"
	}
	requestsTotal.WithLabelValues(name, result).Inc()
}

func recordFailure(name string) {
	failuresTotal.WithLabelValues(name).Inc()
}

func recordSuccess(name string) {
	successesTotal.WithLabelValues(name).Inc()
}

func recordStateChange(name string, from, to State) {
	stateChangesTotal.WithLabelValues(name, from.String(), to.String()).Inc()
	recordState(name, to)
}
