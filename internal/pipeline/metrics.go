package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reqpipe",
			Subsystem: "pipeline",
			Name:      "requests_total",
			Help:      "Total number of pipeline executions by outcome",
		},
		[]string{"outcome"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reqpipe",
			Subsystem: "pipeline",
			Name:      "request_duration_seconds",
			Help:      "End-to-end pipeline execution duration",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reqpipe",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages",
			Buckets: []float64{
				.0001, .0005, .001, .005,
				.01, .05, .1, .5, 1, 5,
			},
		},
		[]string{"stage", "result"},
	)
)

func recordRequest(outcome string, d time.Duration) {
	requestsTotal.WithLabelValues(outcome).Inc()
	requestDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func recordStage(stage string, d time.Duration, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	stageDuration.WithLabelValues(stage, result).Observe(d.Seconds())
}
