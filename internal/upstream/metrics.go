package upstream

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	callDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reqpipe",
			Subsystem: "upstream",
			Name:      "call_duration_seconds",
			Help:      "Duration of upstream calls",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"upstream"},
	)

	statusTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reqpipe",
			Subsystem: "upstream",
			Name:      "error_status_total",
			Help:      "Total number of non-2xx upstream responses by status code",
		},
		[]string{"upstream", "status"},
	)
)

func recordCall(name string, d time.Duration) {
	callDuration.WithLabelValues(name).Observe(d.Seconds())
}

func recordStatus(name string, code int) {
	statusTotal.WithLabelValues(name, strconv.Itoa(code)).Inc()
}
