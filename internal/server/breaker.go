package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker"

	"github.com/reqpipe/reqpipe/internal/observability"
)

// Breaker sheds load at the transport edge when the error rate spikes,
// before requests enter the pipeline. It is separate from the
// per-upstream breakers inside the retry executor.
func Breaker(name string, logger observability.Logger) gin.HandlerFunc {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 20 && ratio >= 0.75
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("edge circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()))
		},
	})

	return func(c *gin.Context) {
		_, err := cb.Execute(func() (interface{}, error) {
			c.Next()
			if c.Writer.Status() >= http.StatusInternalServerError {
				return nil, errServerFailure
			}
			return nil, nil
		})

		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "service overloaded",
			})
		}
	}
}

type serverFailure struct{}

func (serverFailure) Error() string { return "server failure" }

var errServerFailure = serverFailure{}
