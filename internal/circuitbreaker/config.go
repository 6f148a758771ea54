package circuitbreaker

import (
	"time"

	"github.com/reqpipe/reqpipe/internal/config"
)

// Config holds configuration for a circuit breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures before
	// opening the circuit.
	FailureThreshold int

	// CoolDown is how long the circuit stays open before admitting
	// a probe.
	CoolDown time.Duration

	// OnStateChange is called when the circuit breaker state changes.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		FailureThreshold: 5,
		CoolDown:         30 * time.Second,
	}
}

// Validate clamps invalid values to defaults.
func (c *Config) Validate() {
	if c.FailureThreshold < 1 {
		c.FailureThreshold = 5
	}
	if c.CoolDown < time.Millisecond {
		c.CoolDown = 30 * time.Second
	}
}

// FromConfig builds a Config from the pipeline configuration.
func FromConfig(cfg config.CircuitBreakerConfig) *Config {
	return &Config{
		FailureThreshold: cfg.FailureThreshold,
		CoolDown:         cfg.CoolDown.Duration(),
	}
}

// WithFailureThreshold sets the consecutive failure threshold.
func (c *Config) WithFailureThreshold(n int) *Config {
	c.FailureThreshold = n
	return c
}

// WithCoolDown sets the cool-down duration.
func (c *Config) WithCoolDown(d time.Duration) *Config {
	c.CoolDown = d
	return c
}

// WithOnStateChange sets the state change callback.
func (c *Config) WithOnStateChange(fn func(name string, from, to State)) *Config {
	c.OnStateChange = fn
	return c
}
