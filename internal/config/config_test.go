package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, CacheTypeMemory, cfg.Cache.Type)
	assert.Equal(t, 60*time.Second, cfg.Cache.TTL.Duration())
	assert.Equal(t, 5, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, "roles", cfg.Auth.RolesClaim)
}

func TestValidate_ClampsDefaults(t *testing.T) {
	cfg := &PipelineConfig{}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.CircuitBreaker.CoolDown.Duration())
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.BaseDelay.Duration())
	assert.Equal(t, 0.25, cfg.Retry.Jitter)
	assert.Equal(t, 10000, cfg.Cache.MaxEntries)
	assert.Equal(t, "default", cfg.Upstream.Name)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PipelineConfig)
		errMsg string
	}{
		{
			name: "unknown cache type",
			mutate: func(c *PipelineConfig) {
				c.Cache.Type = "memcached"
			},
			errMsg: "cache.type",
		},
		{
			name: "redis cache without addr",
			mutate: func(c *PipelineConfig) {
				c.Cache.Type = CacheTypeRedis
			},
			errMsg: "cache.redis.addr",
		},
		{
			name: "rule missing role",
			mutate: func(c *PipelineConfig) {
				c.Authz.Rules = []RuleConfig{{Resource: "orders/*", Action: "read"}}
			},
			errMsg: "authz.rules[0]",
		},
		{
			name: "rule missing action",
			mutate: func(c *PipelineConfig) {
				c.Authz.Rules = []RuleConfig{{Role: "viewer", Resource: "orders/*"}}
			},
			errMsg: "authz.rules[0]",
		},
		{
			name: "api key without subject",
			mutate: func(c *PipelineConfig) {
				c.Auth.APIKeys = []APIKeyConfig{{Hash: "$2a$10$abc"}}
			},
			errMsg: "auth.apiKeys[0]",
		},
		{
			name: "rate limit enabled without rate",
			mutate: func(c *PipelineConfig) {
				c.Server.RateLimit.Enabled = true
				c.Server.RateLimit.RequestsPerSecond = 0
			},
			errMsg: "requestsPerSecond",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidate_NilConfig(t *testing.T) {
	var cfg *PipelineConfig
	assert.Error(t, cfg.Validate())
}
