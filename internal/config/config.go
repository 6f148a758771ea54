// Package config defines the pipeline configuration model and its YAML
// loading, validation, and file-watching machinery.
package config

import (
	"errors"
	"fmt"
	"time"
)

// PipelineConfig is the root configuration for the request pipeline.
type PipelineConfig struct {
	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Server configures the HTTP transport adapter.
	Server ServerConfig `yaml:"server"`

	// Auth configures credential verification.
	Auth AuthConfig `yaml:"auth"`

	// Authz configures the RBAC authorization engine.
	Authz AuthzConfig `yaml:"authz"`

	// Cache configures the response cache.
	Cache CacheConfig `yaml:"cache"`

	// CircuitBreaker configures per-upstream circuit breaking.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`

	// Retry configures bounded retry around upstream calls.
	Retry RetryConfig `yaml:"retry"`

	// Upstream configures the upstream the pipeline calls on cache misses.
	Upstream UpstreamConfig `yaml:"upstream"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level"`

	// Format is the log output format (json or console).
	Format string `yaml:"format"`

	// Output is the output destination (stdout or stderr).
	Output string `yaml:"output"`
}

// ServerConfig configures the HTTP transport adapter.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `yaml:"addr"`

	// MetricsAddr is the Prometheus metrics listen address.
	MetricsAddr string `yaml:"metricsAddr"`

	// RequestTimeout is the per-request deadline applied when callers do
	// not supply one.
	RequestTimeout Duration `yaml:"requestTimeout"`

	// RateLimit configures per-client admission control.
	RateLimit RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig configures the token-bucket admission limiter.
type RateLimitConfig struct {
	// Enabled enables rate limiting.
	Enabled bool `yaml:"enabled"`

	// RequestsPerSecond is the sustained per-client rate.
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`

	// Burst is the per-client burst size.
	Burst int `yaml:"burst"`
}

// AuthConfig configures credential verification.
type AuthConfig struct {
	// JWKSFile is a path to a local JWKS document with verification keys.
	JWKSFile string `yaml:"jwksFile"`

	// JWKSURL is a remote JWKS endpoint. Either JWKSFile or JWKSURL must
	// be set when JWT verification is enabled.
	JWKSURL string `yaml:"jwksUrl"`

	// Issuer, when set, must match the token's iss claim.
	Issuer string `yaml:"issuer"`

	// Audience, when set, must be present in the token's aud claim.
	Audience string `yaml:"audience"`

	// RolesClaim is the private claim holding the principal's roles.
	RolesClaim string `yaml:"rolesClaim"`

	// ClockSkew is the allowed clock skew for exp/nbf checks.
	ClockSkew Duration `yaml:"clockSkew"`

	// APIKeys optionally maps bcrypt-hashed static keys to principals,
	// used when the credential is not a structurally valid JWT.
	APIKeys []APIKeyConfig `yaml:"apiKeys"`
}

// APIKeyConfig maps a bcrypt-hashed static key to a principal.
type APIKeyConfig struct {
	// Hash is the bcrypt hash of the key.
	Hash string `yaml:"hash"`

	// Subject is the principal subject authenticated by the key.
	Subject string `yaml:"subject"`

	// Roles are the roles granted to the principal.
	Roles []string `yaml:"roles"`
}

// AuthzConfig configures the RBAC authorization engine.
type AuthzConfig struct {
	// PolicyFile is a path to a YAML rule table, watched for reloads.
	PolicyFile string `yaml:"policyFile"`

	// Rules is an inline rule table, used when PolicyFile is empty.
	Rules []RuleConfig `yaml:"rules"`
}

// RuleConfig is one (role, resource pattern, action) permission rule.
type RuleConfig struct {
	// Role is the role the rule applies to.
	Role string `yaml:"role"`

	// Resource is an exact resource identifier or a prefix pattern
	// ending with *.
	Resource string `yaml:"resource"`

	// Action is the action the rule allows.
	Action string `yaml:"action"`
}

// Cache backend types.
const (
	CacheTypeMemory = "memory"
	CacheTypeRedis  = "redis"
)

// CacheConfig configures the response cache.
type CacheConfig struct {
	// Type is the cache backend (memory or redis).
	Type string `yaml:"type"`

	// TTL is the default entry time-to-live.
	TTL Duration `yaml:"ttl"`

	// MaxEntries bounds the in-memory cache size.
	MaxEntries int `yaml:"maxEntries"`

	// SweepInterval is the period of the background expiry sweep.
	SweepInterval Duration `yaml:"sweepInterval"`

	// Redis configures the redis backend.
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the redis cache backend.
type RedisConfig struct {
	// Addr is the redis server address.
	Addr string `yaml:"addr"`

	// Password is the redis password.
	Password string `yaml:"password"`

	// DB is the redis database number.
	DB int `yaml:"db"`

	// KeyPrefix is prepended to every cache key.
	KeyPrefix string `yaml:"keyPrefix"`
}

// CircuitBreakerConfig configures per-upstream circuit breaking.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit.
	FailureThreshold int `yaml:"failureThreshold"`

	// CoolDown is how long the circuit stays open before allowing a
	// single probe.
	CoolDown Duration `yaml:"coolDown"`
}

// RetryConfig configures bounded retry around upstream calls.
type RetryConfig struct {
	// MaxAttempts is the maximum number of invocations per logical call.
	MaxAttempts int `yaml:"maxAttempts"`

	// BaseDelay is the first backoff delay.
	BaseDelay Duration `yaml:"baseDelay"`

	// MaxDelay caps the backoff delay.
	MaxDelay Duration `yaml:"maxDelay"`

	// Jitter is the random jitter fraction (0.0 to 1.0).
	Jitter float64 `yaml:"jitter"`
}

// UpstreamConfig configures the upstream called on cache misses.
type UpstreamConfig struct {
	// Name identifies the upstream for circuit breaking and metrics.
	Name string `yaml:"name"`

	// URL is the upstream base URL.
	URL string `yaml:"url"`

	// Timeout is the per-call timeout.
	Timeout Duration `yaml:"timeout"`
}

// DefaultConfig returns a PipelineConfig with default values.
func DefaultConfig() *PipelineConfig {
	return &PipelineConfig{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Server: ServerConfig{
			Addr:           ":8080",
			MetricsAddr:    ":9091",
			RequestTimeout: Duration(30 * time.Second),
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerSecond: 100,
				Burst:             200,
			},
		},
		Auth: AuthConfig{
			RolesClaim: "roles",
			ClockSkew:  Duration(30 * time.Second),
		},
		Cache: CacheConfig{
			Type:          CacheTypeMemory,
			TTL:           Duration(60 * time.Second),
			MaxEntries:    10000,
			SweepInterval: Duration(time.Minute),
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			CoolDown:         Duration(30 * time.Second),
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   Duration(100 * time.Millisecond),
			MaxDelay:    Duration(10 * time.Second),
			Jitter:      0.25,
		},
		Upstream: UpstreamConfig{
			Name:    "default",
			Timeout: Duration(10 * time.Second),
		},
	}
}

// Validate validates the configuration, clamping out-of-range numeric
// values to their defaults.
func (c *PipelineConfig) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = Duration(30 * time.Second)
	}
	if c.Server.RateLimit.Enabled {
		if c.Server.RateLimit.RequestsPerSecond <= 0 {
			return errors.New("server.rateLimit.requestsPerSecond must be positive")
		}
		if c.Server.RateLimit.Burst < 1 {
			c.Server.RateLimit.Burst = 1
		}
	}

	if c.Auth.RolesClaim == "" {
		c.Auth.RolesClaim = "roles"
	}
	if c.Auth.ClockSkew < 0 {
		c.Auth.ClockSkew = 0
	}
	for i, key := range c.Auth.APIKeys {
		if key.Hash == "" {
			return fmt.Errorf("auth.apiKeys[%d]: hash is required", i)
		}
		if key.Subject == "" {
			return fmt.Errorf("auth.apiKeys[%d]: subject is required", i)
		}
	}

	for i, rule := range c.Authz.Rules {
		if rule.Role == "" {
			return fmt.Errorf("authz.rules[%d]: role is required", i)
		}
		if rule.Resource == "" {
			return fmt.Errorf("authz.rules[%d]: resource is required", i)
		}
		if rule.Action == "" {
			return fmt.Errorf("authz.rules[%d]: action is required", i)
		}
	}

	switch c.Cache.Type {
	case CacheTypeMemory, CacheTypeRedis, "":
	default:
		return fmt.Errorf("cache.type: unknown type %q", c.Cache.Type)
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = Duration(60 * time.Second)
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = 10000
	}
	if c.Cache.SweepInterval <= 0 {
		c.Cache.SweepInterval = Duration(time.Minute)
	}
	if c.Cache.Type == CacheTypeRedis && c.Cache.Redis.Addr == "" {
		return errors.New("cache.redis.addr is required for redis cache")
	}

	if c.CircuitBreaker.FailureThreshold < 1 {
		c.CircuitBreaker.FailureThreshold = 5
	}
	if c.CircuitBreaker.CoolDown < Duration(time.Millisecond) {
		c.CircuitBreaker.CoolDown = Duration(30 * time.Second)
	}

	if c.Retry.MaxAttempts < 1 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = Duration(100 * time.Millisecond)
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		c.Retry.MaxDelay = Duration(10 * time.Second)
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		c.Retry.Jitter = 0.25
	}

	if c.Upstream.Name == "" {
		c.Upstream.Name = "default"
	}
	if c.Upstream.Timeout <= 0 {
		c.Upstream.Timeout = Duration(10 * time.Second)
	}

	return nil
}
