// Package ccosconfig loads CCOS core configuration using the same
// three-layer priority the teacher framework uses for its own Config:
// defaults, then environment variables, then functional options (highest
// priority), applied in that order by New.
package ccosconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable the CCOS core components read at startup.
type Config struct {
	// ServiceName identifies this deployment in logs and metrics.
	ServiceName string

	// Namespace scopes isolation policies and discovery lookups.
	Namespace string

	// RedisURL is loaded from CCOS_REDIS_URL, then REDIS_URL. No
	// component in this module reads it: the session pool, introspection
	// cache and causal chain are built without it.
	RedisURL string

	// HTTPAddr is the administrative API bind address.
	HTTPAddr string

	// Logging controls.
	LogLevel  string
	LogFormat string // "json" | "text"

	// The fields below are loaded and validated here but are not passed
	// to any component by cmd/ccosd: the discovery engine, executors,
	// introspection cache and causal chain use their own defaults.

	// DiscoveryRegistryURL names an external tool-registry endpoint.
	DiscoveryRegistryURL string
	DiscoveryTimeout     time.Duration

	// ExecutionDefaultTimeout is a default executor call timeout.
	ExecutionDefaultTimeout time.Duration

	// IntrospectionCacheTTL is a probe-result cache lifetime.
	IntrospectionCacheTTL time.Duration

	// CausalChainBufferSize must be positive. The causal chain itself
	// appends each action immediately and keeps no buffer.
	CausalChainBufferSize int

	// AuthTokenEnvPrefix namespaces the capability-specific and
	// namespace-scoped auth token environment variables consulted by the
	// session pool's precedence chain.
	AuthTokenEnvPrefix string
}

// DefaultConfig returns the lowest-priority layer of configuration.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:             "ccos-core",
		Namespace:               "default",
		HTTPAddr:                ":8080",
		LogLevel:                "info",
		LogFormat:               "json",
		DiscoveryTimeout:        5 * time.Second,
		ExecutionDefaultTimeout: 30 * time.Second,
		IntrospectionCacheTTL:   10 * time.Minute,
		CausalChainBufferSize:   256,
		AuthTokenEnvPrefix:      "CCOS_AUTH",
	}
}

// Option is a functional override applied after environment loading.
type Option func(*Config)

func WithServiceName(name string) Option { return func(c *Config) { c.ServiceName = name } }
func WithNamespace(ns string) Option      { return func(c *Config) { c.Namespace = ns } }
func WithRedisURL(url string) Option      { return func(c *Config) { c.RedisURL = url } }
func WithHTTPAddr(addr string) Option     { return func(c *Config) { c.HTTPAddr = addr } }
func WithLogging(level, format string) Option {
	return func(c *Config) { c.LogLevel = level; c.LogFormat = format }
}

// New builds a Config following defaults -> env -> options priority, the
// same layering order as the teacher's NewConfig.
func New(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("ccosconfig: failed to load environment: %w", err)
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("ccosconfig: invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	if v := os.Getenv("CCOS_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := os.Getenv("CCOS_NAMESPACE"); v != "" {
		c.Namespace = v
	}
	if v := os.Getenv("CCOS_REDIS_URL"); v != "" {
		c.RedisURL = v
	} else if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("CCOS_HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv("CCOS_LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("CCOS_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("CCOS_DISCOVERY_REGISTRY_URL"); v != "" {
		c.DiscoveryRegistryURL = v
	}
	if v := os.Getenv("CCOS_DISCOVERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CCOS_DISCOVERY_TIMEOUT: %w", err)
		}
		c.DiscoveryTimeout = d
	}
	if v := os.Getenv("CCOS_EXECUTION_DEFAULT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CCOS_EXECUTION_DEFAULT_TIMEOUT: %w", err)
		}
		c.ExecutionDefaultTimeout = d
	}
	if v := os.Getenv("CCOS_INTROSPECTION_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CCOS_INTROSPECTION_CACHE_TTL: %w", err)
		}
		c.IntrospectionCacheTTL = d
	}
	if v := os.Getenv("CCOS_CAUSAL_CHAIN_BUFFER_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CCOS_CAUSAL_CHAIN_BUFFER_SIZE: %w", err)
		}
		c.CausalChainBufferSize = n
	}
	if v := os.Getenv("CCOS_AUTH_TOKEN_ENV_PREFIX"); v != "" {
		c.AuthTokenEnvPrefix = v
	}
	return nil
}

func (c *Config) validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name must not be empty")
	}
	if c.CausalChainBufferSize <= 0 {
		return fmt.Errorf("causal chain buffer size must be positive, got %d", c.CausalChainBufferSize)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}
	return nil
}

// AuthTokenEnvVars returns the precedence chain of environment variable
// names the session pool should consult for an auth token, from most to
// least specific: capability-specific, namespace-scoped, then generic.
func (c *Config) AuthTokenEnvVars(capabilityID, namespace string) []string {
	prefix := c.AuthTokenEnvPrefix
	capKey := strings.ToUpper(strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, capabilityID))
	nsKey := strings.ToUpper(strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, namespace))

	vars := []string{}
	if capKey != "" {
		vars = append(vars, fmt.Sprintf("%s_CAP_%s_TOKEN", prefix, capKey))
	}
	if nsKey != "" {
		vars = append(vars, fmt.Sprintf("%s_NS_%s_TOKEN", prefix, nsKey))
	}
	vars = append(vars, prefix+"_TOKEN")
	return vars
}
