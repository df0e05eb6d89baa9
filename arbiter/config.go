// Package arbiter implements the HTTP-facing client the Plan
// Orchestrator delegates step proposal and re-planning to: an
// OpenAI-compatible chat-completions call, with the same provider-alias
// auto-configuration the teacher framework's ai package offers for
// OpenAI-compatible services (spec.md §4.10's "external arbiter").
package arbiter

import (
	"os"
	"strings"
	"time"
)

// Config configures an HTTPArbiter's target provider and call
// parameters.
type Config struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// DefaultConfig returns the conservative default an HTTPArbiter falls
// back to when no provider alias or explicit overrides are given.
func DefaultConfig() Config {
	return Config{
		Provider:    "openai",
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4",
		Temperature: 0.2,
		MaxTokens:   1500,
		Timeout:     30 * time.Second,
	}
}

// ConfigOption adjusts a Config.
type ConfigOption func(*Config)

func WithAPIKey(key string) ConfigOption      { return func(c *Config) { c.APIKey = key } }
func WithBaseURL(url string) ConfigOption     { return func(c *Config) { c.BaseURL = url } }
func WithModel(model string) ConfigOption     { return func(c *Config) { c.Model = model } }
func WithTemperature(t float32) ConfigOption  { return func(c *Config) { c.Temperature = t } }
func WithMaxTokens(n int) ConfigOption        { return func(c *Config) { c.MaxTokens = n } }
func WithTimeout(d time.Duration) ConfigOption { return func(c *Config) { c.Timeout = d } }

// WithProviderAlias resolves an OpenAI-compatible provider alias (e.g.
// "openai.deepseek", "openai.groq") into a base provider plus API
// key/base URL auto-configured from environment variables, unless
// already explicitly set. Mirrors the teacher framework's alias
// auto-configuration for OpenAI-compatible services.
func WithProviderAlias(alias string) ConfigOption {
	return func(c *Config) {
		parts := strings.SplitN(alias, ".", 2)
		if len(parts) == 0 {
			return
		}
		c.Provider = parts[0]
		// The DefaultConfig base URL is a fallback, not an explicit setting.
		baseURL := c.BaseURL
		if baseURL == DefaultConfig().BaseURL {
			baseURL = ""
		}
		if len(parts) < 2 || (c.APIKey != "" && baseURL != "") {
			return
		}

		switch parts[1] {
		case "deepseek":
			c.APIKey = firstNonEmpty(c.APIKey, os.Getenv("DEEPSEEK_API_KEY"))
			c.BaseURL = firstNonEmpty(baseURL, os.Getenv("DEEPSEEK_BASE_URL"), "https://api.deepseek.com")
		case "groq":
			c.APIKey = firstNonEmpty(c.APIKey, os.Getenv("GROQ_API_KEY"))
			c.BaseURL = firstNonEmpty(baseURL, os.Getenv("GROQ_BASE_URL"), "https://api.groq.com/openai/v1")
		case "xai":
			c.APIKey = firstNonEmpty(c.APIKey, os.Getenv("XAI_API_KEY"))
			c.BaseURL = firstNonEmpty(baseURL, os.Getenv("XAI_BASE_URL"), "https://api.x.ai/v1")
		case "qwen":
			c.APIKey = firstNonEmpty(c.APIKey, os.Getenv("QWEN_API_KEY"))
			c.BaseURL = firstNonEmpty(baseURL, os.Getenv("QWEN_BASE_URL"), "https://dashscope-intl.aliyuncs.com/compatible-mode/v1")
		case "together":
			c.APIKey = firstNonEmpty(c.APIKey, os.Getenv("TOGETHER_API_KEY"))
			c.BaseURL = firstNonEmpty(baseURL, os.Getenv("TOGETHER_BASE_URL"), "https://api.together.xyz/v1")
		case "ollama":
			c.BaseURL = firstNonEmpty(baseURL, os.Getenv("OLLAMA_BASE_URL"), "http://localhost:11434/v1")
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// NewConfig builds a Config starting from DefaultConfig, then applying
// opts in order (so WithProviderAlias typically comes first, explicit
// overrides after).
func NewConfig(opts ...ConfigOption) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(strings.ToUpper(cfg.Provider) + "_API_KEY")
	}
	return cfg
}
