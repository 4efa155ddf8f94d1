package gateway

import (
	"time"

	"github.com/voidKandy/espionox-sub001/internal/security"
)

// Config holds HTTP gateway configuration.
type Config struct {
	Bind            string          `yaml:"bind"`
	Auth            AuthConfig      `yaml:"auth"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	ReadTimeout     time.Duration   `yaml:"read_timeout"`
	WriteTimeout    time.Duration   `yaml:"write_timeout"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`

	// MaxBodyBytes bounds request bodies and websocket frames.
	MaxBodyBytes int `yaml:"max_body_bytes"`

	// OriginPatterns lists extra hosts allowed to open the stream websocket.
	OriginPatterns []string `yaml:"origin_patterns"`
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		// Covers a full non-streaming dispatch.
		c.WriteTimeout = 2 * time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = security.DefaultMaxBodySize
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = time.Minute
	}
}

// AuthConfig configures authentication for the /v1 API.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

// IsConfigured returns true if any auth method is configured.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}

// RateLimitConfig bounds API requests per client address. Zero requests
// disables limiting.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}
