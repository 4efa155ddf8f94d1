package anthropic

import "time"

// defaultModel is the model used when none is specified.
const defaultModel = "claude-sonnet-4-5-20250929"

// defaultTimeout bounds a non-streaming request. Streaming requests are
// bounded by the caller's context.
const defaultTimeout = 30 * time.Second

// Config holds the YAML-decoded configuration for the Anthropic provider.
type Config struct {
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
}
