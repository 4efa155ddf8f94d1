package openai

import (
	"fmt"
	"time"
)

// Config holds the configuration for the OpenAI provider module.
type Config struct {
	APIKey      string   `yaml:"api_key"`
	Model       string   `yaml:"model"`
	BaseURL     string   `yaml:"base_url"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"`
	Timeout     string   `yaml:"timeout"`
}

// defaults fills zero-valued fields with sensible defaults.
func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.Timeout == "" {
		c.Timeout = "30s"
	}
}

// parsedTimeout returns the timeout as a time.Duration.
// Assumes the value has been validated by validateTimeout.
func (c *Config) parsedTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// validateTimeout checks that the timeout string is a valid Go duration.
func (c *Config) validateTimeout() error {
	_, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return fmt.Errorf("provider.openai: invalid timeout %q: %w", c.Timeout, err)
	}
	return nil
}
