// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for espionox.
package config

import "gopkg.in/yaml.v3"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	Logging     LoggingConfig     `yaml:"logging"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Observers   ObserversConfig   `yaml:"observers"`

	// Agents maps agent names to their raw YAML configuration, decoded by
	// the agent package.
	Agents map[string]yaml.Node `yaml:"agents"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "provider.openai").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// LoggingConfig selects the log level, encoding and destination.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`

	// Output is "stderr", "stdout" or a file path.
	Output string `yaml:"output"`
}

// TelemetryConfig enables OTLP trace export. An empty endpoint disables it.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
	Insecure     bool   `yaml:"insecure"`
}

// MaintenanceConfig schedules store maintenance. An empty schedule disables it.
type MaintenanceConfig struct {
	Schedule string `yaml:"schedule"`
}

// ObserversConfig controls how observer failures are handled.
type ObserversConfig struct {
	// Isolation is "isolate" (default) or "abort".
	Isolation string `yaml:"isolation"`
}
