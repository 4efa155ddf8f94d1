package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/robfig/cron/v3"

	"github.com/voidKandy/espionox-sub001/internal/agent"
	"github.com/voidKandy/espionox-sub001/internal/core"
	"github.com/voidKandy/espionox-sub001/internal/hook"
)

var (
	validLevels  = []string{"debug", "info", "warn", "error"}
	validFormats = []string{"text", "json"}
)

// Validate checks the structural validity of a Config.
// It verifies the version field, ensures modules are present, checks that
// all referenced module IDs exist in the registry, and validates every
// agent against the configured modules. All problems are reported at once.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	for _, id := range Resolve(cfg) {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	errs = append(errs, validateLogging(cfg.Logging)...)

	if cfg.Maintenance.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Maintenance.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("config: maintenance.schedule: %w", err))
		}
	}

	if cfg.Observers.Isolation != "" {
		if _, err := hook.ParseIsolation(cfg.Observers.Isolation); err != nil {
			errs = append(errs, fmt.Errorf("config: observers.isolation: %w", err))
		}
	}

	errs = append(errs, validateAgents(cfg)...)

	return errors.Join(errs...)
}

func validateLogging(l LoggingConfig) []error {
	var errs []error
	if l.Level != "" && !slices.Contains(validLevels, l.Level) {
		errs = append(errs, fmt.Errorf("config: logging.level %q (want one of %v)", l.Level, validLevels))
	}
	if l.Format != "" && !slices.Contains(validFormats, l.Format) {
		errs = append(errs, fmt.Errorf("config: logging.format %q (want one of %v)", l.Format, validFormats))
	}
	return errs
}

// validateAgents decodes every agent and checks that the modules it
// references are configured.
func validateAgents(cfg *Config) []error {
	configs, names, err := agent.ParseConfigs(cfg.Agents)
	if err != nil {
		return []error{fmt.Errorf("config: %w", err)}
	}

	known := func(id string) bool {
		_, ok := cfg.Modules[id]
		return ok
	}

	var errs []error
	for _, name := range names {
		if err := configs[name].Validate(name, known); err != nil {
			errs = append(errs, fmt.Errorf("config: %w", err))
		}
	}
	return errs
}
