// Package app assembles the espionox runtime from configuration and runs it.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/voidKandy/espionox-sub001/internal/config"
)

// RunParams configures the serve loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// LogLevel overrides logging.level from the configuration.
	LogLevel string
}

// LoadConfig resolves, loads and validates the configuration.
func LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return nil, err
		}
		path = resolved
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Run loads configuration, starts every module, the gateway and the
// maintenance scheduler, and blocks until ctx is done or SIGINT/SIGTERM
// arrives.
func Run(ctx context.Context, params RunParams) error {
	cfg, err := LoadConfig(params.ConfigPath)
	if err != nil {
		return err
	}
	if params.LogLevel != "" {
		cfg.Logging.Level = params.LogLevel
	}

	rt, err := Build(ctx, cfg, Options{DataDir: params.DataDir})
	if err != nil {
		return err
	}
	defer rt.shutdown()

	rt.Logger.Info("espionox starting",
		"agents", rt.Agents.Len(),
		"modules", len(rt.App.ModuleIDs()),
	)
	return rt.App.Run(ctx)
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/espionox/espionox.yaml, then
// ~/.config/espionox/espionox.yaml, then ./espionox.yaml.
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "espionox", "espionox.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "espionox", "espionox.yaml"))
	}

	candidates = append(candidates, "espionox.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/espionox if set, otherwise ~/.local/share/espionox.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "espionox")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "espionox")
}
