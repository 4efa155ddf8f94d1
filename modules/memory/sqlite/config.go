package sqlite

import (
	"fmt"
	"path/filepath"
	"time"
)

const (
	defaultBusyTimeout = 5 * time.Second
	defaultDBFile      = "espionox.db"
)

// Config is the memory.sqlite module configuration.
type Config struct {
	// Path of the database file. Empty means espionox.db in the data
	// directory.
	Path string `yaml:"path"`

	// WAL toggles write-ahead logging. It is on unless set to false.
	WAL *bool `yaml:"wal"`

	// BusyTimeout is how long a statement waits on a locked database, as a
	// duration string. Defaults to 5s.
	BusyTimeout string `yaml:"busy_timeout"`
}

func (c *Config) walEnabled() bool {
	return c.WAL == nil || *c.WAL
}

func (c *Config) busyTimeout() (time.Duration, error) {
	if c.BusyTimeout == "" {
		return defaultBusyTimeout, nil
	}
	d, err := time.ParseDuration(c.BusyTimeout)
	if err != nil {
		return 0, fmt.Errorf("sqlite: busy_timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("sqlite: busy_timeout must be non-negative, got %s", d)
	}
	return d, nil
}

// dbPath returns the configured path, or the default file under dataDir.
func (c *Config) dbPath(dataDir string) string {
	if c.Path != "" {
		return c.Path
	}
	return filepath.Join(dataDir, defaultDBFile)
}

func (c *Config) validate() error {
	_, err := c.busyTimeout()
	return err
}
