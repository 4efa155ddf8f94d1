// Package logging builds the process logger: a slog text or JSON handler
// wrapped in a security.RedactingHandler so credentials never reach the
// output.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/voidKandy/espionox-sub001/internal/security"
)

// Config selects the level, encoding and destination of log output.
type Config struct {
	// Level is debug, info, warn or error. Empty means info.
	Level string

	// Format is text or json. Empty means text.
	Format string

	// Output is stderr, stdout or a file path. Empty means stderr.
	Output string

	// Redactor scrubs secrets. Nil means security.NewRedactor().
	Redactor *security.Redactor
}

var (
	initOnce   sync.Once
	initLogger *slog.Logger
	initErr    error
)

// Init builds the process logger from cfg, installs it as slog.Default and
// returns it. Only the first call has any effect; later calls return the
// first result.
func Init(cfg Config) (*slog.Logger, error) {
	initOnce.Do(func() {
		w, err := openOutput(cfg.Output)
		if err != nil {
			initErr = err
			return
		}
		initLogger, initErr = New(cfg, w)
		if initErr == nil {
			slog.SetDefault(initLogger)
		}
	})
	return initLogger, initErr
}

// New builds a logger writing to w without touching global state.
func New(cfg Config, w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var inner slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		inner = slog.NewTextHandler(w, opts)
	case "json":
		inner = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("logging: unknown format %q", cfg.Format)
	}

	redactor := cfg.Redactor
	if redactor == nil {
		redactor = security.NewRedactor()
	}
	return slog.New(security.NewRedactingHandler(inner, redactor)), nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logging: unknown level %q", s)
	}
}

// openOutput resolves the destination. Files are opened for append and
// stay open for the life of the process.
func openOutput(output string) (io.Writer, error) {
	switch output {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("logging: opening %s: %w", output, err)
		}
		return f, nil
	}
}
