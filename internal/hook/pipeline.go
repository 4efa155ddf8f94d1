package hook

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Isolation decides what happens to the remaining observers after one fails.
type Isolation int

const (
	// Isolate records the failure and keeps running the others.
	Isolate Isolation = iota

	// AbortRemaining stops at the first failure.
	AbortRemaining
)

func (i Isolation) String() string {
	if i == AbortRemaining {
		return "abort"
	}
	return "isolate"
}

// ParseIsolation maps the configured name to an Isolation.
func ParseIsolation(s string) (Isolation, error) {
	switch s {
	case "", "isolate":
		return Isolate, nil
	case "abort", "abort_remaining":
		return AbortRemaining, nil
	default:
		return Isolate, fmt.Errorf("hook: unknown isolation %q", s)
	}
}

// Failure records one observer that returned an error or panicked.
type Failure struct {
	Observer string
	Err      error
}

// Pipeline holds observers in registration order.
// Registration and execution may happen concurrently.
type Pipeline struct {
	mu        sync.RWMutex
	observers []Observer
	logger    *slog.Logger
}

// NewPipeline creates an empty pipeline. A nil logger means slog.Default.
func NewPipeline(logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{logger: logger.With("component", "hook")}
}

// Register appends observers.
func (p *Pipeline) Register(obs ...Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, obs...)
}

// Len returns the number of registered observers.
func (p *Pipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.observers)
}

// Run notifies every observer of ex in registration order and returns the
// failures. A panicking observer counts as failed.
func (p *Pipeline) Run(ctx context.Context, ex Exchange, policy Isolation) []Failure {
	p.mu.RLock()
	observers := slices.Clone(p.observers)
	p.mu.RUnlock()

	var failures []Failure
	for i, obs := range observers {
		if err := p.observe(ctx, obs, ex); err != nil {
			p.logger.Warn("observer failed",
				"observer", obs.Name(),
				"agent", ex.Agent,
				"error", err,
			)
			failures = append(failures, Failure{Observer: obs.Name(), Err: err})
			if policy == AbortRemaining {
				if skipped := len(observers) - i - 1; skipped > 0 {
					p.logger.Debug("remaining observers skipped", "count", skipped)
				}
				break
			}
		}
	}
	return failures
}

func (p *Pipeline) observe(ctx context.Context, obs Observer, ex Exchange) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook: observer panicked: %v", r)
		}
	}()
	return obs.Observe(ctx, ex)
}
