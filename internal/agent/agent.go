// Package agent describes the configured conversational agents: which
// provider they talk to, how they are prompted, and the memory backend
// that owns their transcript.
package agent

import (
	"errors"
	"time"

	"github.com/voidKandy/espionox-sub001/internal/memory"
)

// Defaults applied when the configuration leaves a field empty.
const (
	DefaultTimeout   = 60 * time.Second
	DefaultLimit     = 12
	DefaultMechanism = "summarize"
)

// Agent is a named conversation participant.
type Agent struct {
	Name         string
	SystemPrompt string

	// Provider is the identity of the provider module, e.g. "provider.openai".
	// It doubles as the credential name.
	Provider string

	// Timeout bounds a single dispatch. Zero means the dispatcher default.
	Timeout time.Duration

	// Retries is the number of extra attempts for retryable transport errors.
	Retries int

	Memory *memory.Backend
}

// Validate checks the fields a dispatch relies on.
func (a *Agent) Validate() error {
	var errs []error
	if a.Name == "" {
		errs = append(errs, errors.New("agent: name is required"))
	}
	if a.Provider == "" {
		errs = append(errs, errors.New("agent: provider is required"))
	}
	if a.Memory == nil {
		errs = append(errs, errors.New("agent: memory backend is required"))
	}
	if a.Timeout < 0 || a.Retries < 0 {
		errs = append(errs, errors.New("agent: timeout and retries must not be negative"))
	}
	return errors.Join(errs...)
}
