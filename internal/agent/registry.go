package agent

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Registry errors.
var (
	ErrAgentNotFound  = errors.New("agent: not found")
	ErrDuplicateAgent = errors.New("agent: duplicate name")
)

// Registry maps agent names to agents and remembers insertion order.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
	order  []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*Agent)}
}

// Add registers a. Names must be unique.
func (r *Registry) Add(a *Agent) error {
	if err := a.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.agents[a.Name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateAgent, a.Name)
	}
	r.agents[a.Name] = a
	r.order = append(r.order, a.Name)
	return nil
}

// Get returns the agent called name.
func (r *Registry) Get(name string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAgentNotFound, name)
	}
	return a, nil
}

// Names returns agent names in insertion order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Len returns the number of agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
