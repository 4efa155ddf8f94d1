package core

import (
	"fmt"
	"sync"
)

// services is shared by an AppContext and every context derived from it.
type services struct {
	mu sync.RWMutex
	m  map[string]any
}

// RegisterService makes svc discoverable under name by every module.
// Registering a name twice replaces the earlier value.
func (ctx *AppContext) RegisterService(name string, svc any) {
	ctx.services.mu.Lock()
	defer ctx.services.mu.Unlock()
	ctx.services.m[name] = svc
}

// GetService returns the service registered under name.
func (ctx *AppContext) GetService(name string) (any, bool) {
	ctx.services.mu.RLock()
	defer ctx.services.mu.RUnlock()
	svc, ok := ctx.services.m[name]
	return svc, ok
}

// Service returns the service registered under name as a T. It fails when
// the name is unknown or holds a different type.
func Service[T any](ctx *AppContext, name string) (T, error) {
	var zero T
	svc, ok := ctx.GetService(name)
	if !ok {
		return zero, fmt.Errorf("core: service %q not registered", name)
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, fmt.Errorf("core: service %q is %T, not %T", name, svc, zero)
	}
	return typed, nil
}
