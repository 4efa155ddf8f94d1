package core

import "strings"

// ModuleID identifies a module as "<namespace>.<name>", e.g. "provider.openai".
// The ID doubles as the module's config key and, for providers, as the
// credential name.
type ModuleID string

// Namespace returns the part before the first dot.
func (id ModuleID) Namespace() string {
	ns, _, _ := strings.Cut(string(id), ".")
	return ns
}

// Name returns the part after the first dot, or the whole ID when there is
// no dot.
func (id ModuleID) Name() string {
	_, name, ok := strings.Cut(string(id), ".")
	if !ok {
		return string(id)
	}
	return name
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	ID ModuleID

	// New returns a fresh, unconfigured instance.
	New func() Module
}

// Module is implemented by every pluggable component. The optional
// lifecycle interfaces in lifecycle.go add behaviour.
type Module interface {
	ModuleInfo() ModuleInfo
}
