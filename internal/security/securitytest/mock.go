// Package securitytest provides test doubles for the security package.
package securitytest

import (
	"sync"

	"github.com/voidKandy/espionox-sub001/internal/security"
)

// NewTestRedactor returns a Redactor without default patterns, so tests can
// use key-shaped strings freely.
func NewTestRedactor() *security.Redactor {
	return &security.Redactor{}
}

// NewTestCredentialStore returns a store holding the given name/value pairs.
// It panics on an odd number of arguments.
func NewTestCredentialStore(kvs ...string) *security.CredentialStore {
	if len(kvs)%2 != 0 {
		panic("securitytest: NewTestCredentialStore requires name/value pairs")
	}
	store := security.NewCredentialStore()
	for i := 0; i < len(kvs); i += 2 {
		store.Set(kvs[i], kvs[i+1])
	}
	return store
}

// NewTestAuditLogger returns an AuditLogger that records events in memory
// and a function returning a snapshot of them.
func NewTestAuditLogger() (*security.AuditLogger, func() []security.AuditEvent) {
	var (
		mu     sync.Mutex
		events []security.AuditEvent
	)
	logger := security.NewAuditLogger(security.AuditLoggerConfig{
		OnEvent: func(e security.AuditEvent) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		},
	})
	return logger, func() []security.AuditEvent {
		mu.Lock()
		defer mu.Unlock()
		return append([]security.AuditEvent(nil), events...)
	}
}
