// Package security holds runtime secrets and keeps them out of logs and
// audit trails. It also carries the request guards used by the gateway.
package security

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrMissingCredential is returned by Require when no value is stored.
var ErrMissingCredential = errors.New("security: missing credential")

// CredentialStore is a thread-safe store for API keys, keyed by provider
// identity (the module ID, e.g. "provider.openai").
type CredentialStore struct {
	mu       sync.RWMutex
	creds    map[string]string
	watchers []func(*CredentialStore)
}

// NewCredentialStore creates an empty credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		creds: make(map[string]string),
	}
}

// Set stores a credential, overwriting any previous value. Empty values are
// treated as a Delete so that Has stays meaningful.
func (s *CredentialStore) Set(name, value string) {
	if value == "" {
		s.Delete(name)
		return
	}
	s.mu.Lock()
	s.creds[name] = value
	watchers := slices.Clone(s.watchers)
	s.mu.Unlock()
	s.notify(watchers)
}

// Get returns the credential value and true, or "" and false if not found.
func (s *CredentialStore) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.creds[name]
	return v, ok
}

// Require returns the credential or an error naming it.
func (s *CredentialStore) Require(name string) (string, error) {
	v, ok := s.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingCredential, name)
	}
	return v, nil
}

// Has reports whether a credential is stored under name.
func (s *CredentialStore) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// Names returns the sorted credential names.
func (s *CredentialStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.creds))
	for name := range s.creds {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Values returns all credential values in no particular order.
func (s *CredentialStore) Values() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values := make([]string, 0, len(s.creds))
	for _, v := range s.creds {
		values = append(values, v)
	}
	return values
}

// Delete removes a credential. Unknown names are ignored.
func (s *CredentialStore) Delete(name string) {
	s.mu.Lock()
	_, existed := s.creds[name]
	delete(s.creds, name)
	watchers := slices.Clone(s.watchers)
	s.mu.Unlock()
	if existed {
		s.notify(watchers)
	}
}

// Len returns the number of stored credentials.
func (s *CredentialStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.creds)
}

// Watch registers fn to run after every change. fn runs outside the lock.
func (s *CredentialStore) Watch(fn func(*CredentialStore)) {
	s.mu.Lock()
	s.watchers = append(s.watchers, fn)
	s.mu.Unlock()
}

func (s *CredentialStore) notify(watchers []func(*CredentialStore)) {
	for _, fn := range watchers {
		fn(s)
	}
}
