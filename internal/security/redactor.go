package security

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder is the replacement string for redacted secrets.
const RedactPlaceholder = "***REDACTED***"

// Redactor replaces secrets in strings with RedactPlaceholder. Secrets are
// recognised by pattern (well-known API key formats) or by literal value
// (credentials loaded at runtime). All methods are safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor creates a Redactor pre-loaded with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: DefaultPatterns(),
	}
}

// AddPattern adds a compiled pattern.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
}

// AddLiteral adds a literal secret. Empty strings are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// SyncCredentials replaces the literal set with the store's current values.
func (r *Redactor) SyncCredentials(store *CredentialStore) {
	values := store.Values()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = values
}

// Bind syncs with store now and after every later change.
func (r *Redactor) Bind(store *CredentialStore) {
	r.SyncCredentials(store)
	store.Watch(r.SyncCredentials)
}

// Redact returns s with every known secret replaced.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	// Literals first: a pattern match could otherwise split a literal.
	for _, lit := range literals {
		if strings.Contains(s, lit) {
			s = strings.ReplaceAll(s, lit, RedactPlaceholder)
		}
	}
	for _, p := range patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	return s
}

// DefaultPatterns returns patterns for the API key formats the runtime's
// providers use, plus bearer tokens in headers.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// Anthropic before OpenAI: both start with sk-.
		regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-_]{20,}`),
		regexp.MustCompile(`sk-(proj-)?[a-zA-Z0-9\-_]{20,}`),
		regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9\-._~+/]{16,}=*`),
	}
}
