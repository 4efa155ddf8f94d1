package security

import (
	"encoding/json"
	"io"
	"maps"
	"sync"
	"time"
)

// EventType categorizes audit events.
type EventType string

// Audit event types.
const (
	EventDispatch    EventType = "dispatch"
	EventModeSwitch  EventType = "mode_switch"
	EventRecall      EventType = "recall"
	EventAuthSuccess EventType = "auth_success"
	EventAuthFailure EventType = "auth_failure"
	EventRateLimit   EventType = "rate_limit"
)

// AuditEvent is a single audit log entry.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	Agent     string            `json:"agent,omitempty"`
	Thread    string            `json:"thread,omitempty"`
	Mode      string            `json:"mode,omitempty"`
	Remote    string            `json:"remote,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditLoggerConfig configures an AuditLogger.
type AuditLoggerConfig struct {
	// Writer receives one JSON object per line. Nil disables output.
	Writer io.Writer

	// Redactor, if set, is applied to Detail and Metadata values.
	Redactor *Redactor

	// OnEvent, if set, sees every event after redaction.
	OnEvent func(AuditEvent)

	// Now defaults to time.Now.
	Now func() time.Time
}

// AuditLogger writes audit events as JSON Lines.
type AuditLogger struct {
	writer   io.Writer
	redactor *Redactor
	onEvent  func(AuditEvent)
	now      func() time.Time
	mu       sync.Mutex
}

// NewAuditLogger creates an audit logger.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &AuditLogger{
		writer:   cfg.Writer,
		redactor: cfg.Redactor,
		onEvent:  cfg.OnEvent,
		now:      now,
	}
}

// Log stamps, redacts and writes event. The caller's Metadata map is not
// modified. Write errors are returned but never retried.
func (l *AuditLogger) Log(event AuditEvent) error {
	event.Timestamp = l.now().UTC()
	event.Metadata = maps.Clone(event.Metadata)

	if l.redactor != nil {
		event.Detail = l.redactor.Redact(event.Detail)
		for k, v := range event.Metadata {
			event.Metadata[k] = l.redactor.Redact(v)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.onEvent != nil {
		l.onEvent(event)
	}
	if l.writer == nil {
		return nil
	}
	return json.NewEncoder(l.writer).Encode(event)
}
