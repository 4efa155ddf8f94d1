package hook

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/voidKandy/espionox-sub001/internal/security"
)

// AuditObserver records every exchange at info level and, when an
// AuditLogger is set, as a JSON Lines audit event.
type AuditObserver struct {
	logger *slog.Logger
	audit  *security.AuditLogger
}

// NewAuditObserver creates an audit observer. Either argument may be nil.
func NewAuditObserver(logger *slog.Logger, audit *security.AuditLogger) *AuditObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditObserver{logger: logger.With("component", "audit"), audit: audit}
}

// Compile-time interface check.
var _ Observer = (*AuditObserver)(nil)

// Name implements Observer.
func (a *AuditObserver) Name() string { return "audit" }

// Observe implements Observer.
func (a *AuditObserver) Observe(_ context.Context, ex Exchange) error {
	a.logger.Info("exchange completed",
		"agent", ex.Agent,
		"provider", ex.Provider,
		"mode", ex.Mode,
		"thread", ex.Thread,
		"duration", ex.Duration,
		"prompt_len", len(ex.Prompt.Content()),
		"reply_len", len(ex.Reply.Content()),
	)
	if a.audit == nil {
		return nil
	}
	return a.audit.Log(security.AuditEvent{
		Type:   security.EventDispatch,
		Agent:  ex.Agent,
		Thread: ex.Thread,
		Mode:   ex.Mode,
		Detail: ex.Prompt.Content(),
		Metadata: map[string]string{
			"provider":    ex.Provider,
			"reply":       ex.Reply.Content(),
			"duration_ms": strconv.FormatInt(ex.Duration.Milliseconds(), 10),
		},
	})
}
