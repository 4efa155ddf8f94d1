package security

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestAuditLogger_WritesRedactedJSONL(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := &Redactor{}
	r.AddLiteral("s3cret")
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l := NewAuditLogger(AuditLoggerConfig{Writer: &buf, Redactor: r, Now: func() time.Time { return fixed }})

	meta := map[string]string{"prompt": "my s3cret"}
	for range 2 {
		if err := l.Log(AuditEvent{Type: EventDispatch, Agent: "scout", Detail: "s3cret here", Metadata: meta}); err != nil {
			t.Fatal(err)
		}
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	var ev AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != EventDispatch || ev.Agent != "scout" || !ev.Timestamp.Equal(fixed) {
		t.Errorf("event = %+v", ev)
	}
	if strings.Contains(buf.String(), "s3cret") {
		t.Errorf("secret leaked: %s", buf.String())
	}
	if meta["prompt"] != "my s3cret" {
		t.Error("caller metadata mutated")
	}
}

func TestAuditLogger_OnEventWithoutWriter(t *testing.T) {
	t.Parallel()

	var got []AuditEvent
	l := NewAuditLogger(AuditLoggerConfig{OnEvent: func(e AuditEvent) { got = append(got, e) }})
	if err := l.Log(AuditEvent{Type: EventAuthFailure, Remote: "10.0.0.1"}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Remote != "10.0.0.1" {
		t.Errorf("events = %+v", got)
	}
}
