// Package message defines the conversation record shared by every part of
// the runtime: the Message value, the ordered Transcript that owns it, and the
// provider-agnostic wire projection sent to model endpoints.
package message

import (
	"maps"
	"strings"

	"github.com/google/uuid"
)

// roleKind discriminates the closed set of roles plus the Other escape hatch.
type roleKind uint8

const (
	roleSystem roleKind = iota + 1
	roleUser
	roleAssistant
	roleOther
)

// Role identifies the author of a message. The zero Role is invalid.
type Role struct {
	kind roleKind
	tag  string
}

// Well-known roles.
var (
	RoleSystem    = Role{kind: roleSystem}
	RoleUser      = Role{kind: roleUser}
	RoleAssistant = Role{kind: roleAssistant}
)

// Other returns a role outside the well-known set, serialized as tag.
func Other(tag string) Role {
	return Role{kind: roleOther, tag: tag}
}

// String returns the wire name of the role.
func (r Role) String() string {
	switch r.kind {
	case roleSystem:
		return "system"
	case roleUser:
		return "user"
	case roleAssistant:
		return "assistant"
	case roleOther:
		return r.tag
	default:
		return ""
	}
}

// IsZero reports whether r is the invalid zero role.
func (r Role) IsZero() bool { return r.kind == 0 }

// ParseRole maps a wire name back to a Role. Unknown names become Other(name).
func ParseRole(s string) Role {
	switch strings.ToLower(s) {
	case "system":
		return RoleSystem
	case "user":
		return RoleUser
	case "assistant":
		return RoleAssistant
	default:
		return Other(s)
	}
}

// Kind tags messages that were produced by the runtime rather than a speaker.
type Kind string

// Message kinds.
const (
	KindPlain   Kind = ""
	KindSummary Kind = "summary"
	KindFile    Kind = "file"
	KindError   Kind = "error"
)

// Metadata is the extensible annotation attached to a message.
type Metadata struct {
	// ModelGenerated is true for messages decoded from a completion.
	ModelGenerated bool

	// Kind marks runtime-produced messages such as summaries.
	Kind Kind

	// Extra carries free-form annotations. Never shared between messages.
	Extra map[string]string
}

func (m Metadata) clone() Metadata {
	m.Extra = maps.Clone(m.Extra)
	return m
}

// Message is an immutable conversation record. Construct it with New or
// NewWithMetadata; the identifier and role cannot change afterwards.
type Message struct {
	id       string
	role     Role
	content  string
	metadata Metadata
}

// New returns a message with a freshly generated identifier.
func New(role Role, content string) Message {
	return Message{id: uuid.NewString(), role: role, content: content}
}

// NewWithMetadata returns a message with a fresh identifier and metadata.
func NewWithMetadata(role Role, content string, md Metadata) Message {
	return Message{id: uuid.NewString(), role: role, content: content, metadata: md.clone()}
}

// Restore rebuilds a message from persisted fields. Storage layers use it
// to materialize rows; an empty id is replaced with a fresh one.
func Restore(id string, role Role, content string, md Metadata) Message {
	if id == "" {
		id = uuid.NewString()
	}
	return Message{id: id, role: role, content: content, metadata: md.clone()}
}

// ID returns the unique identifier.
func (m Message) ID() string { return m.id }

// Role returns the author role.
func (m Message) Role() Role { return m.role }

// Content returns the text body.
func (m Message) Content() string { return m.content }

// Metadata returns a copy of the message metadata.
func (m Message) Metadata() Metadata { return m.metadata.clone() }

// Kind is shorthand for Metadata().Kind.
func (m Message) Kind() Kind { return m.metadata.Kind }

// IsSummary reports whether the message is a runtime-produced summary.
func (m Message) IsSummary() bool { return m.metadata.Kind == KindSummary }

// Wire is the provider-agnostic projection of a message.
type Wire struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Wire returns the {role, content} projection.
func (m Message) Wire() Wire {
	return Wire{Role: m.role.String(), Content: m.content}
}
