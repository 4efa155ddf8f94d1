// Package memory owns the live transcript of an agent and decides where it
// lives: a durable thread in a Store, a process-local cache, or nowhere.
package memory

import (
	"context"
	"errors"
	"time"

	"github.com/voidKandy/espionox-sub001/internal/embedding"
	"github.com/voidKandy/espionox-sub001/pkg/message"
)

// ErrNotFound indicates that a referenced row does not exist.
var ErrNotFound = errors.New("memory: not found")

// Store persists threads of messages and embedded summaries.
// Implementations must be safe for concurrent use.
type Store interface {
	// GetMessages returns every message ever posted to the thread, in
	// insertion order. Eviction never shrinks it.
	GetMessages(ctx context.Context, thread string) ([]message.Message, error)

	// PostMessage appends msg to the thread and returns its row id.
	PostMessage(ctx context.Context, thread string, msg message.Message) (string, error)

	// DeleteMessage removes a message row. It is only used to undo a
	// commit that could not complete.
	DeleteMessage(ctx context.Context, id string) error

	// LiveMessages returns the thread's live view: the messages of the last
	// checkpoint followed by every message posted after it. Without a
	// checkpoint it equals GetMessages.
	LiveMessages(ctx context.Context, thread string) ([]message.Message, error)

	// Checkpoint records view as the live view of the thread as of its
	// latest message. Message rows are left untouched. The write is atomic.
	Checkpoint(ctx context.Context, thread string, view []message.Message) error

	// Threads lists the names of threads that hold messages.
	Threads(ctx context.Context) ([]string, error)

	// PostSummary stores an embedded summary and returns its id.
	PostSummary(ctx context.Context, s Summary) (string, error)

	// Summaries returns the thread's summaries ordered by creation.
	Summaries(ctx context.Context, thread string) ([]Summary, error)

	// DeleteSummary removes a summary row.
	DeleteSummary(ctx context.Context, id string) error
}

// Maintainer is implemented by stores that support periodic housekeeping.
type Maintainer interface {
	Maintain(ctx context.Context) error
}

// Summary is an embedded piece of long-term memory: a condensed stretch of
// conversation, a chunk of an ingested file or a recorded error.
type Summary struct {
	ID        string
	Thread    string
	Filepath  string
	Kind      message.Kind
	Content   string
	Embedding embedding.Vector
	CreatedAt time.Time
}

// Render implements message.Renderable.
func (s Summary) Render() message.Message {
	md := message.Metadata{Kind: s.Kind}
	content := s.Content
	switch s.Kind {
	case message.KindFile:
		md.Extra = map[string]string{"filepath": s.Filepath}
		content = "[File: " + s.Filepath + "]\n" + s.Content
	case message.KindError:
		content = "[Error]\n" + s.Content
	}
	return message.NewWithMetadata(message.RoleSystem, content, md)
}

// ErrorRecord is an error observed during a conversation.
type ErrorRecord struct {
	Message string
	At      time.Time
}

// Render implements message.Renderable.
func (e ErrorRecord) Render() message.Message {
	return message.NewWithMetadata(message.RoleSystem, "[Error]\n"+e.Message, message.Metadata{
		Kind: message.KindError,
	})
}

// Match is a recalled summary and its distance to the query.
type Match struct {
	Summary Summary
	Score   float32
}
