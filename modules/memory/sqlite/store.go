package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voidKandy/espionox-sub001/internal/embedding"
	"github.com/voidKandy/espionox-sub001/internal/memory"
	"github.com/voidKandy/espionox-sub001/pkg/message"
)

// timeFormat is fixed-width so that created_at sorts lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store is a memory.Store backed by one SQLite database.
type Store struct {
	db  *sql.DB
	wal bool
}

// Compile-time interface guards.
var (
	_ memory.Store      = (*Store)(nil)
	_ memory.Maintainer = (*Store)(nil)
)

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetMessages returns the thread's full history ordered by seq.
func (s *Store) GetMessages(ctx context.Context, thread string) ([]message.Message, error) {
	return s.messagesAfter(ctx, thread, 0)
}

// messagesAfter returns the thread's messages with seq greater than after.
func (s *Store) messagesAfter(ctx context.Context, thread string, after int64) ([]message.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, model_generated, kind, extra
		FROM messages
		WHERE thread = ? AND seq > ?
		ORDER BY seq ASC`,
		thread, after,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []message.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: get messages rows: %w", err)
	}
	return msgs, nil
}

// PostMessage appends msg to thread with seq max+1.
func (s *Store) PostMessage(ctx context.Context, thread string, msg message.Message) (string, error) {
	md := msg.Metadata()
	extra, err := json.Marshal(md.Extra)
	if err != nil {
		return "", fmt.Errorf("sqlite: marshal extra: %w", err)
	}
	if md.Extra == nil {
		extra = []byte("{}")
	}

	modelGenerated := 0
	if md.ModelGenerated {
		modelGenerated = 1
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, thread, seq, role, content, model_generated, kind, extra)
		VALUES (?, ?, COALESCE((SELECT MAX(seq) FROM messages WHERE thread = ?), 0) + 1, ?, ?, ?, ?, ?)`,
		msg.ID(), thread, thread, msg.Role().String(), msg.Content(), modelGenerated, string(md.Kind), string(extra),
	)
	if err != nil {
		return "", fmt.Errorf("sqlite: insert message: %w", err)
	}
	return msg.ID(), nil
}

// DeleteMessage removes a message row by id.
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("sqlite: delete message: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return memory.ErrNotFound
	}
	return nil
}

// LiveMessages returns the thread's last checkpoint followed by the
// messages posted after it.
func (s *Store) LiveMessages(ctx context.Context, thread string) ([]message.Message, error) {
	var (
		through int64
		view    string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT through_seq, messages FROM checkpoints WHERE thread = ?", thread,
	).Scan(&through, &view)
	if errors.Is(err, sql.ErrNoRows) {
		return s.messagesAfter(ctx, thread, 0)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: read checkpoint: %w", err)
	}

	msgs, err := memory.DecodeView([]byte(view))
	if err != nil {
		return nil, fmt.Errorf("sqlite: checkpoint of %q: %w", thread, err)
	}
	after, err := s.messagesAfter(ctx, thread, through)
	if err != nil {
		return nil, err
	}
	return append(msgs, after...), nil
}

// Checkpoint stores view as the thread's live view up to its latest message.
func (s *Store) Checkpoint(ctx context.Context, thread string, view []message.Message) error {
	data, err := memory.EncodeView(view)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (thread, through_seq, messages, updated_at)
		VALUES (?, COALESCE((SELECT MAX(seq) FROM messages WHERE thread = ?), 0), ?, ?)
		ON CONFLICT(thread) DO UPDATE SET
			through_seq = excluded.through_seq,
			messages    = excluded.messages,
			updated_at  = excluded.updated_at`,
		thread, thread, string(data), time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("sqlite: checkpoint: %w", err)
	}
	return nil
}

// Threads lists thread names in sorted order.
func (s *Store) Threads(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT thread FROM messages ORDER BY thread")
	if err != nil {
		return nil, fmt.Errorf("sqlite: list threads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("sqlite: scan thread: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// PostSummary stores sum and returns its id.
func (s *Store) PostSummary(ctx context.Context, sum memory.Summary) (string, error) {
	if sum.ID == "" {
		sum.ID = uuid.NewString()
	}
	if sum.CreatedAt.IsZero() {
		sum.CreatedAt = time.Now().UTC()
	}

	var filepath sql.NullString
	if sum.Filepath != "" {
		filepath = sql.NullString{String: sum.Filepath, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO summaries (id, thread, filepath, kind, content, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sum.ID, sum.Thread, filepath, string(sum.Kind), sum.Content,
		embedding.Encode(sum.Embedding), sum.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return "", fmt.Errorf("sqlite: post summary: %w", err)
	}
	return sum.ID, nil
}

// Summaries returns the thread's summaries ordered by creation.
func (s *Store) Summaries(ctx context.Context, thread string) ([]memory.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread, filepath, kind, content, embedding, created_at
		FROM summaries
		WHERE thread = ?
		ORDER BY created_at ASC, rowid ASC`,
		thread,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get summaries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []memory.Summary
	for rows.Next() {
		var (
			sum       memory.Summary
			filepath  sql.NullString
			kind      string
			blob      []byte
			createdAt string
		)
		if err := rows.Scan(&sum.ID, &sum.Thread, &filepath, &kind, &sum.Content, &blob, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan summary: %w", err)
		}
		sum.Filepath = filepath.String
		sum.Kind = message.Kind(kind)
		if sum.Embedding, err = embedding.Decode(blob); err != nil {
			return nil, fmt.Errorf("sqlite: summary %s: %w", sum.ID, err)
		}
		if sum.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: summary %s created_at: %w", sum.ID, err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// DeleteSummary removes a summary row by id.
func (s *Store) DeleteSummary(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM summaries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("sqlite: delete summary: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return memory.ErrNotFound
	}
	return nil
}

// Maintain refreshes planner statistics and, in WAL mode, truncates the
// write-ahead log.
func (s *Store) Maintain(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("sqlite: optimize: %w", err)
	}
	if !s.wal {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("sqlite: wal checkpoint: %w", err)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (message.Message, error) {
	var (
		id, role, content, kind, extra string
		modelGenerated                 int
	)
	if err := s.Scan(&id, &role, &content, &modelGenerated, &kind, &extra); err != nil {
		return message.Message{}, fmt.Errorf("sqlite: scan message: %w", err)
	}

	md := message.Metadata{ModelGenerated: modelGenerated != 0, Kind: message.Kind(kind)}
	if extra != "" && extra != "{}" {
		if err := json.Unmarshal([]byte(extra), &md.Extra); err != nil {
			return message.Message{}, fmt.Errorf("sqlite: unmarshal extra: %w", err)
		}
	}
	return message.Restore(id, message.ParseRole(role), content, md), nil
}
