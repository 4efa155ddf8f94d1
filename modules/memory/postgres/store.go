package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/voidKandy/espionox-sub001/internal/embedding"
	"github.com/voidKandy/espionox-sub001/internal/memory"
	"github.com/voidKandy/espionox-sub001/pkg/message"
)

// Querier abstracts the pgx methods the store needs. *pgxpool.Pool and the
// pgxmock pool both satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a memory.Store on PostgreSQL. Thread safety comes from the
// connection pool.
type Store struct {
	db Querier
}

// Compile-time interface guards.
var (
	_ memory.Store      = (*Store)(nil)
	_ memory.Maintainer = (*Store)(nil)
)

// New wraps db. Call EnsureSchema before first use on a fresh database.
func New(db Querier) *Store {
	return &Store{db: db}
}

const selectMessage = `SELECT id, role, content, model_generated, kind, extra FROM espionox_messages`

// GetMessages returns the thread's full history ordered by seq.
func (s *Store) GetMessages(ctx context.Context, thread string) ([]message.Message, error) {
	return s.messagesAfter(ctx, thread, 0)
}

// messagesAfter returns the thread's messages with seq greater than after.
func (s *Store) messagesAfter(ctx context.Context, thread string, after int64) ([]message.Message, error) {
	rows, err := s.db.Query(ctx, selectMessage+` WHERE thread = $1 AND seq > $2 ORDER BY seq ASC`, thread, after)
	if err != nil {
		return nil, fmt.Errorf("postgres: get messages: %w", err)
	}
	defer rows.Close()

	var msgs []message.Message
	for rows.Next() {
		var (
			id, role, content, kind string
			modelGenerated          bool
			extra                   []byte
		)
		if err := rows.Scan(&id, &role, &content, &modelGenerated, &kind, &extra); err != nil {
			return nil, fmt.Errorf("postgres: scan message: %w", err)
		}
		md := message.Metadata{ModelGenerated: modelGenerated, Kind: message.Kind(kind)}
		if len(extra) > 0 {
			if err := json.Unmarshal(extra, &md.Extra); err != nil {
				return nil, fmt.Errorf("postgres: message %s extra: %w", id, err)
			}
		}
		msgs = append(msgs, message.Restore(id, message.ParseRole(role), content, md))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate messages: %w", err)
	}
	return msgs, nil
}

// messageArgs returns the insert arguments of PostMessage, in column order
// id, thread, role, content, model_generated, kind, extra.
func messageArgs(thread string, msg message.Message) ([]any, error) {
	md := msg.Metadata()
	var extra []byte
	if len(md.Extra) > 0 {
		var err error
		if extra, err = json.Marshal(md.Extra); err != nil {
			return nil, fmt.Errorf("postgres: marshal extra: %w", err)
		}
	}
	return []any{msg.ID(), thread, msg.Role().String(), msg.Content(), md.ModelGenerated, string(md.Kind), extra}, nil
}

// PostMessage appends msg to thread.
func (s *Store) PostMessage(ctx context.Context, thread string, msg message.Message) (string, error) {
	args, err := messageArgs(thread, msg)
	if err != nil {
		return "", err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO espionox_messages
		(id, thread, role, content, model_generated, kind, extra)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, args...)
	if err != nil {
		return "", fmt.Errorf("postgres: post message: %w", err)
	}
	return msg.ID(), nil
}

// DeleteMessage removes a message row by id.
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM espionox_messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return memory.ErrNotFound
	}
	return nil
}

// LiveMessages returns the thread's last checkpoint followed by the
// messages posted after it.
func (s *Store) LiveMessages(ctx context.Context, thread string) ([]message.Message, error) {
	var (
		through int64
		view    []byte
	)
	err := s.db.QueryRow(ctx,
		`SELECT through_seq, messages FROM espionox_checkpoints WHERE thread = $1`, thread,
	).Scan(&through, &view)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.messagesAfter(ctx, thread, 0)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: read checkpoint: %w", err)
	}

	msgs, err := memory.DecodeView(view)
	if err != nil {
		return nil, fmt.Errorf("postgres: checkpoint of %q: %w", thread, err)
	}
	after, err := s.messagesAfter(ctx, thread, through)
	if err != nil {
		return nil, err
	}
	return append(msgs, after...), nil
}

// Checkpoint stores view as the thread's live view up to its latest message
// in a single upsert.
func (s *Store) Checkpoint(ctx context.Context, thread string, view []message.Message) error {
	data, err := memory.EncodeView(view)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO espionox_checkpoints (thread, through_seq, messages, updated_at)
		VALUES ($1, COALESCE((SELECT MAX(seq) FROM espionox_messages WHERE thread = $1), 0), $2, NOW())
		ON CONFLICT (thread) DO UPDATE SET
			through_seq = EXCLUDED.through_seq,
			messages    = EXCLUDED.messages,
			updated_at  = EXCLUDED.updated_at`,
		thread, data,
	)
	if err != nil {
		return fmt.Errorf("postgres: checkpoint: %w", err)
	}
	return nil
}

// Threads lists thread names in sorted order.
func (s *Store) Threads(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT thread FROM espionox_messages ORDER BY thread`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list threads: %w", err)
	}
	threads, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: list threads: %w", err)
	}
	return threads, nil
}

// PostSummary stores sum and returns its id.
func (s *Store) PostSummary(ctx context.Context, sum memory.Summary) (string, error) {
	if sum.ID == "" {
		sum.ID = uuid.NewString()
	}
	if sum.CreatedAt.IsZero() {
		sum.CreatedAt = time.Now().UTC()
	}

	var filepath *string
	if sum.Filepath != "" {
		filepath = &sum.Filepath
	}

	_, err := s.db.Exec(ctx, `INSERT INTO espionox_summaries
		(id, thread, filepath, kind, content, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sum.ID, sum.Thread, filepath, string(sum.Kind), sum.Content,
		embedding.Encode(sum.Embedding), sum.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("postgres: post summary: %w", err)
	}
	return sum.ID, nil
}

// Summaries returns the thread's summaries ordered by creation.
func (s *Store) Summaries(ctx context.Context, thread string) ([]memory.Summary, error) {
	rows, err := s.db.Query(ctx, `SELECT id, thread, filepath, kind, content, embedding, created_at
		FROM espionox_summaries WHERE thread = $1 ORDER BY created_at ASC, id ASC`, thread)
	if err != nil {
		return nil, fmt.Errorf("postgres: get summaries: %w", err)
	}
	defer rows.Close()

	var out []memory.Summary
	for rows.Next() {
		var (
			sum      memory.Summary
			filepath *string
			kind     string
			blob     []byte
		)
		if err := rows.Scan(&sum.ID, &sum.Thread, &filepath, &kind, &sum.Content, &blob, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan summary: %w", err)
		}
		if filepath != nil {
			sum.Filepath = *filepath
		}
		sum.Kind = message.Kind(kind)
		if sum.Embedding, err = embedding.Decode(blob); err != nil {
			return nil, fmt.Errorf("postgres: summary %s: %w", sum.ID, err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate summaries: %w", err)
	}
	return out, nil
}

// DeleteSummary removes a summary row by id.
func (s *Store) DeleteSummary(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM espionox_summaries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return memory.ErrNotFound
	}
	return nil
}

// Maintain refreshes planner statistics on every table.
func (s *Store) Maintain(ctx context.Context) error {
	var errs []error
	for _, table := range []string{"espionox_messages", "espionox_summaries", "espionox_checkpoints"} {
		if _, err := s.db.Exec(ctx, "ANALYZE "+table); err != nil {
			errs = append(errs, fmt.Errorf("postgres: analyze %s: %w", table, err))
		}
	}
	return errors.Join(errs...)
}
