package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	ctxengine "github.com/voidKandy/espionox-sub001/internal/context"
	"github.com/voidKandy/espionox-sub001/internal/embedding"
	"github.com/voidKandy/espionox-sub001/pkg/message"
)

var (
	// ErrModeMismatch is returned when an operation needs a mode that is not active.
	ErrModeMismatch = errors.New("memory: mode mismatch")

	// ErrPersistence wraps store failures.
	ErrPersistence = errors.New("memory: persistence failure")

	// ErrNoStore is returned when long-term mode is requested without a Store.
	ErrNoStore = errors.New("memory: long-term mode requires a store")

	// ErrNoEmbedder is returned by helpers that embed text when none is configured.
	ErrNoEmbedder = errors.New("memory: no embedder configured")
)

// DefaultChunkSize is the rune length of file chunks ingested by RememberFile.
const DefaultChunkSize = 2000

// Config assembles a Backend.
type Config struct {
	Mode   Mode
	Policy *ctxengine.Policy

	// Store is required for long-term mode.
	Store Store

	// Embedder is required by RememberFile, RememberError and Recall.
	Embedder embedding.Embedder

	// ChunkSize defaults to DefaultChunkSize.
	ChunkSize int

	Logger *slog.Logger
}

// Backend owns an agent's live transcript. It is safe for concurrent use.
type Backend struct {
	mu       sync.Mutex
	mode     Mode
	live     message.Transcript
	volatile map[string]message.Transcript

	policy    *ctxengine.Policy
	store     Store
	embedder  embedding.Embedder
	chunkSize int
	logger    *slog.Logger
}

// NewBackend validates cfg and returns a Backend in cfg.Mode. The transcript
// is empty until the first Load.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Policy == nil {
		return nil, errors.New("memory: policy is required")
	}
	if err := cfg.Mode.Validate(); err != nil {
		return nil, err
	}
	if cfg.Mode.IsLongTerm() && cfg.Store == nil {
		return nil, ErrNoStore
	}
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		mode:      cfg.Mode,
		volatile:  make(map[string]message.Transcript),
		policy:    cfg.Policy,
		store:     cfg.Store,
		embedder:  cfg.Embedder,
		chunkSize: chunk,
		logger:    logger.With("component", "memory"),
	}, nil
}

// Mode returns the active mode.
func (b *Backend) Mode() Mode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode
}

// Transcript returns a copy of the live transcript.
func (b *Backend) Transcript() message.Transcript {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.live.Clone()
}

// Policy returns the caching policy applied on commit.
func (b *Backend) Policy() *ctxengine.Policy { return b.policy }

// Load refreshes the live transcript from the active mode's source and
// returns a copy of it.
func (b *Backend) Load(ctx context.Context) (message.Transcript, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.loadLocked(ctx); err != nil {
		return message.Transcript{}, err
	}
	return b.live.Clone(), nil
}

func (b *Backend) loadLocked(ctx context.Context) error {
	switch {
	case b.mode.IsLongTerm():
		msgs, err := b.store.LiveMessages(ctx, b.mode.Thread())
		if err != nil {
			return fmt.Errorf("%w: load thread %q: %w", ErrPersistence, b.mode.Thread(), err)
		}
		b.live = message.NewTranscript(msgs...)
	case b.mode.IsCache():
		b.live = b.volatile[cacheKey].Clone()
	default:
		b.live = message.Transcript{}
	}
	return nil
}

// Append commits a single message.
func (b *Backend) Append(ctx context.Context, msg message.Message) error {
	return b.Commit(ctx, msg)
}

// Commit appends msgs as one unit and applies the caching policy once.
// In long-term mode every message is posted to the store before eviction,
// and eviction only narrows the live view recorded by Store.Checkpoint; the
// thread's history keeps every row. On failure the live transcript, the
// store and the archive are left as they were before the call.
func (b *Backend) Commit(ctx context.Context, msgs ...message.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	before := b.live.Clone()
	b.live.Append(msgs...)

	var posted []string
	rollback := func() {
		b.live = before
		if len(posted) == 0 {
			return
		}
		cleanup := context.WithoutCancel(ctx)
		for _, id := range posted {
			if err := b.store.DeleteMessage(cleanup, id); err != nil {
				b.logger.Warn("rollback: failed to delete posted message",
					"thread", b.mode.Thread(), "id", id, "error", err)
			}
		}
	}

	thread := ""
	if b.mode.IsLongTerm() {
		thread = b.mode.Thread()
		for _, m := range msgs {
			id, err := b.store.PostMessage(ctx, thread, m)
			if err != nil {
				rollback()
				return fmt.Errorf("%w: post message: %w", ErrPersistence, err)
			}
			posted = append(posted, id)
		}
	}

	if b.policy.ShouldEvict(b.live) {
		ev, err := b.policy.Evict(ctx, b.live, thread)
		if err != nil {
			rollback()
			return err
		}
		if len(ev.Evicted) > 0 && b.mode.IsLongTerm() {
			if err := b.store.Checkpoint(ctx, thread, ev.Retained.Messages()); err != nil {
				if derr := b.policy.Discard(context.WithoutCancel(ctx), ev); derr != nil {
					b.logger.Warn("rollback: failed to discard archived summary",
						"thread", thread, "error", derr)
				}
				rollback()
				return fmt.Errorf("%w: checkpoint live view: %w", ErrPersistence, err)
			}
		}
		if len(ev.Evicted) > 0 {
			b.logger.Debug("transcript evicted",
				"mode", b.mode.String(),
				"evicted", len(ev.Evicted),
				"retained", ev.Retained.Len(),
			)
		}
		b.live = ev.Retained
	}

	if b.mode.IsCache() {
		b.volatile[cacheKey] = b.live.Clone()
	}
	return nil
}

// Switch activates mode and loads its transcript. The cache transcript is
// kept under its key; a Forget transcript is discarded. If loading fails the
// previous mode stays active.
func (b *Backend) Switch(ctx context.Context, mode Mode) error {
	if err := mode.Validate(); err != nil {
		return err
	}
	if mode.IsLongTerm() && b.store == nil {
		return ErrNoStore
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	prevMode, prevLive := b.mode, b.live
	if prevMode.IsCache() {
		b.volatile[cacheKey] = b.live.Clone()
	}

	b.mode = mode
	b.live = message.Transcript{}
	if err := b.loadLocked(ctx); err != nil {
		b.mode, b.live = prevMode, prevLive
		return err
	}
	b.logger.Info("memory mode switched", "from", prevMode.String(), "to", mode.String())
	return nil
}

// longTermThread returns the active thread, or ErrModeMismatch naming op.
func (b *Backend) longTermThread(op string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.mode.IsLongTerm() {
		return "", fmt.Errorf("%w: %s requires long-term mode, active mode is %s", ErrModeMismatch, op, b.mode)
	}
	return b.mode.Thread(), nil
}

// NewArchive adapts a Store so that a caching policy can archive summaries
// into it.
func NewArchive(s Store) ctxengine.Archive {
	return storeArchive{store: s}
}
