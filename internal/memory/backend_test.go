package memory

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	ctxengine "github.com/voidKandy/espionox-sub001/internal/context"
	"github.com/voidKandy/espionox-sub001/internal/embedding"
	"github.com/voidKandy/espionox-sub001/pkg/message"
)

var countingSummarizer = ctxengine.SummarizerFunc(func(_ context.Context, msgs []message.Message) (string, error) {
	return fmt.Sprintf("%d messages condensed", len(msgs)), nil
})

var lengthEmbedder = embedding.EmbedderFunc(func(_ context.Context, text string) (embedding.Vector, error) {
	return embedding.Vector{float32(len(text))}, nil
})

// faultyStore fails selected operations on demand.
type faultyStore struct {
	*MemStore
	failPost       int // fail the nth PostMessage (1-based), 0 disables
	failCheckpoint bool
	posts          int
}

func (f *faultyStore) PostMessage(ctx context.Context, thread string, msg message.Message) (string, error) {
	f.posts++
	if f.failPost > 0 && f.posts == f.failPost {
		return "", errors.New("disk full")
	}
	return f.MemStore.PostMessage(ctx, thread, msg)
}

func (f *faultyStore) Checkpoint(ctx context.Context, thread string, view []message.Message) error {
	if f.failCheckpoint {
		return errors.New("tx aborted")
	}
	return f.MemStore.Checkpoint(ctx, thread, view)
}

func newPolicy(t *testing.T, m ctxengine.Mechanism, store Store) *ctxengine.Policy {
	t.Helper()
	opts := ctxengine.Options{Summarizer: countingSummarizer}
	if m.Persist() {
		opts.Embedder = lengthEmbedder
		opts.Archive = NewArchive(store)
	}
	p, err := ctxengine.NewPolicy(m, opts)
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	return p
}

func newBackend(t *testing.T, mode Mode, m ctxengine.Mechanism, store Store) *Backend {
	t.Helper()
	b, err := NewBackend(Config{
		Mode:     mode,
		Policy:   newPolicy(t, m, store),
		Store:    store,
		Embedder: lengthEmbedder,
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	return b
}

func TestNewBackend_Validation(t *testing.T) {
	t.Parallel()

	p := newPolicy(t, ctxengine.Forgetful(), nil)
	if _, err := NewBackend(Config{Mode: LongTerm("t"), Policy: p}); !errors.Is(err, ErrNoStore) {
		t.Errorf("long-term without store: %v", err)
	}
	if _, err := NewBackend(Config{Mode: LongTerm(""), Policy: p, Store: NewMemStore()}); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("empty thread: %v", err)
	}
	if _, err := NewBackend(Config{Mode: Cache()}); err == nil {
		t.Error("missing policy accepted")
	}
}

func TestBackend_LengthNeverExceedsLimit(t *testing.T) {
	mechs := []ctxengine.Mechanism{
		ctxengine.Forgetful(),
		ctxengine.SummarizeAtLimit(3, false),
		ctxengine.SummarizeAtLimit(4, true),
		ctxengine.SummarizeAtLimit(9, true),
	}
	modes := []Mode{LongTerm("prop"), Cache(), Forget()}

	for _, m := range mechs {
		for _, mode := range modes {
			t.Run(fmt.Sprintf("%s-%d/%s", m.Kind(), m.Limit(), mode), func(t *testing.T) {
				t.Parallel()

				ctx := context.Background()
				store := NewMemStore()
				b := newBackend(t, mode, m, store)
				if _, err := b.Load(ctx); err != nil {
					t.Fatal(err)
				}
				rng := rand.New(rand.NewPCG(uint64(m.Limit()), 7))

				posted := 0
				for i := range 60 {
					batch := make([]message.Message, 1+rng.IntN(3))
					posted += len(batch)
					for j := range batch {
						batch[j] = message.New(message.RoleUser, fmt.Sprintf("m%d.%d", i, j))
					}
					if err := b.Commit(ctx, batch...); err != nil {
						t.Fatalf("Commit #%d: %v", i, err)
					}
					if n := b.Transcript().Len(); n > m.Limit() {
						t.Fatalf("after commit #%d length %d > limit %d", i, n, m.Limit())
					}
				}

				if mode.IsLongTerm() {
					history, _ := store.GetMessages(ctx, "prop")
					if len(history) != posted {
						t.Fatalf("history has %d rows, want all %d posted", len(history), posted)
					}
					view, _ := store.LiveMessages(ctx, "prop")
					live := b.Transcript()
					if len(view) != live.Len() {
						t.Fatalf("stored live view has %d messages, backend %d", len(view), live.Len())
					}
					for i := range view {
						if view[i].ID() != live.At(i).ID() {
							t.Errorf("live view %d id mismatch", i)
						}
					}
				}
			})
		}
	}
}

func TestBackend_CacheForgetCacheRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newBackend(t, Cache(), ctxengine.SummarizeAtLimit(10, false), nil)
	if _, err := b.Load(ctx); err != nil {
		t.Fatal(err)
	}
	_ = b.Commit(ctx, message.New(message.RoleUser, "remember me"))

	if err := b.Switch(ctx, Forget()); err != nil {
		t.Fatalf("Switch(Forget): %v", err)
	}
	if b.Transcript().Len() != 0 {
		t.Fatalf("forget mode starts with %d messages", b.Transcript().Len())
	}
	_ = b.Commit(ctx, message.New(message.RoleUser, "forget me"))

	if err := b.Switch(ctx, Cache()); err != nil {
		t.Fatalf("Switch(Cache): %v", err)
	}
	tr := b.Transcript()
	if tr.Len() != 1 || tr.At(0).Content() != "remember me" {
		t.Errorf("cache transcript = %v", tr.ToWire())
	}
}

func TestBackend_ForgetDiscardsOnLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newBackend(t, Forget(), ctxengine.Forgetful(), nil)
	_ = b.Commit(ctx, message.New(message.RoleUser, "x"))
	if b.Transcript().Len() != 1 {
		t.Fatal("append in forget mode not visible")
	}
	tr, err := b.Load(ctx)
	if err != nil || tr.Len() != 0 {
		t.Errorf("Load = %d messages, %v", tr.Len(), err)
	}
}

func TestBackend_LongTermLoadsFromStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemStore()
	first := newBackend(t, LongTerm("shared"), ctxengine.SummarizeAtLimit(10, false), store)
	_ = first.Commit(ctx, message.New(message.RoleUser, "q"), message.New(message.RoleAssistant, "a"))

	second := newBackend(t, LongTerm("shared"), ctxengine.SummarizeAtLimit(10, false), store)
	tr, err := second.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Len() != 2 || tr.At(1).Content() != "a" {
		t.Errorf("loaded %v", tr.ToWire())
	}
}

func TestBackend_CommitRollback(t *testing.T) {
	tests := []struct {
		name    string
		store   *faultyStore
		wantErr error
	}{
		{"second post fails", &faultyStore{MemStore: NewMemStore(), failPost: 4}, ErrPersistence},
		{"checkpoint fails", &faultyStore{MemStore: NewMemStore(), failCheckpoint: true}, ErrPersistence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			b := newBackend(t, LongTerm("t"), ctxengine.SummarizeAtLimit(4, false), tt.store)
			if err := b.Commit(ctx, message.New(message.RoleSystem, "sys"), message.New(message.RoleUser, "u1")); err != nil {
				t.Fatalf("seed commit: %v", err)
			}
			before := b.Transcript().ToWire()

			err := b.Commit(ctx,
				message.New(message.RoleAssistant, "a1"),
				message.New(message.RoleUser, "u2"),
				message.New(message.RoleAssistant, "a2"),
			)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Commit err = %v, want %v", err, tt.wantErr)
			}

			after := b.Transcript().ToWire()
			if fmt.Sprint(after) != fmt.Sprint(before) {
				t.Errorf("live transcript changed: %v -> %v", before, after)
			}
			rows, _ := tt.store.GetMessages(ctx, "t")
			if len(rows) != 2 {
				t.Errorf("store holds %d rows after rollback, want 2", len(rows))
			}
		})
	}
}

func TestBackend_EvictionFailureRollsBack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemStore()
	p, err := ctxengine.NewPolicy(ctxengine.SummarizeAtLimit(3, false), ctxengine.Options{
		Summarizer: ctxengine.SummarizerFunc(func(context.Context, []message.Message) (string, error) {
			return "", errors.New("model unavailable")
		}),
	})
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewBackend(Config{Mode: LongTerm("t"), Policy: p, Store: store})
	if err != nil {
		t.Fatal(err)
	}
	_ = b.Commit(ctx, message.New(message.RoleUser, "u1"))

	err = b.Commit(ctx, message.New(message.RoleAssistant, "a1"), message.New(message.RoleUser, "u2"))
	if !errors.Is(err, ctxengine.ErrEvictionFailed) {
		t.Fatalf("err = %v, want ErrEvictionFailed", err)
	}
	if b.Transcript().Len() != 1 {
		t.Errorf("live length = %d, want 1", b.Transcript().Len())
	}
	rows, _ := store.GetMessages(ctx, "t")
	if len(rows) != 1 {
		t.Errorf("store rows = %d, want 1", len(rows))
	}
}

func TestBackend_PersistedSummaryIsArchived(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemStore()
	b := newBackend(t, LongTerm("t"), ctxengine.SummarizeAtLimit(4, true), store)
	_ = b.Commit(ctx, message.New(message.RoleSystem, "sys"))
	for i := range 3 {
		_ = b.Commit(ctx, message.New(message.RoleUser, fmt.Sprint("u", i)), message.New(message.RoleAssistant, fmt.Sprint("a", i)))
	}

	sums, _ := store.Summaries(ctx, "t")
	if len(sums) == 0 {
		t.Fatal("no summary archived")
	}
	if sums[0].Kind != message.KindSummary || len(sums[0].Embedding) == 0 {
		t.Errorf("archived summary = %+v", sums[0])
	}

	view, _ := store.LiveMessages(ctx, "t")
	if !view[1].IsSummary() {
		t.Errorf("live view slot 1 is not the summary: %q", view[1].Content())
	}
	history, _ := store.GetMessages(ctx, "t")
	if len(history) != 7 {
		t.Errorf("history = %d rows, want 7", len(history))
	}
}

func TestBackend_EvictionKeepsHistoryDurable(t *testing.T) {
	mechs := []ctxengine.Mechanism{
		ctxengine.Forgetful(),
		ctxengine.SummarizeAtLimit(3, false),
	}
	for _, m := range mechs {
		t.Run(m.Kind().String(), func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			store := NewMemStore()
			b := newBackend(t, LongTerm("t"), m, store)
			for i := range 5 {
				if err := b.Append(ctx, message.New(message.RoleUser, fmt.Sprint("m", i))); err != nil {
					t.Fatalf("Append %d: %v", i, err)
				}
			}
			if n := b.Transcript().Len(); n > m.Limit() {
				t.Fatalf("live length %d > limit %d", n, m.Limit())
			}

			history, err := store.GetMessages(ctx, "t")
			if err != nil {
				t.Fatal(err)
			}
			if len(history) != 5 {
				t.Fatalf("history = %d rows, want 5", len(history))
			}
			for i, msg := range history {
				if msg.Content() != fmt.Sprint("m", i) {
					t.Errorf("history[%d] = %q", i, msg.Content())
				}
			}

			// A fresh backend on the same thread sees the bounded view.
			reloaded := newBackend(t, LongTerm("t"), m, store)
			tr, err := reloaded.Load(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if fmt.Sprint(tr.ToWire()) != fmt.Sprint(b.Transcript().ToWire()) {
				t.Errorf("reloaded view = %v, want %v", tr.ToWire(), b.Transcript().ToWire())
			}
		})
	}
}

func TestBackend_CheckpointFailureDiscardsArchivedSummary(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &faultyStore{MemStore: NewMemStore()}
	b := newBackend(t, LongTerm("t"), ctxengine.SummarizeAtLimit(4, true), store)
	if err := b.Commit(ctx, message.New(message.RoleSystem, "sys"), message.New(message.RoleUser, "u1")); err != nil {
		t.Fatal(err)
	}

	store.failCheckpoint = true
	err := b.Commit(ctx,
		message.New(message.RoleAssistant, "a1"),
		message.New(message.RoleUser, "u2"),
		message.New(message.RoleAssistant, "a2"),
	)
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("Commit err = %v, want ErrPersistence", err)
	}

	sums, _ := store.Summaries(ctx, "t")
	if len(sums) != 0 {
		t.Errorf("summaries after failed commit = %d, want 0", len(sums))
	}
	history, _ := store.GetMessages(ctx, "t")
	if len(history) != 2 {
		t.Errorf("history after failed commit = %d rows, want 2", len(history))
	}
}

func TestBackend_SwitchFailureKeepsMode(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newBackend(t, Cache(), ctxengine.Forgetful(), nil)
	if err := b.Switch(ctx, LongTerm("t")); !errors.Is(err, ErrNoStore) {
		t.Errorf("Switch without store = %v", err)
	}
	if !b.Mode().IsCache() {
		t.Errorf("mode = %s", b.Mode())
	}
}
