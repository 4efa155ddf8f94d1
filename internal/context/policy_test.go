package ctxengine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/voidKandy/espionox-sub001/internal/embedding"
	"github.com/voidKandy/espionox-sub001/pkg/message"
)

type recordingSummarizer struct {
	calls [][]message.Message
	text  string
	err   error
}

func (s *recordingSummarizer) Summarize(_ context.Context, msgs []message.Message) (string, error) {
	s.calls = append(s.calls, msgs)
	if s.err != nil {
		return "", s.err
	}
	if s.text != "" {
		return s.text, nil
	}
	return fmt.Sprintf("summary of %d", len(msgs)), nil
}

type archived struct {
	thread  string
	summary message.Message
	vec     embedding.Vector
}

type recordingArchive struct {
	entries   []archived
	discarded []string
	err       error
}

func (a *recordingArchive) ArchiveSummary(_ context.Context, thread string, summary message.Message, vec embedding.Vector) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.entries = append(a.entries, archived{thread: thread, summary: summary, vec: vec})
	return fmt.Sprintf("a%d", len(a.entries)), nil
}

func (a *recordingArchive) DiscardSummary(_ context.Context, id string) error {
	a.discarded = append(a.discarded, id)
	return nil
}

var fixedEmbedder = embedding.EmbedderFunc(func(_ context.Context, text string) (embedding.Vector, error) {
	return embedding.Vector{float32(len(text)), 1}, nil
})

func newTranscript(n int, system bool) message.Transcript {
	var tr message.Transcript
	if system {
		tr = message.NewTranscriptWithSystemPrompt("sys")
	}
	for i := range n {
		role := message.RoleUser
		if i%2 == 1 {
			role = message.RoleAssistant
		}
		tr.Push(role, fmt.Sprintf("m%d", i))
	}
	return tr
}

func TestNewPolicy_RequiresCollaborators(t *testing.T) {
	tests := []struct {
		name string
		mech Mechanism
		opts Options
		ok   bool
	}{
		{"forgetful needs nothing", Forgetful(), Options{}, true},
		{"summarize without summarizer", SummarizeAtLimit(4, false), Options{}, false},
		{"summarize", SummarizeAtLimit(4, false), Options{Summarizer: &recordingSummarizer{}}, true},
		{"persist without archive", SummarizeAtLimit(4, true), Options{Summarizer: &recordingSummarizer{}, Embedder: fixedEmbedder}, false},
		{"persist", SummarizeAtLimit(4, true), Options{Summarizer: &recordingSummarizer{}, Embedder: fixedEmbedder, Archive: &recordingArchive{}}, true},
		{"invalid limit", SummarizeAtLimit(1, false), Options{Summarizer: &recordingSummarizer{}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPolicy(tt.mech, tt.opts)
			if (err == nil) != tt.ok {
				t.Errorf("NewPolicy() err = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestPolicy_ShouldEvict(t *testing.T) {
	t.Parallel()

	p, err := NewPolicy(SummarizeAtLimit(4, false), Options{Summarizer: &recordingSummarizer{}})
	if err != nil {
		t.Fatal(err)
	}
	if p.ShouldEvict(newTranscript(3, false)) {
		t.Error("3 messages should not trigger at limit 4")
	}
	if !p.ShouldEvict(newTranscript(4, false)) {
		t.Error("4 messages should trigger at limit 4")
	}
}

func TestPolicy_ForgetfulKeepsLastTwo(t *testing.T) {
	t.Parallel()

	p, err := NewPolicy(Forgetful(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	tr := newTranscript(5, true)
	ev, err := p.Evict(context.Background(), tr, "")
	if err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if ev.Retained.Len() != 2 || len(ev.Evicted) != 4 || ev.Summary != nil {
		t.Fatalf("retained %d evicted %d summary %v", ev.Retained.Len(), len(ev.Evicted), ev.Summary)
	}
	if ev.Retained.At(0).Content() != "m3" || ev.Retained.At(1).Content() != "m4" {
		t.Errorf("retained = %q, %q", ev.Retained.At(0).Content(), ev.Retained.At(1).Content())
	}
	if tr.Len() != 6 {
		t.Errorf("input transcript mutated: Len() = %d", tr.Len())
	}
}

func TestPolicy_SummarizePersists(t *testing.T) {
	t.Parallel()

	sum := &recordingSummarizer{text: "they greeted each other"}
	arch := &recordingArchive{}
	p, err := NewPolicy(SummarizeAtLimit(4, true), Options{
		Summarizer: sum,
		Embedder:   fixedEmbedder,
		Archive:    arch,
	})
	if err != nil {
		t.Fatal(err)
	}

	tr := newTranscript(4, true) // sys, m0..m3
	ev, err := p.Evict(context.Background(), tr, "main")
	if err != nil {
		t.Fatalf("Evict: %v", err)
	}

	if len(sum.calls) != 1 {
		t.Fatalf("summarizer calls = %d, want 1", len(sum.calls))
	}
	got := sum.calls[0]
	if len(got) != 2 || got[0].Content() != "m0" || got[1].Content() != "m1" {
		t.Errorf("summarizer input = %v", contents(got))
	}
	if len(ev.Evicted) != 2 {
		t.Errorf("evicted = %v", contents(ev.Evicted))
	}

	if ev.Retained.Len() > 4 {
		t.Errorf("retained %d messages over limit", ev.Retained.Len())
	}
	want := []string{"sys", "", "m2", "m3"}
	for i, w := range want {
		m := ev.Retained.At(i)
		if i == 1 {
			if !m.IsSummary() || m.Role() != message.RoleSystem {
				t.Errorf("slot 1 is not a system summary: %s %q", m.Role(), m.Content())
			}
			if !strings.Contains(m.Content(), "they greeted each other") {
				t.Errorf("summary content = %q", m.Content())
			}
			continue
		}
		if m.Content() != w {
			t.Errorf("retained[%d] = %q, want %q", i, m.Content(), w)
		}
	}

	if len(arch.entries) != 1 {
		t.Fatalf("archive entries = %d, want 1", len(arch.entries))
	}
	if arch.entries[0].thread != "main" || arch.entries[0].summary.ID() != ev.Summary.ID() {
		t.Errorf("archived %+v", arch.entries[0])
	}
	if len(arch.entries[0].vec) == 0 {
		t.Error("archived summary has no embedding")
	}
	if ev.ArchivedID != "a1" {
		t.Errorf("ArchivedID = %q, want a1", ev.ArchivedID)
	}

	if err := p.Discard(context.Background(), ev); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if len(arch.discarded) != 1 || arch.discarded[0] != "a1" {
		t.Errorf("discarded = %v, want [a1]", arch.discarded)
	}
}

func TestPolicy_DiscardWithoutArchiveIsNoop(t *testing.T) {
	t.Parallel()

	arch := &recordingArchive{}
	p, err := NewPolicy(SummarizeAtLimit(4, true), Options{
		Summarizer: &recordingSummarizer{},
		Embedder:   fixedEmbedder,
		Archive:    arch,
	})
	if err != nil {
		t.Fatal(err)
	}

	ev, err := p.Evict(context.Background(), newTranscript(4, true), "")
	if err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if ev.ArchivedID != "" {
		t.Fatalf("ArchivedID = %q without a thread", ev.ArchivedID)
	}
	if err := p.Discard(context.Background(), ev); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if len(arch.discarded) != 0 {
		t.Errorf("discarded = %v, want none", arch.discarded)
	}
}

func TestPolicy_SummarizeWithoutThreadSkipsArchive(t *testing.T) {
	t.Parallel()

	arch := &recordingArchive{}
	p, err := NewPolicy(SummarizeAtLimit(4, true), Options{
		Summarizer: &recordingSummarizer{},
		Embedder:   fixedEmbedder,
		Archive:    arch,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Evict(context.Background(), newTranscript(5, false), ""); err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if len(arch.entries) != 0 {
		t.Errorf("archived without a thread: %d entries", len(arch.entries))
	}
}

func TestPolicy_LengthStaysWithinLimit(t *testing.T) {
	t.Parallel()

	for _, limit := range []int{2, 3, 4, 7} {
		t.Run(fmt.Sprint(limit), func(t *testing.T) {
			p, err := NewPolicy(SummarizeAtLimit(limit, false), Options{Summarizer: &recordingSummarizer{}})
			if err != nil {
				t.Fatal(err)
			}
			tr := message.NewTranscriptWithSystemPrompt("sys")
			for i := range 40 {
				tr.Push(message.RoleUser, fmt.Sprintf("u%d", i))
				tr.Push(message.RoleAssistant, fmt.Sprintf("a%d", i))
				if !p.ShouldEvict(tr) {
					continue
				}
				ev, err := p.Evict(context.Background(), tr, "")
				if err != nil {
					t.Fatalf("Evict at %d: %v", i, err)
				}
				tr = ev.Retained
				if tr.Len() > limit {
					t.Fatalf("length %d exceeds limit %d after round %d", tr.Len(), limit, i)
				}
			}
			last, _ := tr.Last()
			if last.Content() != "a39" {
				t.Errorf("newest message lost: last = %q", last.Content())
			}
		})
	}
}

func TestPolicy_FailureLeavesTranscript(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		opts Options
	}{
		{"summarizer", Options{Summarizer: &recordingSummarizer{err: boom}, Embedder: fixedEmbedder, Archive: &recordingArchive{}}},
		{"embedder", Options{
			Summarizer: &recordingSummarizer{},
			Embedder: embedding.EmbedderFunc(func(context.Context, string) (embedding.Vector, error) {
				return nil, boom
			}),
			Archive: &recordingArchive{},
		}},
		{"archive", Options{Summarizer: &recordingSummarizer{}, Embedder: fixedEmbedder, Archive: &recordingArchive{err: boom}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPolicy(SummarizeAtLimit(4, true), tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			tr := newTranscript(5, true)
			before := contents(tr.Messages())

			_, err = p.Evict(context.Background(), tr, "main")
			if !errors.Is(err, ErrEvictionFailed) {
				t.Fatalf("err = %v, want ErrEvictionFailed", err)
			}
			if !errors.Is(err, boom) {
				t.Errorf("cause lost: %v", err)
			}
			if after := contents(tr.Messages()); strings.Join(after, ",") != strings.Join(before, ",") {
				t.Errorf("transcript changed: %v -> %v", before, after)
			}
		})
	}
}

func TestPolicy_EmptySummaryRejected(t *testing.T) {
	t.Parallel()

	p, err := NewPolicy(SummarizeAtLimit(3, false), Options{
		Summarizer: SummarizerFunc(func(context.Context, []message.Message) (string, error) { return "  ", nil }),
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Evict(context.Background(), newTranscript(4, false), "")
	if !errors.Is(err, ErrEmptySummary) {
		t.Errorf("err = %v, want ErrEmptySummary", err)
	}
}

func TestPolicy_LoneSummaryNotResummarized(t *testing.T) {
	t.Parallel()

	sum := &recordingSummarizer{}
	p, err := NewPolicy(SummarizeAtLimit(4, false), Options{Summarizer: sum})
	if err != nil {
		t.Fatal(err)
	}
	tr := message.NewTranscript(
		message.New(message.RoleSystem, "sys"),
		message.NewWithMetadata(message.RoleSystem, "old", message.Metadata{Kind: message.KindSummary}),
		message.New(message.RoleUser, "q"),
		message.New(message.RoleAssistant, "a"),
	)
	ev, err := p.Evict(context.Background(), tr, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.calls) != 0 || len(ev.Evicted) != 0 || ev.Retained.Len() != 4 {
		t.Errorf("calls %d evicted %d retained %d", len(sum.calls), len(ev.Evicted), ev.Retained.Len())
	}
}

func contents(msgs []message.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content()
	}
	return out
}
