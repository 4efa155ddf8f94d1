package ctxengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voidKandy/espionox-sub001/internal/embedding"
	"github.com/voidKandy/espionox-sub001/pkg/message"
)

var (
	// ErrEvictionFailed indicates that eviction was aborted. The transcript
	// the caller holds is still the pre-eviction one.
	ErrEvictionFailed = errors.New("ctxengine: eviction failed")

	// ErrEmptySummary is returned when the summarizer produced no text.
	ErrEmptySummary = errors.New("ctxengine: empty summary")
)

// Summarizer produces a condensed summary of a conversation segment.
type Summarizer interface {
	Summarize(ctx context.Context, messages []message.Message) (string, error)
}

// SummarizerFunc adapts a function to the Summarizer interface.
type SummarizerFunc func(ctx context.Context, messages []message.Message) (string, error)

// Summarize implements Summarizer.
func (f SummarizerFunc) Summarize(ctx context.Context, messages []message.Message) (string, error) {
	return f(ctx, messages)
}

// Archive receives summaries that must outlive the live transcript.
type Archive interface {
	// ArchiveSummary stores summary and returns the archived row id.
	ArchiveSummary(ctx context.Context, thread string, summary message.Message, vec embedding.Vector) (string, error)

	// DiscardSummary removes a previously archived row.
	DiscardSummary(ctx context.Context, id string) error
}

// Options carries the collaborators of a Policy.
type Options struct {
	// Summarizer is required for SummarizeAtLimit.
	Summarizer Summarizer

	// Embedder and Archive are required when the mechanism persists.
	Embedder embedding.Embedder
	Archive  Archive

	Logger *slog.Logger
}

// Eviction is the outcome of Evict. Evicted is empty when nothing had to go.
type Eviction struct {
	Retained message.Transcript
	Evicted  []message.Message
	Summary  *message.Message

	// ArchivedID is set when the summary was written to the Archive.
	ArchivedID string
}

// Policy applies a Mechanism to transcripts.
type Policy struct {
	mech       Mechanism
	summarizer Summarizer
	embedder   embedding.Embedder
	archive    Archive
	logger     *slog.Logger
}

// NewPolicy validates m against the supplied collaborators.
func NewPolicy(m Mechanism, opts Options) (*Policy, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.kind == KindSummarize {
		if opts.Summarizer == nil {
			return nil, errors.New("ctxengine: summarize mechanism requires a summarizer")
		}
		if m.persist && (opts.Embedder == nil || opts.Archive == nil) {
			return nil, errors.New("ctxengine: persistent summaries require an embedder and an archive")
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{
		mech:       m,
		summarizer: opts.Summarizer,
		embedder:   opts.Embedder,
		archive:    opts.Archive,
		logger:     logger.With("component", "ctxengine"),
	}, nil
}

// Mechanism returns the configured mechanism.
func (p *Policy) Mechanism() Mechanism { return p.mech }

// Limit returns the transcript length that triggers eviction.
func (p *Policy) Limit() int { return p.mech.limit }

// ShouldEvict reports whether t has reached the limit.
func (p *Policy) ShouldEvict(t message.Transcript) bool {
	return t.Len() >= p.mech.limit
}

// Evict splits t into retained and evicted messages. t itself is never
// modified. For SummarizeAtLimit, the evicted messages are summarized and,
// when persisting and thread is non-empty, archived before Evict returns.
// Any collaborator failure aborts the eviction with ErrEvictionFailed.
func (p *Policy) Evict(ctx context.Context, t message.Transcript, thread string) (Eviction, error) {
	msgs := t.Messages()
	if p.mech.kind == KindForgetful {
		return p.forget(msgs), nil
	}
	return p.summarize(ctx, msgs, thread)
}

func (p *Policy) forget(msgs []message.Message) Eviction {
	if len(msgs) <= ForgetfulLimit {
		return Eviction{Retained: message.NewTranscript(msgs...)}
	}
	cut := len(msgs) - ForgetfulLimit
	return Eviction{
		Retained: message.NewTranscript(msgs[cut:]...),
		Evicted:  msgs[:cut],
	}
}

func (p *Policy) summarize(ctx context.Context, msgs []message.Message, thread string) (Eviction, error) {
	limit := p.mech.limit

	lead := 0
	for lead < len(msgs) && lead < limit-2 {
		m := msgs[lead]
		if m.Role() != message.RoleSystem || m.IsSummary() {
			break
		}
		lead++
	}

	tail := min(2, limit-lead-1, len(msgs)-lead)
	evicted := msgs[lead : len(msgs)-tail]

	if len(evicted) == 0 || (len(msgs) <= limit && onlySummaries(evicted)) {
		return Eviction{Retained: message.NewTranscript(msgs...)}, nil
	}

	text, err := p.summarizer.Summarize(ctx, evicted)
	if err != nil {
		return Eviction{}, fmt.Errorf("%w: summarize: %w", ErrEvictionFailed, err)
	}
	if strings.TrimSpace(text) == "" {
		return Eviction{}, fmt.Errorf("%w: %w", ErrEvictionFailed, ErrEmptySummary)
	}

	summary := message.NewWithMetadata(message.RoleSystem, formatSummary(text), message.Metadata{
		Kind: message.KindSummary,
	})

	var archivedID string
	if p.mech.persist {
		if thread == "" {
			p.logger.Debug("summary not archived: no thread", "evicted", len(evicted))
		} else if archivedID, err = p.persist(ctx, thread, text, summary); err != nil {
			return Eviction{}, err
		}
	}

	retained := make([]message.Message, 0, lead+1+tail)
	retained = append(retained, msgs[:lead]...)
	retained = append(retained, summary)
	retained = append(retained, msgs[len(msgs)-tail:]...)

	p.logger.Debug("transcript condensed",
		"thread", thread,
		"evicted", len(evicted),
		"retained", len(retained),
	)

	return Eviction{
		Retained: message.NewTranscript(retained...),
		Evicted:    evicted,
		Summary:    &summary,
		ArchivedID: archivedID,
	}, nil
}

// Discard undoes the archive write of ev. Callers use it when they cannot
// apply an eviction that Evict already archived.
func (p *Policy) Discard(ctx context.Context, ev Eviction) error {
	if ev.ArchivedID == "" || p.archive == nil {
		return nil
	}
	if err := p.archive.DiscardSummary(ctx, ev.ArchivedID); err != nil {
		return fmt.Errorf("ctxengine: discard summary %s: %w", ev.ArchivedID, err)
	}
	return nil
}

func (p *Policy) persist(ctx context.Context, thread, text string, summary message.Message) (string, error) {
	vec, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("%w: embed summary: %w", ErrEvictionFailed, err)
	}
	if len(vec) == 0 {
		return "", fmt.Errorf("%w: %w", ErrEvictionFailed, embedding.ErrEmptyEmbedding)
	}
	id, err := p.archive.ArchiveSummary(ctx, thread, summary, vec)
	if err != nil {
		return "", fmt.Errorf("%w: archive summary: %w", ErrEvictionFailed, err)
	}
	return id, nil
}

func onlySummaries(msgs []message.Message) bool {
	for _, m := range msgs {
		if !m.IsSummary() {
			return false
		}
	}
	return true
}

// formatSummary wraps the raw summary text in a labelled block.
func formatSummary(summary string) string {
	var b strings.Builder
	b.WriteString("[Conversation Summary]\n")
	b.WriteString(summary)
	return b.String()
}
