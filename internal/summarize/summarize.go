// Package summarize condenses evicted conversation segments with a model.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	ctxengine "github.com/voidKandy/espionox-sub001/internal/context"
	"github.com/voidKandy/espionox-sub001/internal/provider"
	"github.com/voidKandy/espionox-sub001/pkg/message"
)

// ErrNoMessages is returned when there is nothing to summarize.
var ErrNoMessages = errors.New("summarize: no messages")

const instruction = `Summarize the following conversation excerpt so that it can replace the
original messages in the model's context. Keep names, decisions, open
questions and facts the user stated. Write plain prose, no preamble.

%s
Summary:`

// DefaultMaxTokens bounds the length of a generated summary.
const DefaultMaxTokens = 512

// ProviderSummarizer asks a provider to condense messages.
type ProviderSummarizer struct {
	provider  provider.Provider
	maxTokens int
}

// Compile-time interface check.
var _ ctxengine.Summarizer = (*ProviderSummarizer)(nil)

// New returns a summarizer backed by p.
func New(p provider.Provider) *ProviderSummarizer {
	return &ProviderSummarizer{provider: p, maxTokens: DefaultMaxTokens}
}

// WithMaxTokens overrides the completion budget.
func (s *ProviderSummarizer) WithMaxTokens(n int) *ProviderSummarizer {
	if n > 0 {
		s.maxTokens = n
	}
	return s
}

// Summarize implements ctxengine.Summarizer.
func (s *ProviderSummarizer) Summarize(ctx context.Context, msgs []message.Message) (string, error) {
	if len(msgs) == 0 {
		return "", ErrNoMessages
	}

	resp, err := s.provider.Complete(ctx, provider.CompletionRequest{
		Messages: []message.Wire{
			{Role: message.RoleUser.String(), Content: fmt.Sprintf(instruction, excerpt(msgs))},
		},
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// excerpt renders msgs as "role: content" lines.
func excerpt(msgs []message.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m.Role().String())
		b.WriteString(": ")
		b.WriteString(m.Content())
		b.WriteByte('\n')
	}
	return b.String()
}
