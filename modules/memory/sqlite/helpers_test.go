package sqlite

import (
	"context"
	"strings"

	ctxengine "github.com/voidKandy/espionox-sub001/internal/context"
	"github.com/voidKandy/espionox-sub001/pkg/message"
)

// newSummarizingPolicy condenses at four messages with a summarizer that
// joins the evicted contents.
func newSummarizingPolicy() (*ctxengine.Policy, error) {
	return ctxengine.NewPolicy(ctxengine.SummarizeAtLimit(4, false), ctxengine.Options{
		Summarizer: ctxengine.SummarizerFunc(func(_ context.Context, msgs []message.Message) (string, error) {
			parts := make([]string, len(msgs))
			for i, m := range msgs {
				parts[i] = m.Content()
			}
			return strings.Join(parts, "+"), nil
		}),
	})
}
