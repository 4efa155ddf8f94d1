package memory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/google/uuid"

	"github.com/voidKandy/espionox-sub001/internal/embedding"
	"github.com/voidKandy/espionox-sub001/pkg/message"
)

type storeArchive struct {
	store Store
}

func (a storeArchive) ArchiveSummary(ctx context.Context, thread string, summary message.Message, vec embedding.Vector) (string, error) {
	return a.store.PostSummary(ctx, Summary{
		ID:        uuid.NewString(),
		Thread:    thread,
		Kind:      message.KindSummary,
		Content:   summary.Content(),
		Embedding: vec,
		CreatedAt: time.Now().UTC(),
	})
}

func (a storeArchive) DiscardSummary(ctx context.Context, id string) error {
	return a.store.DeleteSummary(ctx, id)
}

// RememberFile reads path, splits it into chunks and stores each chunk as an
// embedded summary of the active thread. HTML files are converted to
// markdown first. Either every chunk is stored or none is: when a chunk
// fails, the chunks already stored are deleted again.
func (b *Backend) RememberFile(ctx context.Context, path string) ([]Summary, error) {
	thread, err := b.longTermThread("RememberFile")
	if err != nil {
		return nil, err
	}
	if b.embedder == nil {
		return nil, ErrNoEmbedder
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("memory: read %s: %w", path, err)
	}
	text := string(data)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		text, err = htmltomarkdown.ConvertString(text)
		if err != nil {
			return nil, fmt.Errorf("memory: convert %s: %w", path, err)
		}
	}

	chunks := chunkRunes(text, b.chunkSize)
	out := make([]Summary, 0, len(chunks))
	undo := func() {
		cleanup := context.WithoutCancel(ctx)
		for _, s := range out {
			if err := b.store.DeleteSummary(cleanup, s.ID); err != nil {
				b.logger.Warn("remember file: failed to delete stored chunk",
					"thread", thread, "path", path, "id", s.ID, "error", err)
			}
		}
	}
	for i, chunk := range chunks {
		vec, err := b.embedder.Embed(ctx, chunk)
		if err != nil {
			undo()
			return nil, fmt.Errorf("memory: embed chunk %d of %s: %w", i, path, err)
		}
		s := Summary{
			ID:        uuid.NewString(),
			Thread:    thread,
			Filepath:  path,
			Kind:      message.KindFile,
			Content:   chunk,
			Embedding: vec,
			CreatedAt: time.Now().UTC(),
		}
		if s.ID, err = b.store.PostSummary(ctx, s); err != nil {
			undo()
			return nil, fmt.Errorf("%w: store chunk %d of %s: %w", ErrPersistence, i, path, err)
		}
		out = append(out, s)
	}

	b.logger.Info("file remembered", "thread", thread, "path", path, "chunks", len(out))
	return out, nil
}

// RememberError stores cause as an embedded error record of the active thread.
func (b *Backend) RememberError(ctx context.Context, cause error) (Summary, error) {
	thread, err := b.longTermThread("RememberError")
	if err != nil {
		return Summary{}, err
	}
	if cause == nil {
		return Summary{}, errors.New("memory: nil error")
	}
	if b.embedder == nil {
		return Summary{}, ErrNoEmbedder
	}

	rec := ErrorRecord{Message: cause.Error(), At: time.Now().UTC()}
	vec, err := b.embedder.Embed(ctx, rec.Message)
	if err != nil {
		return Summary{}, fmt.Errorf("memory: embed error record: %w", err)
	}
	s := Summary{
		ID:        uuid.NewString(),
		Thread:    thread,
		Kind:      message.KindError,
		Content:   rec.Message,
		Embedding: vec,
		CreatedAt: rec.At,
	}
	if s.ID, err = b.store.PostSummary(ctx, s); err != nil {
		return Summary{}, fmt.Errorf("%w: store error record: %w", ErrPersistence, err)
	}
	return s, nil
}

// Recall returns up to k summaries of the active thread closest to query.
// Matches are ordered by ascending distance; ties keep creation order.
func (b *Backend) Recall(ctx context.Context, query string, k int) ([]Match, error) {
	thread, err := b.longTermThread("Recall")
	if err != nil {
		return nil, err
	}
	if b.embedder == nil {
		return nil, ErrNoEmbedder
	}
	if k <= 0 {
		return nil, nil
	}

	qv, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory: embed query: %w", err)
	}
	sums, err := b.store.Summaries(ctx, thread)
	if err != nil {
		return nil, fmt.Errorf("%w: list summaries: %w", ErrPersistence, err)
	}

	matches := make([]Match, 0, len(sums))
	for _, s := range sums {
		score, err := embedding.ScoreL2(qv, s.Embedding)
		if err != nil {
			b.logger.Warn("recall: skipping summary", "id", s.ID, "error", err)
			continue
		}
		matches = append(matches, Match{Summary: s, Score: score})
	}
	slices.SortStableFunc(matches, func(a, b Match) int { return cmp.Compare(a.Score, b.Score) })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// chunkRunes splits text into pieces of at most size runes, dropping pieces
// that are only whitespace.
func chunkRunes(text string, size int) []string {
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		piece := string(runes[start:end])
		if strings.TrimSpace(piece) == "" {
			continue
		}
		out = append(out, piece)
	}
	return out
}
