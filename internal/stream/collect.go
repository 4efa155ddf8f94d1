package stream

import (
	"context"

	"github.com/voidKandy/espionox-sub001/internal/provider"
)

// Collect drains chunks through a fresh Decoder and returns the full text.
// onDelta, when non-nil, receives every non-empty delta in arrival order.
//
// Transport errors carried on the channel are returned unchanged. A channel
// that closes before an end-of-turn chunk is treated as end-of-turn. When
// ctx is done, Collect returns ctx.Err() and the partial text is discarded.
func Collect(ctx context.Context, chunks <-chan provider.RawChunk, onDelta func(string)) (string, error) {
	dec := NewDecoder()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				if err := ctx.Err(); err != nil {
					return "", err
				}
				return dec.Text(), nil
			}
			if chunk.Err != nil {
				return "", chunk.Err
			}
			status, err := dec.Decode(chunk.Data)
			if err != nil {
				return "", err
			}
			if status.Finished {
				return dec.Text(), nil
			}
			if onDelta != nil && status.Delta != "" {
				onDelta(status.Delta)
			}
		}
	}
}
