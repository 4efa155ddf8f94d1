package openai

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/voidKandy/espionox-sub001/internal/provider"
)

// scannerBufferSize is the max token size for the SSE line scanner.
// Default bufio.Scanner limit is ~64 KiB which is too small for long deltas.
const scannerBufferSize = 1 * 1024 * 1024 // 1 MB

// sendChunk sends a RawChunk on ch, respecting context cancellation.
// Returns false if the context was cancelled (caller should return).
func sendChunk(ctx context.Context, ch chan<- provider.RawChunk, chunk provider.RawChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// readStream reads an SSE stream from body and forwards every data payload
// verbatim on ch. The channel is closed when the stream ends, either
// normally ([DONE]), on error, or when ctx is cancelled. body is always
// closed.
func readStream(ctx context.Context, body io.ReadCloser, ch chan<- provider.RawChunk) {
	defer close(ch)
	defer func() { _ = body.Close() }()

	// Close body on context cancellation to unblock the scanner.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = body.Close()
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, scannerBufferSize), scannerBufferSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			sendChunk(ctx, ch, provider.RawChunk{Err: ctx.Err()})
			return
		}

		line := scanner.Text()

		// SSE: lines starting with ":" are comments.
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return
		}

		// Usage-only frames carry no choices and say nothing about the turn.
		if gjson.Valid(data) && gjson.Get(data, "choices.#").Int() == 0 && gjson.Get(data, "usage").Exists() {
			continue
		}

		if !sendChunk(ctx, ch, provider.RawChunk{Data: []byte(data)}) {
			return
		}
	}

	// If scanner stopped due to context cancellation (body closed), report context error.
	if ctx.Err() != nil {
		sendChunk(ctx, ch, provider.RawChunk{Err: ctx.Err()})
		return
	}

	if err := scanner.Err(); err != nil {
		sendChunk(ctx, ch, provider.RawChunk{Err: mapConnectionError(err)})
	}
}
