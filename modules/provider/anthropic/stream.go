package anthropic

import (
	"context"
	"encoding/json"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/voidKandy/espionox-sub001/internal/provider"
)

const streamBufferSize = 16

// Wire shapes of the normalized chunk.
type (
	chunkDelta struct {
		Content *string `json:"content,omitempty"`
	}
	chunkChoice struct {
		Delta chunkDelta `json:"delta"`
	}
	chunk struct {
		Choices []chunkChoice `json:"choices"`
	}
)

func encodeChunk(d chunkDelta) []byte {
	// Marshalling these fixed types cannot fail.
	data, _ := json.Marshal(chunk{Choices: []chunkChoice{{Delta: d}}})
	return data
}

// textChunk is a Working chunk carrying text.
func textChunk(text string) []byte {
	return encodeChunk(chunkDelta{Content: &text})
}

// stopChunk has no content field and ends the turn.
func stopChunk() []byte {
	return encodeChunk(chunkDelta{})
}

// Stream sends a streaming request and returns normalized chunk payloads.
// The first event is read before returning so that connection, auth and
// 4xx errors reach the caller directly; later errors arrive as RawChunk.Err.
func (a *Anthropic) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.RawChunk, error) {
	key, err := a.keyOption()
	if err != nil {
		return nil, err
	}

	stream := a.client.Messages.NewStreaming(ctx, convertRequest(req, &a.config), key)

	if !stream.Next() {
		err := stream.Err()
		_ = stream.Close()
		if err != nil {
			return nil, mapError(err)
		}
		ch := make(chan provider.RawChunk)
		close(ch)
		return ch, nil
	}
	first := stream.Current()

	ch := make(chan provider.RawChunk, streamBufferSize)
	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }()
		pump(ctx, stream, first, ch)
	}()
	return ch, nil
}

func pump(
	ctx context.Context,
	stream *ssestream.Stream[sdkanthropic.MessageStreamEventUnion],
	first sdkanthropic.MessageStreamEventUnion,
	ch chan<- provider.RawChunk,
) {
	if done := forward(ctx, first, ch); done {
		return
	}
	for stream.Next() {
		if ctx.Err() != nil {
			return
		}
		if done := forward(ctx, stream.Current(), ch); done {
			return
		}
	}
	if err := stream.Err(); err != nil {
		emit(ctx, ch, provider.RawChunk{Err: mapError(err)})
	}
}

// forward translates one event and reports whether the turn has ended.
// Events without text, such as message_start and pings, are skipped.
func forward(ctx context.Context, event sdkanthropic.MessageStreamEventUnion, ch chan<- provider.RawChunk) bool {
	switch ev := event.AsAny().(type) {
	case sdkanthropic.ContentBlockDeltaEvent:
		if delta, ok := ev.Delta.AsAny().(sdkanthropic.TextDelta); ok && delta.Text != "" {
			emit(ctx, ch, provider.RawChunk{Data: textChunk(delta.Text)})
		}
	case sdkanthropic.MessageStopEvent:
		emit(ctx, ch, provider.RawChunk{Data: stopChunk()})
		return true
	}
	return false
}

func emit(ctx context.Context, ch chan<- provider.RawChunk, c provider.RawChunk) {
	select {
	case ch <- c:
	case <-ctx.Done():
	}
}
