package stream_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voidKandy/espionox-sub001/internal/provider"
	"github.com/voidKandy/espionox-sub001/internal/provider/providertest"
	"github.com/voidKandy/espionox-sub001/internal/stream"
)

func TestCollect_AssemblesDeltas(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ch := providertest.Payloads(ctx,
		providertest.DeltaChunk("He"),
		providertest.DeltaChunk("llo"),
		providertest.DeltaChunk("!"),
		providertest.StopChunk(),
	)

	var seen []string
	text, err := stream.Collect(ctx, ch, func(d string) { seen = append(seen, d) })
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if text != "Hello!" {
		t.Errorf("text = %q, want %q", text, "Hello!")
	}
	if len(seen) != 3 {
		t.Errorf("onDelta called %d times, want 3", len(seen))
	}
}

func TestCollect_ClosedChannelEndsTurn(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ch := providertest.Payloads(ctx, providertest.DeltaChunk("partial"))

	text, err := stream.Collect(ctx, ch, nil)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if text != "partial" {
		t.Errorf("text = %q", text)
	}
}

func TestCollect_TransportError(t *testing.T) {
	t.Parallel()

	ch := make(chan provider.RawChunk, 2)
	ch <- provider.RawChunk{Data: providertest.DeltaChunk("x")}
	ch <- provider.RawChunk{Err: provider.ErrProviderDown}
	close(ch)

	_, err := stream.Collect(context.Background(), ch, nil)
	if !errors.Is(err, provider.ErrProviderDown) {
		t.Fatalf("err = %v, want ErrProviderDown", err)
	}
}

func TestCollect_MalformedIsFatal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ch := providertest.Payloads(ctx, providertest.DeltaChunk("a"), []byte("{oops"), providertest.DeltaChunk("b"))

	text, err := stream.Collect(ctx, ch, nil)
	if !errors.Is(err, stream.ErrMalformedChunk) {
		t.Fatalf("err = %v, want ErrMalformedChunk", err)
	}
	if text != "" {
		t.Errorf("partial text returned on failure: %q", text)
	}
}

func TestCollect_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ch, _ := providertest.Hang()(ctx, provider.CompletionRequest{})
	_, err := stream.Collect(ctx, ch, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}
