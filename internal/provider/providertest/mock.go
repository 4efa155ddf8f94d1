// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/voidKandy/espionox-sub001/internal/provider"
)

// MockProvider is a configurable test double for provider.Provider.
// Set the Func fields to control behavior. Unset funcs panic on call.
// All methods are safe for concurrent use.
type MockProvider struct {
	CompleteFunc  func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)
	StreamFunc    func(ctx context.Context, req provider.CompletionRequest) (<-chan provider.RawChunk, error)
	ModelNameFunc func() string

	mu            sync.Mutex
	CompleteCalls int
	StreamCalls   int
	LastRequest   provider.CompletionRequest
}

// Complete delegates to CompleteFunc and tracks call count.
func (m *MockProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	m.mu.Lock()
	m.CompleteCalls++
	m.LastRequest = req
	m.mu.Unlock()
	return m.CompleteFunc(ctx, req)
}

// Stream delegates to StreamFunc and tracks call count.
func (m *MockProvider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.RawChunk, error) {
	m.mu.Lock()
	m.StreamCalls++
	m.LastRequest = req
	m.mu.Unlock()
	return m.StreamFunc(ctx, req)
}

// ModelName delegates to ModelNameFunc, defaulting to "mock".
func (m *MockProvider) ModelName() string {
	if m.ModelNameFunc == nil {
		return "mock"
	}
	return m.ModelNameFunc()
}

// Calls returns the Complete and Stream call counts.
func (m *MockProvider) Calls() (complete, stream int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CompleteCalls, m.StreamCalls
}

// Request returns the most recent request.
func (m *MockProvider) Request() provider.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.LastRequest
}

// DeltaChunk builds the chunk payload carrying content.
func DeltaChunk(content string) []byte {
	return fmt.Appendf(nil, `{"choices":[{"delta":{"content":%s}}]}`, strconv.Quote(content))
}

// StopChunk is the end-of-turn payload.
func StopChunk() []byte {
	return []byte(`{"choices":[{"delta":{}}]}`)
}

// Deltas returns a StreamFunc that emits one chunk per delta followed by
// the end-of-turn chunk.
func Deltas(deltas ...string) func(context.Context, provider.CompletionRequest) (<-chan provider.RawChunk, error) {
	return func(ctx context.Context, _ provider.CompletionRequest) (<-chan provider.RawChunk, error) {
		payloads := make([][]byte, 0, len(deltas)+1)
		for _, d := range deltas {
			payloads = append(payloads, DeltaChunk(d))
		}
		payloads = append(payloads, StopChunk())
		return Payloads(ctx, payloads...), nil
	}
}

// Payloads streams the given raw payloads on a fresh channel.
func Payloads(ctx context.Context, payloads ...[]byte) <-chan provider.RawChunk {
	ch := make(chan provider.RawChunk)
	go func() {
		defer close(ch)
		for _, p := range payloads {
			select {
			case ch <- provider.RawChunk{Data: p}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// Hang returns a StreamFunc whose channel never yields and closes only
// once ctx is done.
func Hang() func(context.Context, provider.CompletionRequest) (<-chan provider.RawChunk, error) {
	return func(ctx context.Context, _ provider.CompletionRequest) (<-chan provider.RawChunk, error) {
		ch := make(chan provider.RawChunk)
		go func() {
			<-ctx.Done()
			close(ch)
		}()
		return ch, nil
	}
}

// Interface guard.
var _ provider.Provider = (*MockProvider)(nil)
