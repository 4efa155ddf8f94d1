package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voidKandy/espionox-sub001/internal/provider"
	"github.com/voidKandy/espionox-sub001/internal/security/securitytest"
	"github.com/voidKandy/espionox-sub001/internal/stream"
	"github.com/voidKandy/espionox-sub001/pkg/message"
)

func newTestProvider(t *testing.T, handler http.Handler) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &Provider{
		config: Config{
			Model:   "gpt-4o",
			BaseURL: srv.URL,
		},
		keys:         securitytest.NewTestCredentialStore(ModuleID, "sk-test"),
		client:       srv.Client(),
		streamClient: srv.Client(),
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

func readRequestBody(t *testing.T, r *http.Request) chatRequest {
	t.Helper()
	body, _ := io.ReadAll(r.Body)
	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Errorf("invalid request body: %v", err)
	}
	return req
}

func writeSSE(t *testing.T, w http.ResponseWriter, chunks []string) {
	t.Helper()
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)

	for _, c := range chunks {
		if _, err := w.Write([]byte(c + "\n\n")); err != nil {
			t.Errorf("failed to write SSE chunk: %v", err)
			return
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

func strPtr(s string) *string { return &s }

var greeting = provider.CompletionRequest{
	Messages: []message.Wire{{Role: "system", Content: "be brief"}, {Role: "user", Content: "hi"}},
}

func TestComplete_Success(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Error("missing authorization header")
		}
		req := readRequestBody(t, r)
		if req.Model != "gpt-4o" || req.Stream {
			t.Errorf("request = %+v", req)
		}
		if len(req.Messages) != 2 || req.Messages[1].Content != "hi" {
			t.Errorf("messages = %+v", req.Messages)
		}
		writeJSON(t, w, chatResponse{
			Choices: []chatChoice{{
				Message:      message.Wire{Role: "assistant", Content: "Hello!"},
				FinishReason: strPtr("stop"),
			}},
			Usage: chatUsage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7},
		})
	}))

	resp, err := p.Complete(context.Background(), greeting)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Hello!" || resp.FinishReason != provider.FinishReasonStop || resp.Usage.TotalTokens != 7 {
		t.Errorf("response = %+v", resp)
	}
}

func TestComplete_HTTPErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limit", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, provider.ErrRateLimit},
		{"auth", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, provider.ErrAuth},
		{"server", http.StatusBadGateway, `upstream`, provider.ErrProviderDown},
		{"context", http.StatusBadRequest, `{"error":{"message":"context_length_exceeded"}}`, provider.ErrContextLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			_, err := p.Complete(context.Background(), greeting)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStream_RawChunksThroughDecoder(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !readRequestBody(t, r).Stream {
			t.Error("stream should be true")
		}
		writeSSE(t, w, []string{
			`data: {"choices":[{"delta":{"role":"assistant","content":""}}]}`,
			`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
			`data: {"choices":[{"delta":{"content":"lo"}}]}`,
			`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
			`data: [DONE]`,
		})
	}))

	ch, err := p.Stream(context.Background(), greeting)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	var deltas []string
	text, err := stream.Collect(context.Background(), ch, func(d string) { deltas = append(deltas, d) })
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if text != "Hello" || len(deltas) != 2 {
		t.Errorf("text = %q, deltas = %v", text, deltas)
	}
}

func TestStream_InitialHTTPError(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	if _, err := p.Stream(context.Background(), greeting); !errors.Is(err, provider.ErrProviderDown) {
		t.Errorf("err = %v, want ErrProviderDown", err)
	}
}

func TestRequest_ReadsKeyPerCall(t *testing.T) {
	var seen []string
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		writeJSON(t, w, chatResponse{Choices: []chatChoice{{Message: message.Wire{Content: "ok"}}}})
	}))
	store := securitytest.NewTestCredentialStore(ModuleID, "sk-one")
	p.keys = store

	if _, err := p.Complete(context.Background(), greeting); err != nil {
		t.Fatal(err)
	}
	store.Set(ModuleID, "sk-two")
	if _, err := p.Complete(context.Background(), greeting); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[0] != "Bearer sk-one" || seen[1] != "Bearer sk-two" {
		t.Errorf("authorization headers = %v", seen)
	}

	store.Delete(ModuleID)
	if _, err := p.Complete(context.Background(), greeting); !errors.Is(err, provider.ErrMissingKey) {
		t.Errorf("err = %v, want ErrMissingKey", err)
	}
}
