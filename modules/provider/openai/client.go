package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/voidKandy/espionox-sub001/internal/provider"
)

// maxResponseSize is the maximum response body size (10 MB).
// Protects against OOM from malformed or huge responses.
const maxResponseSize = 10 * 1024 * 1024

// streamChannelBuffer is the buffer size for the streaming channel.
const streamChannelBuffer = 64

// buildChatRequest creates an OpenAI API chat request from a provider
// CompletionRequest, merging request-level overrides with config defaults.
func (p *Provider) buildChatRequest(req provider.CompletionRequest, stream bool) chatRequest {
	cr := chatRequest{
		Model:    p.config.Model,
		Messages: req.Messages,
		Stream:   stream,
	}

	switch {
	case req.MaxTokens > 0:
		cr.MaxTokens = req.MaxTokens
	case p.config.MaxTokens > 0:
		cr.MaxTokens = p.config.MaxTokens
	}

	switch {
	case req.Temperature != nil:
		cr.Temperature = req.Temperature
	case p.config.Temperature != nil:
		cr.Temperature = p.config.Temperature
	}

	return cr
}

// newHTTPRequest creates an authenticated HTTP request for the OpenAI API.
// The key is looked up on every call so rotated credentials apply at once.
func (p *Provider) newHTTPRequest(ctx context.Context, path string, payload any) (*http.Request, error) {
	key, ok := p.keys.Get(ModuleID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", provider.ErrMissingKey, ModuleID)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	url := p.config.BaseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+key)

	return httpReq, nil
}

// Complete sends a non-streaming completion request and returns the full response.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	httpReq, err := p.newHTTPRequest(ctx, "/chat/completions", p.buildChatRequest(req, false))
	if err != nil {
		return provider.CompletionResponse{}, err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return provider.CompletionResponse{}, mapConnectionError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return provider.CompletionResponse{}, fmt.Errorf("openai: read response: %w", err)
	}
	if httpErr := mapHTTPError(resp.StatusCode, body); httpErr != nil {
		return provider.CompletionResponse{}, httpErr
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return provider.CompletionResponse{}, fmt.Errorf("openai: unmarshal response: %w", err)
	}
	return fromResponse(&cr), nil
}

// Stream sends a streaming completion request and returns a channel of raw
// chunk payloads. Initial connection errors are returned directly.
// Mid-stream errors are delivered via RawChunk.Err.
func (p *Provider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.RawChunk, error) {
	httpReq, err := p.newHTTPRequest(ctx, "/chat/completions", p.buildChatRequest(req, true))
	if err != nil {
		return nil, err
	}

	resp, err := p.streamClient.Do(httpReq)
	if err != nil {
		return nil, mapConnectionError(err)
	}

	// Check for HTTP errors before starting the stream.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		return nil, mapHTTPError(resp.StatusCode, body)
	}

	ch := make(chan provider.RawChunk, streamChannelBuffer)
	go readStream(ctx, resp.Body, ch)

	return ch, nil
}
