// Package provider defines the transport boundary between the runtime and a
// remote model endpoint. Concrete transports live under modules/provider and
// register themselves as core modules.
package provider

import "context"

// Provider is the interface for communicating with a model endpoint.
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// Stream sends a completion request and returns a channel of raw chunk
	// payloads in the {"choices":[{"delta":{...}}]} shape. Initial connection
	// errors are returned directly. Mid-stream errors are delivered via
	// RawChunk.Err. The channel is closed when the stream ends or ctx is done.
	Stream(ctx context.Context, req CompletionRequest) (<-chan RawChunk, error)

	// ModelName returns the identifier of the underlying model.
	ModelName() string
}

// KeySource resolves the API key of a provider identity at request time.
// *security.CredentialStore satisfies it.
type KeySource interface {
	Get(name string) (string, bool)
}
