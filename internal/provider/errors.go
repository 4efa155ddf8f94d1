package provider

import "errors"

// Sentinel errors for provider operations.
var (
	// ErrRateLimit indicates the provider returned a rate limit response.
	ErrRateLimit = errors.New("provider rate limited")

	// ErrContextLength indicates the request exceeded the model's context window.
	ErrContextLength = errors.New("context length exceeded")

	// ErrProviderDown indicates the provider is temporarily unavailable.
	ErrProviderDown = errors.New("provider unavailable")

	// ErrAuth indicates the provider rejected the credentials.
	ErrAuth = errors.New("provider authentication failed")

	// ErrMissingKey indicates no API key is registered for the provider.
	ErrMissingKey = errors.New("provider api key not set")
)

// IsRetryable reports whether the error is transient and the request
// can be retried after a delay.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderDown)
}
