package anthropic

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/voidKandy/espionox-sub001/internal/provider"
)

// Complete sends a synchronous completion request to the Anthropic Messages API.
func (a *Anthropic) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	key, err := a.keyOption()
	if err != nil {
		return provider.CompletionResponse{}, err
	}

	msg, err := a.client.Messages.New(ctx, convertRequest(req, &a.config),
		key, option.WithRequestTimeout(a.config.Timeout))
	if err != nil {
		return provider.CompletionResponse{}, mapError(err)
	}
	return convertResponse(msg), nil
}
