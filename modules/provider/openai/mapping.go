package openai

import (
	"github.com/voidKandy/espionox-sub001/internal/provider"
	"github.com/voidKandy/espionox-sub001/pkg/message"
)

// --- OpenAI API request/response types (unexported, serialization only) ---

type chatRequest struct {
	Model       string         `json:"model"`
	Messages    []message.Wire `json:"messages"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	Stream      bool           `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Message      message.Wire `json:"message"`
	FinishReason *string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// fromResponse converts an OpenAI API response to a provider CompletionResponse.
func fromResponse(resp *chatResponse) provider.CompletionResponse {
	var cr provider.CompletionResponse
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		cr.Content = choice.Message.Content
		cr.FinishReason = mapFinishReason(choice.FinishReason)
	}
	cr.Usage = provider.TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	return cr
}

// mapFinishReason converts an OpenAI finish_reason string to a provider FinishReason.
func mapFinishReason(reason *string) provider.FinishReason {
	if reason == nil {
		return ""
	}
	switch *reason {
	case "stop":
		return provider.FinishReasonStop
	case "length":
		return provider.FinishReasonLength
	case "content_filter":
		return provider.FinishReasonFiltering
	default:
		return provider.FinishReason(*reason)
	}
}
