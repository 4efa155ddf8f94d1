package anthropic

import (
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/voidKandy/espionox-sub001/internal/provider"
	"github.com/voidKandy/espionox-sub001/pkg/message"
)

// convertRequest builds Messages API parameters. Leading system messages
// become the System parameter.
func convertRequest(req provider.CompletionRequest, cfg *Config) sdkanthropic.MessageNewParams {
	system, rest := splitSystemMessages(req.Messages)

	params := sdkanthropic.MessageNewParams{
		Model:     sdkanthropic.Model(cfg.Model),
		Messages:  convertMessages(rest),
		System:    system,
		MaxTokens: int64(cfg.MaxTokens),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}
	if req.Temperature != nil {
		params.Temperature = sdkanthropic.Float(*req.Temperature)
	}
	return params
}

func splitSystemMessages(msgs []message.Wire) ([]sdkanthropic.TextBlockParam, []message.Wire) {
	var system []sdkanthropic.TextBlockParam
	idx := 0
	for ; idx < len(msgs); idx++ {
		if msgs[idx].Role != message.RoleSystem.String() {
			break
		}
		system = append(system, sdkanthropic.TextBlockParam{Text: msgs[idx].Content})
	}
	return system, msgs[idx:]
}

// convertMessages maps the remaining turns. The Messages API only knows
// user and assistant: a system message after the first turn (a rendered
// file or error, say) is sent as a user turn carrying a role prefix, and
// so is any other role tag.
func convertMessages(msgs []message.Wire) []sdkanthropic.MessageParam {
	result := make([]sdkanthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case message.RoleAssistant.String():
			result = append(result, sdkanthropic.NewAssistantMessage(sdkanthropic.NewTextBlock(m.Content)))
		case message.RoleUser.String():
			result = append(result, sdkanthropic.NewUserMessage(sdkanthropic.NewTextBlock(m.Content)))
		default:
			result = append(result, sdkanthropic.NewUserMessage(sdkanthropic.NewTextBlock(tagged(m))))
		}
	}
	return result
}

func tagged(m message.Wire) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(m.Role)
	b.WriteString("] ")
	b.WriteString(m.Content)
	return b.String()
}

// convertResponse joins the text blocks of a Messages API response.
func convertResponse(msg *sdkanthropic.Message) provider.CompletionResponse {
	var parts []string
	for _, block := range msg.Content {
		if v, ok := block.AsAny().(sdkanthropic.TextBlock); ok {
			parts = append(parts, v.Text)
		}
	}

	return provider.CompletionResponse{
		Content:      strings.Join(parts, "\n"),
		FinishReason: convertStopReason(msg.StopReason),
		Usage: provider.TokenUsage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
}

func convertStopReason(reason sdkanthropic.StopReason) provider.FinishReason {
	switch reason {
	case sdkanthropic.StopReasonMaxTokens:
		return provider.FinishReasonLength
	case sdkanthropic.StopReasonRefusal:
		return provider.FinishReasonFiltering
	default:
		return provider.FinishReasonStop
	}
}
