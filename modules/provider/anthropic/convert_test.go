package anthropic

import (
	"encoding/json"
	"testing"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/voidKandy/espionox-sub001/internal/provider"
	"github.com/voidKandy/espionox-sub001/pkg/message"
)

func TestSplitSystemMessages(t *testing.T) {
	tests := []struct {
		name       string
		msgs       []message.Wire
		wantSystem int
		wantRest   int
	}{
		{"leading system", []message.Wire{
			{Role: "system", Content: "be brief"},
			{Role: "system", Content: "summary"},
			{Role: "user", Content: "hi"},
		}, 2, 1},
		{"no system", []message.Wire{{Role: "user", Content: "hi"}}, 0, 1},
		{"all system", []message.Wire{{Role: "system", Content: "a"}, {Role: "system", Content: "b"}}, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			system, rest := splitSystemMessages(tt.msgs)
			if len(system) != tt.wantSystem || len(rest) != tt.wantRest {
				t.Errorf("split = %d/%d, want %d/%d", len(system), len(rest), tt.wantSystem, tt.wantRest)
			}
		})
	}
}

func TestConvertMessages_Roles(t *testing.T) {
	msgs := []message.Wire{
		{Role: "user", Content: "Hello"},
		{Role: "assistant", Content: "Hi there"},
		{Role: "system", Content: "file contents"},
		{Role: "critic", Content: "too long"},
	}

	result := convertMessages(msgs)

	if len(result) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(result))
	}
	wantRoles := []sdkanthropic.MessageParamRole{
		sdkanthropic.MessageParamRoleUser,
		sdkanthropic.MessageParamRoleAssistant,
		sdkanthropic.MessageParamRoleUser,
		sdkanthropic.MessageParamRoleUser,
	}
	for i, want := range wantRoles {
		if result[i].Role != want {
			t.Errorf("message %d role = %q, want %q", i, result[i].Role, want)
		}
	}
	if got := result[2].Content[0].OfText.Text; got != "[system] file contents" {
		t.Errorf("mid-transcript system text = %q", got)
	}
	if got := result[3].Content[0].OfText.Text; got != "[critic] too long" {
		t.Errorf("tagged role text = %q", got)
	}
}

func TestConvertResponse_JoinsText(t *testing.T) {
	msg := &sdkanthropic.Message{
		Content: []sdkanthropic.ContentBlockUnion{
			textBlock("Hello"),
			textBlock("world"),
		},
		StopReason: sdkanthropic.StopReasonEndTurn,
		Usage: sdkanthropic.Usage{
			InputTokens:  10,
			OutputTokens: 5,
		},
	}

	resp := convertResponse(msg)

	if resp.Content != "Hello\nworld" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.FinishReason != provider.FinishReasonStop {
		t.Errorf("finish reason = %q", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("total tokens = %d, want 15", resp.Usage.TotalTokens)
	}
}

func TestConvertStopReason(t *testing.T) {
	tests := []struct {
		in   sdkanthropic.StopReason
		want provider.FinishReason
	}{
		{sdkanthropic.StopReasonEndTurn, provider.FinishReasonStop},
		{sdkanthropic.StopReasonStopSequence, provider.FinishReasonStop},
		{sdkanthropic.StopReasonMaxTokens, provider.FinishReasonLength},
		{sdkanthropic.StopReasonRefusal, provider.FinishReasonFiltering},
		{"", provider.FinishReasonStop},
	}
	for _, tt := range tests {
		if got := convertStopReason(tt.in); got != tt.want {
			t.Errorf("convertStopReason(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConvertRequest(t *testing.T) {
	cfg := &Config{Model: "claude-sonnet-4-5-20250929", MaxTokens: 4096}
	temp := 0.2

	params := convertRequest(provider.CompletionRequest{
		Messages: []message.Wire{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "Hello"},
		},
	}, cfg)
	if params.MaxTokens != 4096 || string(params.Model) != cfg.Model {
		t.Errorf("defaults not applied: %d %q", params.MaxTokens, params.Model)
	}
	if len(params.System) != 1 || len(params.Messages) != 1 {
		t.Errorf("system/messages = %d/%d", len(params.System), len(params.Messages))
	}

	params = convertRequest(provider.CompletionRequest{
		Messages:    []message.Wire{{Role: "user", Content: "Hello"}},
		MaxTokens:   8192,
		Temperature: &temp,
	}, cfg)
	if params.MaxTokens != 8192 {
		t.Errorf("max_tokens override = %d", params.MaxTokens)
	}
	if !params.Temperature.Valid() || params.Temperature.Value != 0.2 {
		t.Errorf("temperature not forwarded")
	}
}

func textBlock(text string) sdkanthropic.ContentBlockUnion {
	raw := `{"type":"text","text":` + jsonString(text) + `}`
	var block sdkanthropic.ContentBlockUnion
	_ = json.Unmarshal([]byte(raw), &block)
	return block
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
