// Package response holds the provider-neutral shape of a model reply.
package response

import (
	"encoding/json"
	"fmt"

	"github.com/tailored-agentic-units/autods/core/protocol"
)

// ChoiceMessage is the assistant message carried by a Choice. Content may be
// empty when ToolCalls is populated.
type ChoiceMessage struct {
	Role      string              `json:"role"`
	Content   string              `json:"content"`
	ToolCalls []protocol.ToolCall `json:"tool_calls,omitempty"`
}

// Choice is one candidate completion.
type Choice struct {
	Index        int           `json:"index"`
	Message      ChoiceMessage `json:"message"`
	FinishReason string        `json:"finish_reason,omitempty"`
}

// TokenUsage reports token consumption for a request.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ToolsResponse is the reply to a tool-enabled completion request, in the
// OpenAI chat completion layout. Providers with other wire formats convert
// into it.
type ToolsResponse struct {
	ID      string      `json:"id,omitempty"`
	Object  string      `json:"object,omitempty"`
	Created int64       `json:"created,omitempty"`
	Model   string      `json:"model"`
	Choices []Choice    `json:"choices"`
	Usage   *TokenUsage `json:"usage,omitempty"`
}

// NewToolsResponse builds a single-choice response. Used by providers and
// test doubles.
func NewToolsResponse(model, content string, calls ...protocol.ToolCall) *ToolsResponse {
	finish := "stop"
	if len(calls) > 0 {
		finish = "tool_calls"
	}
	return &ToolsResponse{
		Model: model,
		Choices: []Choice{{
			Message: ChoiceMessage{
				Role:      string(protocol.RoleAssistant),
				Content:   content,
				ToolCalls: calls,
			},
			FinishReason: finish,
		}},
	}
}

// Message returns the first choice as a conversation message. ok is false
// when the response has no choices.
func (r *ToolsResponse) Message() (msg protocol.Message, ok bool) {
	if r == nil || len(r.Choices) == 0 {
		return protocol.Message{}, false
	}
	c := r.Choices[0].Message
	msg = protocol.Message{
		Role:      protocol.RoleAssistant,
		Content:   c.Content,
		ToolCalls: c.ToolCalls,
	}
	return msg, true
}

// Content returns the text of the first choice.
func (r *ToolsResponse) Content() string {
	msg, ok := r.Message()
	if !ok {
		return ""
	}
	return msg.Text()
}

// ParseTools parses a tools response from JSON bytes.
func ParseTools(body []byte) (*ToolsResponse, error) {
	var response ToolsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse tools response: %w", err)
	}
	return &response, nil
}
