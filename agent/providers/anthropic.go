package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tailored-agentic-units/autods/core/config"
	"github.com/tailored-agentic-units/autods/core/protocol"
	"github.com/tailored-agentic-units/autods/core/response"
)

const defaultAnthropicMaxTokens = 4096

// Anthropic talks to the Anthropic messages API.
type Anthropic struct {
	*BaseProvider
	client anthropic.Client
}

// NewAnthropic creates an Anthropic provider.
func NewAnthropic(cfg *config.ProviderConfig) *Anthropic {
	opts := []option.RequestOption{option.WithAPIKey(cfg.ResolveAPIKey())}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if retries, ok := floatOption(cfg.Options, "max_retries"); ok {
		opts = append(opts, option.WithMaxRetries(int(retries)))
	}

	return &Anthropic{
		BaseProvider: NewBaseProvider(cfg.Name, cfg.BaseURL),
		client:       anthropic.NewClient(opts...),
	}
}

func (p *Anthropic) Tools(ctx context.Context, data *ToolsData) (*response.ToolsResponse, error) {
	params, err := p.params(data)
	if err != nil {
		return nil, err
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic completion failed: %w", err)
	}
	return fromAnthropic(msg), nil
}

func (p *Anthropic) ToolsStream(ctx context.Context, data *ToolsData, onDelta func(string)) (*response.ToolsResponse, error) {
	params, err := p.params(data)
	if err != nil {
		return nil, err
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	msg := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return nil, fmt.Errorf("anthropic stream failed: %w", err)
		}

		if onDelta == nil {
			continue
		}
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
				onDelta(text.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic stream failed: %w", err)
	}

	return fromAnthropic(&msg), nil
}

func (p *Anthropic) params(data *ToolsData) (anthropic.MessageNewParams, error) {
	system, messages := toAnthropicMessages(data.Messages)
	if len(messages) == 0 {
		return anthropic.MessageNewParams{}, ErrNoMessages
	}

	maxTokens, ok := data.MaxTokens()
	if !ok {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(data.Model),
		MaxTokens: maxTokens,
		Messages:  messages,
		System:    system,
	}

	if t, ok := data.Temperature(); ok {
		params.Temperature = anthropic.Float(t)
	}

	if len(data.Tools) > 0 {
		params.Tools = toAnthropicTools(data.Tools)
		if data.ToolChoice() == "auto" {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
		}
	}

	return params, nil
}

// toAnthropicMessages splits out system text and folds consecutive user
// turns together, so all tool results answering one assistant turn travel
// in a single user message.
func toAnthropicMessages(messages []protocol.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	ids := structuredCallIDs(messages)

	var system []anthropic.TextBlockParam
	var out []anthropic.MessageParam

	appendUser := func(block anthropic.ContentBlockParamUnion) {
		if n := len(out); n > 0 && out[n-1].Role == anthropic.MessageParamRoleUser {
			out[n-1].Content = append(out[n-1].Content, block)
			return
		}
		out = append(out, anthropic.NewUserMessage(block))
	}

	for _, m := range messages {
		switch m.Role {
		case protocol.RoleSystem:
			if text := strings.TrimSpace(m.Text()); text != "" {
				system = append(system, anthropic.TextBlockParam{Text: text})
			}
		case protocol.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if text := m.Text(); text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(text))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, toolInput(tc.Arguments), tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case protocol.RoleTool:
			if isNativeObservation(m, ids) {
				appendUser(anthropic.NewToolResultBlock(m.ToolCallID, m.Text(), false))
			} else {
				appendUser(anthropic.NewTextBlock(observationPrefix + m.Text()))
			}
		default:
			if text := m.Text(); text != "" {
				appendUser(anthropic.NewTextBlock(text))
			}
		}
	}

	return system, out
}

func toolInput(arguments string) any {
	var input map[string]any
	if err := json.Unmarshal([]byte(arguments), &input); err != nil || input == nil {
		return map[string]any{}
	}
	return input
}

func toAnthropicTools(tools []protocol.Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{
			Properties: t.Parameters["properties"],
		}
		switch required := t.Parameters["required"].(type) {
		case []string:
			schema.Required = required
		case []any:
			for _, r := range required {
				if name, ok := r.(string); ok {
					schema.Required = append(schema.Required, name)
				}
			}
		}

		tool := &anthropic.ToolParam{
			Name:        t.Name,
			InputSchema: schema,
		}
		if t.Description != "" {
			tool.Description = anthropic.String(t.Description)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: tool})
	}
	return out
}

func fromAnthropic(msg *anthropic.Message) *response.ToolsResponse {
	choice := response.ChoiceMessage{Role: string(protocol.RoleAssistant)}

	var text []string
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text = append(text, block.Text)
		case "tool_use":
			args := "{}"
			if len(block.Input) > 0 {
				args = string(block.Input)
			}
			choice.ToolCalls = append(choice.ToolCalls, protocol.NewToolCall(block.ID, block.Name, args))
		}
	}
	choice.Content = strings.Join(text, "\n")

	finish := "stop"
	if msg.StopReason == anthropic.StopReasonToolUse {
		finish = "tool_calls"
	}

	input, output := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	return &response.ToolsResponse{
		ID:     msg.ID,
		Object: "chat.completion",
		Model:  string(msg.Model),
		Choices: []response.Choice{{
			Message:      choice,
			FinishReason: finish,
		}},
		Usage: &response.TokenUsage{
			PromptTokens:     input,
			CompletionTokens: output,
			TotalTokens:      input + output,
		},
	}
}
