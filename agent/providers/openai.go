package providers

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/tailored-agentic-units/autods/core/config"
	"github.com/tailored-agentic-units/autods/core/protocol"
	"github.com/tailored-agentic-units/autods/core/response"
)

// OpenAI talks to the chat completions API of OpenAI and of servers that
// mirror it (Ollama, DeepInfra, vLLM, OpenRouter).
type OpenAI struct {
	*BaseProvider
	client openai.Client
}

// NewOpenAI creates an OpenAI provider. An empty baseURL selects the
// OpenAI endpoint.
func NewOpenAI(cfg *config.ProviderConfig, baseURL string) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(cfg.ResolveAPIKey())}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if retries, ok := floatOption(cfg.Options, "max_retries"); ok {
		opts = append(opts, option.WithMaxRetries(int(retries)))
	}

	return &OpenAI{
		BaseProvider: NewBaseProvider(cfg.Name, baseURL),
		client:       openai.NewClient(opts...),
	}
}

func (p *OpenAI) Tools(ctx context.Context, data *ToolsData) (*response.ToolsResponse, error) {
	params, err := p.params(data)
	if err != nil {
		return nil, err
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%s completion failed: %w", p.Name(), err)
	}
	return fromOpenAI(completion)
}

func (p *OpenAI) ToolsStream(ctx context.Context, data *ToolsData, onDelta func(string)) (*response.ToolsResponse, error) {
	params, err := p.params(data)
	if err != nil {
		return nil, err
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if onDelta == nil {
			continue
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				onDelta(choice.Delta.Content)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("%s stream failed: %w", p.Name(), err)
	}

	return fromOpenAI(&acc.ChatCompletion)
}

func (p *OpenAI) params(data *ToolsData) (openai.ChatCompletionNewParams, error) {
	if len(data.Messages) == 0 {
		return openai.ChatCompletionNewParams{}, ErrNoMessages
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(data.Model),
		Messages: toOpenAIMessages(data.Messages),
	}

	if t, ok := data.Temperature(); ok {
		params.Temperature = openai.Float(t)
	}
	if n, ok := data.MaxTokens(); ok {
		params.MaxTokens = openai.Int(n)
	}

	if len(data.Tools) > 0 {
		params.Tools = toOpenAITools(data.Tools)
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String(data.ToolChoice()),
		}
	}

	return params, nil
}

func toOpenAIMessages(messages []protocol.Message) []openai.ChatCompletionMessageParamUnion {
	ids := structuredCallIDs(messages)
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case protocol.RoleSystem:
			out = append(out, openai.SystemMessage(m.Text()))
		case protocol.RoleAssistant:
			out = append(out, openAIAssistant(m))
		case protocol.RoleTool:
			if isNativeObservation(m, ids) {
				out = append(out, openai.ToolMessage(m.Text(), m.ToolCallID))
			} else {
				out = append(out, openai.UserMessage(observationPrefix+m.Text()))
			}
		default:
			out = append(out, openai.UserMessage(m.Text()))
		}
	}
	return out
}

func openAIAssistant(m protocol.Message) openai.ChatCompletionMessageParamUnion {
	msg := openai.ChatCompletionAssistantMessageParam{}
	if text := m.Text(); text != "" || len(m.ToolCalls) == 0 {
		msg.Content.OfString = openai.String(text)
	}

	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: tc.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}

	return openai.ChatCompletionMessageParamUnion{OfAssistant: &msg}
}

func toOpenAITools(tools []protocol.Tool) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		fn := shared.FunctionDefinitionParam{
			Name:       t.Name,
			Parameters: shared.FunctionParameters(t.Parameters),
		}
		if t.Description != "" {
			fn.Description = openai.String(t.Description)
		}
		out = append(out, openai.ChatCompletionToolParam{Function: fn})
	}
	return out
}

func fromOpenAI(c *openai.ChatCompletion) (*response.ToolsResponse, error) {
	if c == nil || len(c.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	resp := &response.ToolsResponse{
		ID:      c.ID,
		Object:  "chat.completion",
		Created: c.Created,
		Model:   c.Model,
		Usage: &response.TokenUsage{
			PromptTokens:     int(c.Usage.PromptTokens),
			CompletionTokens: int(c.Usage.CompletionTokens),
			TotalTokens:      int(c.Usage.TotalTokens),
		},
	}

	for i, choice := range c.Choices {
		msg := response.ChoiceMessage{
			Role:    string(protocol.RoleAssistant),
			Content: choice.Message.Content,
		}
		for _, tc := range choice.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, protocol.NewToolCall(tc.ID, tc.Function.Name, tc.Function.Arguments))
		}
		resp.Choices = append(resp.Choices, response.Choice{
			Index:        i,
			Message:      msg,
			FinishReason: choice.FinishReason,
		})
	}
	return resp, nil
}
