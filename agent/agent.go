// Package agent is the model client: it sends the conversation and the tool
// schema to a configured provider and returns the assistant reply.
//
//	a, err := agent.New(&cfg.Agent)
//	resp, err := a.Tools(ctx, messages, parser.Tools())
package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/autods/agent/providers"
	"github.com/tailored-agentic-units/autods/core/config"
	"github.com/tailored-agentic-units/autods/core/protocol"
	"github.com/tailored-agentic-units/autods/core/response"
)

// Agent is a configured model endpoint.
type Agent interface {
	ID() string
	Name() string
	Model() string
	Provider() string

	// Tools sends messages with the advertised tools. A reply may carry
	// text, tool calls, or both; content is empty when the model only
	// called tools. opts override configured request options.
	Tools(ctx context.Context, messages []protocol.Message, tools []protocol.Tool, opts ...map[string]any) (*response.ToolsResponse, error)

	// ToolsStream is Tools with incremental text delivered to onDelta.
	ToolsStream(ctx context.Context, messages []protocol.Message, tools []protocol.Tool, onDelta func(string), opts ...map[string]any) (*response.ToolsResponse, error)
}

type agent struct {
	id       string
	name     string
	model    string
	options  map[string]any
	provider providers.Provider
}

// New creates an Agent from configuration. Request options are layered:
// model options, then the options of the tools capability, then per-call
// options.
func New(cfg *config.AgentConfig) (Agent, error) {
	if cfg.Model == nil || cfg.Model.Name == "" {
		return nil, ErrNoModel
	}

	p, err := providers.New(cfg.Provider)
	if err != nil {
		return nil, err
	}

	options := make(map[string]any)
	for k, v := range cfg.Model.Options {
		options[k] = v
	}
	for k, v := range cfg.Model.Capabilities[string(protocol.Tools)] {
		options[k] = v
	}

	name := cfg.Name
	if name == "" {
		name = cfg.Model.Name
	}

	return &agent{
		id:       uuid.NewString(),
		name:     name,
		model:    cfg.Model.Name,
		options:  options,
		provider: p,
	}, nil
}

func (a *agent) ID() string       { return a.id }
func (a *agent) Name() string     { return a.name }
func (a *agent) Model() string    { return a.model }
func (a *agent) Provider() string { return a.provider.Name() }

func (a *agent) Tools(ctx context.Context, messages []protocol.Message, tools []protocol.Tool, opts ...map[string]any) (*response.ToolsResponse, error) {
	resp, err := a.provider.Tools(ctx, a.data(messages, tools, opts))
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", a.name, err)
	}
	return resp, nil
}

func (a *agent) ToolsStream(ctx context.Context, messages []protocol.Message, tools []protocol.Tool, onDelta func(string), opts ...map[string]any) (*response.ToolsResponse, error) {
	resp, err := a.provider.ToolsStream(ctx, a.data(messages, tools, opts), onDelta)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", a.name, err)
	}
	return resp, nil
}

func (a *agent) data(messages []protocol.Message, tools []protocol.Tool, opts []map[string]any) *providers.ToolsData {
	options := make(map[string]any, len(a.options))
	for k, v := range a.options {
		options[k] = v
	}
	for _, o := range opts {
		for k, v := range o {
			options[k] = v
		}
	}

	return &providers.ToolsData{
		Model:    a.model,
		Messages: messages,
		Tools:    tools,
		Options:  options,
	}
}
