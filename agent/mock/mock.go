// Package mock provides a scripted Agent for tests.
package mock

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/tailored-agentic-units/autods/core/protocol"
	"github.com/tailored-agentic-units/autods/core/response"
)

// ErrExhausted is returned once every scripted response has been consumed.
var ErrExhausted = errors.New("mock agent has no more responses")

type step struct {
	resp *response.ToolsResponse
	err  error
}

// MockAgent replays scripted responses in order and records every request.
type MockAgent struct {
	id    string
	name  string
	model string

	mu       sync.Mutex
	steps    []step
	requests [][]protocol.Message
	tools    [][]protocol.Tool
}

// Option configures a MockAgent.
type Option func(*MockAgent)

// WithID sets the agent id.
func WithID(id string) Option {
	return func(m *MockAgent) { m.id = id }
}

// WithName sets the agent name.
func WithName(name string) Option {
	return func(m *MockAgent) { m.name = name }
}

// WithResponses scripts the replies, consumed one per call.
func WithResponses(resps ...*response.ToolsResponse) Option {
	return func(m *MockAgent) {
		for _, r := range resps {
			m.steps = append(m.steps, step{resp: r})
		}
	}
}

// NewMockAgent creates a MockAgent.
func NewMockAgent(opts ...Option) *MockAgent {
	m := &MockAgent{id: "mock-agent", name: "mock", model: "mock-model"}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Reply scripts a response.
func (m *MockAgent) Reply(content string, calls ...protocol.ToolCall) *MockAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, step{resp: response.NewToolsResponse(m.model, content, calls...)})
	return m
}

// Fail scripts an error.
func (m *MockAgent) Fail(err error) *MockAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, step{err: err})
	return m
}

func (m *MockAgent) ID() string       { return m.id }
func (m *MockAgent) Name() string     { return m.name }
func (m *MockAgent) Model() string    { return m.model }
func (m *MockAgent) Provider() string { return "mock" }

func (m *MockAgent) Tools(ctx context.Context, messages []protocol.Message, tools []protocol.Tool, opts ...map[string]any) (*response.ToolsResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, append([]protocol.Message(nil), messages...))
	m.tools = append(m.tools, tools)

	if len(m.steps) == 0 {
		return nil, ErrExhausted
	}
	next := m.steps[0]
	m.steps = m.steps[1:]
	return next.resp, next.err
}

// ToolsStream replays the next response, delivering its content word by word.
func (m *MockAgent) ToolsStream(ctx context.Context, messages []protocol.Message, tools []protocol.Tool, onDelta func(string), opts ...map[string]any) (*response.ToolsResponse, error) {
	resp, err := m.Tools(ctx, messages, tools, opts...)
	if err != nil || onDelta == nil {
		return resp, err
	}

	for _, word := range strings.SplitAfter(resp.Content(), " ") {
		if word != "" {
			onDelta(word)
		}
	}
	return resp, nil
}

// Calls returns the number of requests received.
func (m *MockAgent) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Request returns the messages of the i-th request.
func (m *MockAgent) Request(i int) []protocol.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.requests) {
		return nil
	}
	return m.requests[i]
}

// AdvertisedTools returns the tools sent with the i-th request.
func (m *MockAgent) AdvertisedTools(i int) []protocol.Tool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.tools) {
		return nil
	}
	return m.tools[i]
}

// ExecuteCode builds an execute_code tool call.
func ExecuteCode(id, code string) protocol.ToolCall {
	args, _ := json.Marshal(map[string]string{
		"code":        code,
		"description": "run code",
	})
	return protocol.NewToolCall(id, "execute_code", string(args))
}
