package tools

import (
	"fmt"

	"github.com/tailored-agentic-units/autods/core/protocol"
)

// Structured reads native tool calls.
type Structured struct {
	registry *Registry
	opts     options
}

// NewStructured accepts execute_code, and execute_python as an alias.
func NewStructured(language string, opts ...Option) *Structured {
	r := NewRegistry()
	_ = r.Register(ExecuteCodeTool(language), DecodeExecuteCode)
	_ = r.Alias(ExecutePython, ExecuteCode)
	return NewStructuredWith(r, opts...)
}

// NewStructuredWith accepts the tools in r.
func NewStructuredWith(r *Registry, opts ...Option) *Structured {
	return &Structured{registry: r, opts: buildOptions(opts)}
}

func (s *Structured) Protocol() protocol.Protocol { return protocol.Tools }

func (s *Structured) Tools() []protocol.Tool { return s.registry.List() }

func (s *Structured) Parse(msg protocol.Message) []Invocation {
	if len(msg.ToolCalls) == 0 {
		return nil
	}

	invocations := make([]Invocation, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		inv := Invocation{ID: tc.ID, Name: tc.Name}
		if inv.ID == "" {
			inv.ID = newCallID()
		}

		code, description, err := s.registry.Decode(tc.Name, tc.Arguments)
		if err != nil {
			inv.Err = fmt.Errorf("%s: %w", tc.Name, err)
		}
		inv.Code = code
		inv.Description = description
		invocations = append(invocations, s.opts.verify(inv))
	}
	return invocations
}
