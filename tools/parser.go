// Package tools extracts code invocations from model replies. Two
// protocols exist: Structured reads native tool calls, Freeform reads fenced
// code blocks out of the reply text. Both yield the same Invocation shape.
package tools

import (
	"github.com/google/uuid"

	"github.com/tailored-agentic-units/autods/core/protocol"
)

// Invocation is one request to run code. Err is set when the request could
// not be decoded; such an invocation is observed as a failure and never
// reaches the sandbox.
type Invocation struct {
	ID          string
	Name        string
	Code        string
	Description string
	Err         error
}

// Failed reports whether the invocation could not be decoded.
func (i Invocation) Failed() bool { return i.Err != nil }

// Parser turns an assistant message into invocations.
type Parser interface {
	// Parse returns the invocations in message order, or none for a final
	// answer.
	Parse(msg protocol.Message) []Invocation
	// Tools returns the schemas to advertise to the model, if any.
	Tools() []protocol.Tool
	// Protocol names the protocol the parser implements.
	Protocol() protocol.Protocol
}

// SyntaxChecker reports a syntax error in code, or nil.
type SyntaxChecker func(code string) error

// Option configures a parser.
type Option func(*options)

type options struct {
	check SyntaxChecker
}

// WithSyntaxCheck rejects code that fails check before it is run.
func WithSyntaxCheck(check SyntaxChecker) Option {
	return func(o *options) { o.check = check }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) verify(inv Invocation) Invocation {
	if inv.Err == nil && o.check != nil {
		inv.Err = o.check(inv.Code)
	}
	return inv
}

// New returns the parser for p.
func New(p protocol.Protocol, language string, opts ...Option) Parser {
	if p == protocol.Chat {
		return NewFreeform(nil, opts...)
	}
	return NewStructured(language, opts...)
}

func newCallID() string {
	return "call_" + uuid.NewString()
}
