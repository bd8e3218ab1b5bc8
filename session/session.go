// Package session holds the ordered conversation history of one agent
// session. History is append-only; Clear discards it on reset.
package session

import (
	"github.com/tailored-agentic-units/autods/core/protocol"
)

// Session holds an ordered sequence of conversation messages. Implementations
// must be safe for concurrent use.
type Session interface {
	// ID returns the unique session identifier.
	ID() string
	// AddMessage appends a message to the conversation history.
	AddMessage(msg protocol.Message)
	// Messages returns a defensive copy of the conversation history.
	Messages() []protocol.Message
	// Clear resets the conversation history.
	Clear()
}

// Durable is implemented by sessions that write through to storage.
// Writes never fail AddMessage; the first storage error is kept and
// reported by Err.
type Durable interface {
	Session
	Err() error
	Close() error
}
