package session

import (
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/autods/core/protocol"
)

// memorySession keeps history for the lifetime of the process. It is the
// default backend: a server restart starts every session empty.
type memorySession struct {
	id string

	mu      sync.RWMutex
	history []protocol.Message
}

// NewMemorySession creates an in-memory Session with a fresh UUIDv7 id.
func NewMemorySession() Session {
	return NewMemorySessionWithID(newID())
}

// NewMemorySessionWithID creates an in-memory Session under id.
func NewMemorySessionWithID(id string) Session {
	return &memorySession{id: id}
}

// newID returns a time-ordered id so session listings sort by creation.
func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func (s *memorySession) ID() string { return s.id }

func (s *memorySession) AddMessage(msg protocol.Message) {
	msg = cloneMessage(msg)

	s.mu.Lock()
	s.history = append(s.history, msg)
	s.mu.Unlock()
}

func (s *memorySession) Messages() []protocol.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMessages(s.history)
}

func (s *memorySession) Clear() {
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
}

// cloneMessage detaches the tool calls of msg from the caller's slice.
func cloneMessage(msg protocol.Message) protocol.Message {
	msg.ToolCalls = slices.Clone(msg.ToolCalls)
	return msg
}

func cloneMessages(msgs []protocol.Message) []protocol.Message {
	out := make([]protocol.Message, len(msgs))
	for i, msg := range msgs {
		out[i] = cloneMessage(msg)
	}
	return out
}
