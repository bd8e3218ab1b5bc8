package protocol

import (
	"encoding/json"
	"fmt"
)

// Role identifies the sender of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleTool marks a tool-observation message: the result of one code
	// execution, bound to the invocation it answers via ToolCallID.
	RoleTool Role = "tool"
)

// ToolCall is a model-issued tool request as it appears in conversation
// history. Fields are flat; the JSON codec speaks the nested provider format
// ({type, function: {name, arguments}}) and accepts the flat one on input.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// NewToolCall creates a ToolCall with raw JSON arguments.
func NewToolCall(id, name, arguments string) ToolCall {
	return ToolCall{ID: id, Name: name, Arguments: arguments}
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type,omitempty"`
	Function wireFunction `json:"function"`
}

func (tc ToolCall) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireToolCall{
		ID:       tc.ID,
		Type:     "function",
		Function: wireFunction{Name: tc.Name, Arguments: tc.Arguments},
	})
}

func (tc *ToolCall) UnmarshalJSON(data []byte) error {
	var nested wireToolCall
	if err := json.Unmarshal(data, &nested); err != nil {
		return err
	}

	if nested.Function.Name != "" {
		tc.ID = nested.ID
		tc.Name = nested.Function.Name
		tc.Arguments = nested.Function.Arguments
		return nil
	}

	type plain ToolCall
	return json.Unmarshal(data, (*plain)(tc))
}

// Message is one entry of a conversation. Content is usually a string; it
// may be nil for assistant messages that only carry tool calls.
//
// Assistant messages carry ToolCalls when the model used the structured
// tool protocol. Tool messages carry the ToolCallID of the invocation they
// observe.
type Message struct {
	Role       Role       `json:"role"`
	Content    any        `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	// Synthetic marks a user-role message written by the runtime rather
	// than the person in the conversation. Providers never receive it.
	Synthetic  bool       `json:"synthetic,omitempty"`
}

// NewMessage creates a Message with the given role and content.
//
//	msg := protocol.NewMessage(protocol.RoleUser, "print(df.shape)")
func NewMessage(role Role, content any) Message {
	return Message{Role: role, Content: content}
}

// InitMessages creates a single-element message slice from a role and content string.
func InitMessages(role Role, content string) []Message {
	return []Message{NewMessage(role, content)}
}

// Text returns the message content as plain text. Nil content yields an
// empty string; non-string content is rendered as JSON.
func (m Message) Text() string {
	switch c := m.Content.(type) {
	case nil:
		return ""
	case string:
		return c
	case fmt.Stringer:
		return c.String()
	default:
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Sprint(c)
		}
		return string(data)
	}
}

// HasToolCall reports whether the message carries a structured tool call
// with the given id.
func (m Message) HasToolCall(id string) bool {
	for _, tc := range m.ToolCalls {
		if tc.ID == id {
			return true
		}
	}
	return false
}
