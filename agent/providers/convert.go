package providers

import (
	"github.com/tailored-agentic-units/autods/core/protocol"
)

// observationPrefix introduces a tool observation that is sent as user text.
const observationPrefix = "Execution result:\n"

// structuredCallIDs collects the ids of every tool call issued by an
// assistant message. A tool message answering one of them is sent to the
// vendor as a native tool result.
func structuredCallIDs(messages []protocol.Message) map[string]bool {
	ids := make(map[string]bool)
	for _, m := range messages {
		if m.Role != protocol.RoleAssistant {
			continue
		}
		for _, tc := range m.ToolCalls {
			ids[tc.ID] = true
		}
	}
	return ids
}

// isNativeObservation reports whether m is a tool message the vendor will
// accept as a tool result. Observations of code found in message text have
// no matching call and go out as user messages instead.
func isNativeObservation(m protocol.Message, ids map[string]bool) bool {
	return m.Role == protocol.RoleTool && m.ToolCallID != "" && ids[m.ToolCallID]
}
