// Package protocol defines the conversation types shared by the model
// client, the tool-call parser and the orchestrator.
package protocol

import "strings"

// Protocol names a model capability. Model configurations declare the
// capabilities they support as keys of ModelConfig.Capabilities.
type Protocol string

const (
	Chat  Protocol = "chat"
	Tools Protocol = "tools"
)

// ValidProtocols returns every known protocol in declaration order.
func ValidProtocols() []Protocol {
	return []Protocol{Chat, Tools}
}

// IsValid reports whether s names a known protocol. Matching is case sensitive.
func IsValid(s string) bool {
	for _, p := range ValidProtocols() {
		if string(p) == s {
			return true
		}
	}
	return false
}

// ProtocolStrings returns the known protocols as a comma separated list.
func ProtocolStrings() string {
	names := make([]string, 0, len(ValidProtocols()))
	for _, p := range ValidProtocols() {
		names = append(names, string(p))
	}
	return strings.Join(names, ", ")
}

// SupportsStreaming reports whether responses for the protocol can be streamed.
func (p Protocol) SupportsStreaming() bool {
	return p == Chat || p == Tools
}
