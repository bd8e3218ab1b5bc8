package providers

import (
	"github.com/tailored-agentic-units/autods/core/protocol"
)

// ToolsData contains the data needed to build a tools request.
type ToolsData struct {
	Model    string
	Messages []protocol.Message
	Tools    []protocol.Tool
	Options  map[string]any
}

// Temperature returns the "temperature" option.
func (d *ToolsData) Temperature() (float64, bool) {
	return floatOption(d.Options, "temperature")
}

// MaxTokens returns the "max_tokens" option.
func (d *ToolsData) MaxTokens() (int64, bool) {
	v, ok := floatOption(d.Options, "max_tokens")
	if !ok || v <= 0 {
		return 0, false
	}
	return int64(v), true
}

// ToolChoice returns the "tool_choice" option, "auto" when unset.
func (d *ToolsData) ToolChoice() string {
	if s, ok := d.Options["tool_choice"].(string); ok && s != "" {
		return s
	}
	return "auto"
}

func floatOption(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
