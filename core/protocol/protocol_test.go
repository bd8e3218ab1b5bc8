package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/tailored-agentic-units/autods/core/protocol"
)

func TestIsValid(t *testing.T) {
	tests := []struct {
		name     string
		protocol string
		expected bool
	}{
		{"chat valid", "chat", true},
		{"tools valid", "tools", true},
		{"vision unknown", "vision", false},
		{"empty string", "", false},
		{"uppercase", "CHAT", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := protocol.IsValid(tt.protocol); got != tt.expected {
				t.Errorf("IsValid(%q) = %v, want %v", tt.protocol, got, tt.expected)
			}
		})
	}
}

func TestProtocolStrings(t *testing.T) {
	if got, want := protocol.ProtocolStrings(), "chat, tools"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestProtocol_SupportsStreaming(t *testing.T) {
	for _, p := range protocol.ValidProtocols() {
		if !p.SupportsStreaming() {
			t.Errorf("%s should support streaming", p)
		}
	}
	if protocol.Protocol("embeddings").SupportsStreaming() {
		t.Error("unknown protocol should not support streaming")
	}
}

func TestMessage_Text(t *testing.T) {
	tests := []struct {
		name    string
		content any
		want    string
	}{
		{"string", "print(df.head())", "print(df.head())"},
		{"nil", nil, ""},
		{"structured", map[string]any{"rows": 3}, `{"rows":3}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := protocol.NewMessage(protocol.RoleAssistant, tt.content)
			if got := msg.Text(); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMessage_HasToolCall(t *testing.T) {
	msg := protocol.Message{
		Role: protocol.RoleAssistant,
		ToolCalls: []protocol.ToolCall{
			protocol.NewToolCall("call_1", "execute_code", `{"code":"print(1)"}`),
		},
	}

	if !msg.HasToolCall("call_1") {
		t.Error("expected call_1 to be present")
	}
	if msg.HasToolCall("call_2") {
		t.Error("call_2 should not be present")
	}
}

func TestMessage_JSON_OmitsEmptyToolFields(t *testing.T) {
	data, err := json.Marshal(protocol.NewMessage(protocol.RoleUser, "hello"))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if _, exists := raw["tool_call_id"]; exists {
		t.Error("tool_call_id should be omitted when empty")
	}
	if _, exists := raw["tool_calls"]; exists {
		t.Error("tool_calls should be omitted when empty")
	}
}

func TestToolCall_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		data string
		want protocol.ToolCall
	}{
		{
			name: "nested provider format",
			data: `{"id":"call_123","type":"function","function":{"name":"execute_code","arguments":"{\"code\":\"x = 1\"}"}}`,
			want: protocol.ToolCall{ID: "call_123", Name: "execute_code", Arguments: `{"code":"x = 1"}`},
		},
		{
			name: "flat format",
			data: `{"id":"call_456","name":"execute_code","arguments":"{}"}`,
			want: protocol.ToolCall{ID: "call_456", Name: "execute_code", Arguments: "{}"},
		},
		{
			name: "empty object",
			data: `{}`,
			want: protocol.ToolCall{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tc protocol.ToolCall
			if err := json.Unmarshal([]byte(tt.data), &tc); err != nil {
				t.Fatalf("UnmarshalJSON failed: %v", err)
			}
			if tc != tt.want {
				t.Errorf("got %+v, want %+v", tc, tt.want)
			}
		})
	}
}

func TestToolCall_UnmarshalJSON_InvalidJSON(t *testing.T) {
	var tc protocol.ToolCall
	if err := json.Unmarshal([]byte(`{invalid}`), &tc); err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

func TestToolCall_MarshalJSON_NestedFormat(t *testing.T) {
	tc := protocol.NewToolCall("call_789", "execute_code", `{"code":"print(1)"}`)

	data, err := json.Marshal(tc)
	if err != nil {
		t.Fatalf("MarshalJSON failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if raw["type"] != "function" {
		t.Errorf("got type %v, want %q", raw["type"], "function")
	}
	fn, ok := raw["function"].(map[string]any)
	if !ok {
		t.Fatalf("function field is not an object: %T", raw["function"])
	}
	if fn["name"] != "execute_code" {
		t.Errorf("got function.name %v, want %q", fn["name"], "execute_code")
	}
	if _, exists := raw["arguments"]; exists {
		t.Error("arguments should not be at top level in nested format")
	}

	var restored protocol.ToolCall
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if restored != tc {
		t.Errorf("round trip got %+v, want %+v", restored, tc)
	}
}
