package tools_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/tailored-agentic-units/autods/core/protocol"
	"github.com/tailored-agentic-units/autods/tools"
)

func assistant(content string, calls ...protocol.ToolCall) protocol.Message {
	msg := protocol.NewMessage(protocol.RoleAssistant, content)
	msg.ToolCalls = calls
	return msg
}

func TestStructured_Parse(t *testing.T) {
	tests := []struct {
		name     string
		calls    []protocol.ToolCall
		wantCode []string
		wantErr  []error
	}{
		{
			name:     "no calls",
			calls:    nil,
			wantCode: nil,
		},
		{
			name:     "execute_code",
			calls:    []protocol.ToolCall{protocol.NewToolCall("c1", "execute_code", `{"code":"print(1+1)","description":"add"}`)},
			wantCode: []string{"print(1+1)"},
			wantErr:  []error{nil},
		},
		{
			name:     "legacy alias",
			calls:    []protocol.ToolCall{protocol.NewToolCall("c1", "execute_python", `{"code":"x = 1"}`)},
			wantCode: []string{"x = 1"},
			wantErr:  []error{nil},
		},
		{
			name:     "malformed arguments",
			calls:    []protocol.ToolCall{protocol.NewToolCall("c1", "execute_code", `{"code": `)},
			wantCode: []string{""},
			wantErr:  []error{tools.ErrArguments},
		},
		{
			name:     "missing code",
			calls:    []protocol.ToolCall{protocol.NewToolCall("c1", "execute_code", `{"description":"nothing"}`)},
			wantCode: []string{""},
			wantErr:  []error{tools.ErrMissingCode},
		},
		{
			name:     "unknown tool",
			calls:    []protocol.ToolCall{protocol.NewToolCall("c1", "browse", `{}`)},
			wantCode: []string{""},
			wantErr:  []error{tools.ErrNotFound},
		},
		{
			name: "ordered calls",
			calls: []protocol.ToolCall{
				protocol.NewToolCall("c1", "execute_code", `{"code":"a = 1"}`),
				protocol.NewToolCall("c2", "execute_code", `{"code":"print(a)"}`),
			},
			wantCode: []string{"a = 1", "print(a)"},
			wantErr:  []error{nil, nil},
		},
	}

	p := tools.NewStructured("python")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Parse(assistant("", tt.calls...))
			if len(got) != len(tt.wantCode) {
				t.Fatalf("Parse() returned %d invocations, want %d", len(got), len(tt.wantCode))
			}
			for i, inv := range got {
				if inv.ID != tt.calls[i].ID {
					t.Errorf("invocation %d id = %q, want %q", i, inv.ID, tt.calls[i].ID)
				}
				if inv.Code != tt.wantCode[i] {
					t.Errorf("invocation %d code = %q, want %q", i, inv.Code, tt.wantCode[i])
				}
				if tt.wantErr[i] == nil && inv.Err != nil {
					t.Errorf("invocation %d unexpected error: %v", i, inv.Err)
				}
				if tt.wantErr[i] != nil && !errors.Is(inv.Err, tt.wantErr[i]) {
					t.Errorf("invocation %d error = %v, want %v", i, inv.Err, tt.wantErr[i])
				}
			}
		})
	}
}

func TestStructured_GeneratesMissingID(t *testing.T) {
	p := tools.NewStructured("python")

	got := p.Parse(assistant("", protocol.NewToolCall("", "execute_code", `{"code":"1"}`)))

	if len(got) != 1 || !strings.HasPrefix(got[0].ID, "call_") {
		t.Errorf("Parse() = %+v, want generated call_ id", got)
	}
}

func TestStructured_Tools(t *testing.T) {
	p := tools.NewStructured("python")

	list := p.Tools()
	if len(list) != 1 {
		t.Fatalf("Tools() returned %d tools, want 1", len(list))
	}
	if list[0].Name != tools.ExecuteCode {
		t.Errorf("Tools()[0].Name = %q, want %q", list[0].Name, tools.ExecuteCode)
	}
	required, _ := list[0].Parameters["required"].([]string)
	if len(required) != 2 || required[0] != "code" {
		t.Errorf("required = %v, want [code description]", required)
	}
	if p.Protocol() != protocol.Tools {
		t.Errorf("Protocol() = %s, want %s", p.Protocol(), protocol.Tools)
	}
}

func TestFreeform_Parse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "plain answer",
			content: "The mean is 4.2.",
		},
		{
			name:    "python fence",
			content: "Let me check.\n```python\nprint(df.shape)\n```\n",
			want:    []string{"print(df.shape)\n"},
		},
		{
			name:    "two fences in order",
			content: "```py\na = 1\n```\nthen\n```starlark\nprint(a)\n```",
			want:    []string{"a = 1\n", "print(a)\n"},
		},
		{
			name:    "untagged and foreign fences ignored",
			content: "```\nls\n```\n```bash\nrm -rf /\n```",
		},
	}

	p := tools.NewFreeform(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Parse(assistant(tt.content))
			if len(got) != len(tt.want) {
				t.Fatalf("Parse() returned %d invocations, want %d", len(got), len(tt.want))
			}
			seen := make(map[string]bool)
			for i, inv := range got {
				if inv.Code != tt.want[i] {
					t.Errorf("invocation %d code = %q, want %q", i, inv.Code, tt.want[i])
				}
				if !strings.HasPrefix(inv.ID, "call_") || seen[inv.ID] {
					t.Errorf("invocation %d id %q is not a fresh call_ id", i, inv.ID)
				}
				seen[inv.ID] = true
			}
		})
	}
}

func TestFreeform_EmptyFence(t *testing.T) {
	p := tools.NewFreeform(nil)

	got := p.Parse(assistant("```python\n\n```"))

	if len(got) != 1 || !errors.Is(got[0].Err, tools.ErrMissingCode) {
		t.Errorf("Parse() = %+v, want one ErrMissingCode invocation", got)
	}
}

func TestWithSyntaxCheck(t *testing.T) {
	reject := func(code string) error {
		if strings.Contains(code, "(") && !strings.Contains(code, ")") {
			return &tools.SyntaxError{Line: 1, Column: 1, Message: "unclosed paren"}
		}
		return nil
	}
	p := tools.NewStructured("python", tools.WithSyntaxCheck(reject))

	got := p.Parse(assistant("",
		protocol.NewToolCall("ok", "execute_code", `{"code":"print(1)"}`),
		protocol.NewToolCall("bad", "execute_code", `{"code":"print(1"}`),
	))

	if got[0].Err != nil {
		t.Errorf("valid code rejected: %v", got[0].Err)
	}
	if !errors.Is(got[1].Err, tools.ErrSyntax) {
		t.Errorf("invalid code error = %v, want %v", got[1].Err, tools.ErrSyntax)
	}
}

func TestNew(t *testing.T) {
	if p := tools.New(protocol.Chat, "python"); p.Protocol() != protocol.Chat {
		t.Errorf("New(chat) protocol = %s", p.Protocol())
	}
	if p := tools.New(protocol.Tools, "python"); p.Protocol() != protocol.Tools {
		t.Errorf("New(tools) protocol = %s", p.Protocol())
	}
}
