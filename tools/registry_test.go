package tools_test

import (
	"errors"
	"testing"

	"github.com/tailored-agentic-units/autods/core/protocol"
	"github.com/tailored-agentic-units/autods/tools"
)

func testTool(name string) protocol.Tool {
	return protocol.Tool{
		Name:        name,
		Description: "test tool: " + name,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"input": map[string]any{"type": "string"},
			},
		},
	}
}

func echoDecoder(args string) (string, string, error) {
	return args, "echo", nil
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name    string
		tool    protocol.Tool
		wantErr error
	}{
		{
			name: "valid tool",
			tool: testTool("register_valid"),
		},
		{
			name:    "empty name",
			tool:    protocol.Tool{Name: ""},
			wantErr: tools.ErrEmptyName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tools.NewRegistry()
			err := r.Register(tt.tool, echoDecoder)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Register() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Errorf("Register() unexpected error: %v", err)
			}
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	r := tools.NewRegistry()
	tool := testTool("register_duplicate")

	if err := r.Register(tool, echoDecoder); err != nil {
		t.Fatalf("first Register() failed: %v", err)
	}

	err := r.Register(tool, echoDecoder)
	if !errors.Is(err, tools.ErrAlreadyExists) {
		t.Errorf("second Register() error = %v, want %v", err, tools.ErrAlreadyExists)
	}
}

func TestReplace(t *testing.T) {
	r := tools.NewRegistry()
	tool := testTool("replace_existing")

	if err := r.Register(tool, echoDecoder); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	replacement := func(string) (string, string, error) {
		return "replaced", "", nil
	}
	if err := r.Replace(tool, replacement); err != nil {
		t.Fatalf("Replace() failed: %v", err)
	}

	code, _, err := r.Decode("replace_existing", `{}`)
	if err != nil {
		t.Fatalf("Decode() after Replace() failed: %v", err)
	}
	if code != "replaced" {
		t.Errorf("Decode() code = %q, want %q", code, "replaced")
	}
}

func TestReplace_NotFound(t *testing.T) {
	r := tools.NewRegistry()

	err := r.Replace(testTool("replace_nonexistent"), echoDecoder)
	if !errors.Is(err, tools.ErrNotFound) {
		t.Errorf("Replace() error = %v, want %v", err, tools.ErrNotFound)
	}
}

func TestReplace_EmptyName(t *testing.T) {
	r := tools.NewRegistry()

	err := r.Replace(protocol.Tool{Name: ""}, echoDecoder)
	if !errors.Is(err, tools.ErrEmptyName) {
		t.Errorf("Replace() error = %v, want %v", err, tools.ErrEmptyName)
	}
}

func TestGet(t *testing.T) {
	r := tools.NewRegistry()
	if err := r.Register(testTool("get_existing"), echoDecoder); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	decode, exists := r.Get("get_existing")
	if !exists {
		t.Fatal("Get() returned exists=false, want true")
	}
	if decode == nil {
		t.Fatal("Get() returned nil decoder")
	}

	if _, exists := r.Get("get_nonexistent"); exists {
		t.Error("Get() returned exists=true for nonexistent tool")
	}
}

func TestAlias(t *testing.T) {
	r := tools.NewRegistry()
	if err := r.Register(testTool("primary"), echoDecoder); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	if err := r.Alias("legacy", "primary"); err != nil {
		t.Fatalf("Alias() failed: %v", err)
	}
	if err := r.Alias("legacy", "primary"); !errors.Is(err, tools.ErrAlreadyExists) {
		t.Errorf("duplicate Alias() error = %v, want %v", err, tools.ErrAlreadyExists)
	}
	if err := r.Alias("other", "missing"); !errors.Is(err, tools.ErrNotFound) {
		t.Errorf("Alias() to missing error = %v, want %v", err, tools.ErrNotFound)
	}

	if _, exists := r.Get("legacy"); !exists {
		t.Error("alias not decodable")
	}

	list := r.List()
	if len(list) != 1 || list[0].Name != "primary" {
		t.Errorf("List() = %v, want only primary", list)
	}
}

func TestList_Order(t *testing.T) {
	r := tools.NewRegistry()
	for _, name := range []string{"list_b", "list_a", "list_c"} {
		if err := r.Register(testTool(name), echoDecoder); err != nil {
			t.Fatalf("Register(%s) failed: %v", name, err)
		}
	}

	list := r.List()
	want := []string{"list_b", "list_a", "list_c"}
	if len(list) != len(want) {
		t.Fatalf("List() returned %d tools, want %d", len(list), len(want))
	}
	for i, tool := range list {
		if tool.Name != want[i] {
			t.Errorf("List()[%d] = %s, want %s", i, tool.Name, want[i])
		}
	}
}

func TestDecode_NotFound(t *testing.T) {
	r := tools.NewRegistry()

	_, _, err := r.Decode("decode_nonexistent", `{}`)
	if !errors.Is(err, tools.ErrNotFound) {
		t.Errorf("Decode() error = %v, want %v", err, tools.ErrNotFound)
	}
}
