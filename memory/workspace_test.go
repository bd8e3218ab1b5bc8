package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/tailored-agentic-units/autods/core/protocol"
	"github.com/tailored-agentic-units/autods/memory"
)

func TestWorkspace_Notes(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "notes/b.md", "Dates are ISO 8601.")
	writeTestFile(t, root, "notes/a.md", "Revenue is in thousands of USD.")
	writeTestFile(t, root, "sessions/x/transcript.json", "[]")

	ws := memory.NewWorkspace(memory.NewFileStore(root))
	ctx := context.Background()

	notes, err := ws.Notes(ctx)
	if err != nil {
		t.Fatalf("Notes() error = %v", err)
	}
	want := "Revenue is in thousands of USD.\n\nDates are ISO 8601."
	if notes != want {
		t.Errorf("Notes() = %q, want %q", notes, want)
	}

	if err := ws.AddNote(ctx, "c.md", "Ignore test rows."); err != nil {
		t.Fatalf("AddNote() error = %v", err)
	}
	notes, _ = ws.Notes(ctx)
	if notes != want+"\n\nIgnore test rows." {
		t.Errorf("Notes() after AddNote = %q", notes)
	}
}

func TestWorkspace_Snapshot(t *testing.T) {
	store := memory.NewFileStore(t.TempDir())
	ws := memory.NewWorkspace(store)
	ctx := context.Background()

	msgs := []protocol.Message{
		protocol.NewMessage(protocol.RoleUser, "plot revenue"),
		{Role: protocol.RoleTool, Content: "ok\n", ToolCallID: "call_1"},
	}
	if err := ws.Snapshot(ctx, "s1", msgs); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if err := ws.SaveNotebook(ctx, "s1", []byte(`{"cells":[]}`)); err != nil {
		t.Fatalf("SaveNotebook() error = %v", err)
	}

	// A fresh workspace reads through the store.
	restored, err := memory.NewWorkspace(store).Transcript(ctx, "s1")
	if err != nil {
		t.Fatalf("Transcript() error = %v", err)
	}
	if len(restored) != 2 || restored[1].ToolCallID != "call_1" {
		t.Errorf("Transcript() = %+v", restored)
	}

	if err := ws.Forget(ctx, "s1"); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}
	keys, _ := store.List(ctx)
	if len(keys) != 0 {
		t.Errorf("keys after Forget = %v, want none", keys)
	}
}

func TestWorkspace_TranscriptMissing(t *testing.T) {
	ws := memory.NewWorkspace(memory.NewFileStore(t.TempDir()))

	_, err := ws.Transcript(context.Background(), "nope")
	if !errors.Is(err, memory.ErrKeyNotFound) {
		t.Errorf("Transcript() error = %v, want ErrKeyNotFound", err)
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"notes/a.md", false},
		{memory.TranscriptKey("0192f7a0-1111"), false},
		{"", true},
		{"/etc/passwd", true},
		{"notes/../../x", true},
		{"notes//a", true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := memory.ValidateKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateKey(%q) = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestWorkspace_Sessions(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "notes/a.md", "note")
	writeTestFile(t, root, memory.TranscriptKey("s2"), "[]")
	writeTestFile(t, root, memory.TranscriptKey("s1"), "[]")
	writeTestFile(t, root, memory.NotebookKey("s1"), "{}")

	ws := memory.NewWorkspace(memory.NewFileStore(root))
	ctx := context.Background()

	ids, err := ws.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != "s1" || ids[1] != "s2" {
		t.Errorf("Sessions() = %v, want [s1 s2]", ids)
	}

	if err := ws.Forget(ctx, "s1"); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}
	ids, _ = ws.Sessions(ctx)
	if len(ids) != 1 || ids[0] != "s2" {
		t.Errorf("Sessions() after Forget = %v, want [s2]", ids)
	}
}
