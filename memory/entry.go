package memory

import (
	"fmt"
	"strings"
)

// Top-level namespaces of the workspace.
const (
	// NamespaceNotes holds free-form notes added to every system prompt.
	NamespaceNotes = "notes"
	// NamespaceSessions holds per-session artifacts: transcripts and notebooks.
	NamespaceSessions = "sessions"
)

// Entry is a key-value pair in the memory namespace. Keys are /-separated
// hierarchical paths and values are raw bytes.
type Entry struct {
	Key   string
	Value []byte
}

// NoteKey returns the key of a named note.
func NoteKey(name string) string {
	return NamespaceNotes + "/" + name
}

// TranscriptKey returns the key of a session transcript snapshot.
func TranscriptKey(sessionID string) string {
	return NamespaceSessions + "/" + sessionID + "/transcript.json"
}

// NotebookKey returns the key of a session's exported notebook.
func NotebookKey(sessionID string) string {
	return NamespaceSessions + "/" + sessionID + "/analysis.ipynb"
}

// ValidateKey rejects keys that are empty, absolute or escape the
// namespace root.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}
