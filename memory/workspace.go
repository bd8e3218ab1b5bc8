package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/tailored-agentic-units/autods/core/protocol"
)

// Workspace is the view of the namespace used by the runtime: notes for the
// system prompt, transcript snapshots after each turn, and notebook exports.
// It is shared by all sessions and safe for concurrent use.
type Workspace struct {
	cache *Cache

	once    sync.Once
	initErr error
}

// NewWorkspace creates a Workspace over store. Notes are kept in memory;
// session artifacts are read from the store when asked for.
func NewWorkspace(store Store) *Workspace {
	return &Workspace{cache: NewCache(store, NamespaceNotes+"/")}
}

func (w *Workspace) bootstrap(ctx context.Context) error {
	w.once.Do(func() {
		w.initErr = w.cache.Bootstrap(ctx)
	})
	return w.initErr
}

// Notes returns every note, ordered by key and separated by blank lines.
func (w *Workspace) Notes(ctx context.Context) (string, error) {
	if err := w.bootstrap(ctx); err != nil {
		return "", err
	}

	entries := w.cache.Pinned(NamespaceNotes + "/")
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		if text := strings.TrimSpace(string(e.Value)); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// AddNote stores a named note.
func (w *Workspace) AddNote(ctx context.Context, name, text string) error {
	if err := w.bootstrap(ctx); err != nil {
		return err
	}
	return w.cache.Put(ctx, NoteKey(name), []byte(text))
}

// Snapshot stores the transcript of a session, replacing the previous one.
func (w *Workspace) Snapshot(ctx context.Context, sessionID string, messages []protocol.Message) error {
	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	return w.cache.Put(ctx, TranscriptKey(sessionID), data)
}

// Transcript loads the last snapshot of a session.
func (w *Workspace) Transcript(ctx context.Context, sessionID string) ([]protocol.Message, error) {
	data, err := w.cache.Get(ctx, TranscriptKey(sessionID))
	if err != nil {
		return nil, err
	}

	var messages []protocol.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("decode transcript %s: %w", sessionID, err)
	}
	return messages, nil
}

// SaveNotebook stores an exported notebook for a session.
func (w *Workspace) SaveNotebook(ctx context.Context, sessionID string, notebook []byte) error {
	return w.cache.Put(ctx, NotebookKey(sessionID), notebook)
}

// Forget removes every artifact stored for a session.
func (w *Workspace) Forget(ctx context.Context, sessionID string) error {
	if err := w.bootstrap(ctx); err != nil {
		return err
	}
	_, err := w.cache.Drop(ctx, NamespaceSessions+"/"+sessionID+"/")
	return err
}

// Sessions returns the ids of the sessions that have stored artifacts.
func (w *Workspace) Sessions(ctx context.Context) ([]string, error) {
	if err := w.bootstrap(ctx); err != nil {
		return nil, err
	}

	var ids []string
	seen := make(map[string]bool)
	for _, key := range w.cache.Keys(NamespaceSessions + "/") {
		rest := strings.TrimPrefix(key, NamespaceSessions+"/")
		id, _, ok := strings.Cut(rest, "/")
		if ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}
