// Package memory is the durable workspace of the agent runtime: a
// hierarchical key-value namespace holding user notes injected into the
// system prompt, per-session transcript snapshots and exported notebooks.
// Storage is pluggable (files or sqlite); Cache and Workspace sit on top.
package memory

import "context"

// Store translates between external storage and the internal key-value namespace.
// Implementations are stateless: they perform I/O on each call without caching.
type Store interface {
	// List returns all available keys in the store, sorted.
	List(ctx context.Context) ([]string, error)
	// Load retrieves entries for the specified keys.
	Load(ctx context.Context, keys ...string) ([]Entry, error)
	// Save persists entries to storage, creating or overwriting as needed.
	Save(ctx context.Context, entries ...Entry) error
	// Delete removes entries from storage. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
}
