package session

import "fmt"

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config selects the history backend.
type Config struct {
	// Backend is "memory" (default) or "sqlite".
	Backend string `json:"backend,omitempty" toml:"backend"`
	// Path is the sqlite database file. Required for the sqlite backend.
	Path string `json:"path,omitempty" toml:"path"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{Backend: BackendMemory}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Backend != "" {
		c.Backend = source.Backend
	}
	if source.Path != "" {
		c.Path = source.Path
	}
}

// New creates a Session with a fresh identifier.
func New(cfg *Config) (Session, error) {
	return Open(cfg, "")
}

// Open creates the Session with the given id. A sqlite session resumes any
// history stored under that id. An empty id generates a new one.
func Open(cfg *Config, id string) (Session, error) {
	if id == "" {
		id = newID()
	}

	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemorySessionWithID(id), nil
	case BackendSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: sqlite backend requires a path", ErrInvalidConfig)
		}
		return OpenSQLite(cfg.Path, id)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, cfg.Backend)
	}
}
