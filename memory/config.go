package memory

import "fmt"

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config holds workspace store initialization parameters.
type Config struct {
	// Backend is "file" (default) or "sqlite".
	Backend string `json:"backend,omitempty" toml:"backend"`
	// Path is the directory (file) or database file (sqlite). Empty
	// disables the workspace.
	Path string `json:"path,omitempty" toml:"path"`
}

// DefaultConfig returns the default memory configuration (disabled).
func DefaultConfig() Config {
	return Config{}
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

// NewStore creates a Store from configuration. Returns nil Store when Path
// is empty, indicating the workspace is disabled.
func NewStore(cfg *Config) (Store, error) {
	if cfg.Path == "" {
		return nil, nil
	}

	switch cfg.Backend {
	case "", BackendFile:
		return NewFileStore(cfg.Path), nil
	case BackendSQLite:
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.Backend)
	}
}
