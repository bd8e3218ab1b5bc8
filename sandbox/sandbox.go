// Package sandbox defines the code execution environment bound to one
// session: a persistent set of variable bindings that code runs against,
// with captured output, a wall-clock timeout, and at most one visual
// artifact per execution.
//
// Two implementations exist. sandbox/inproc interprets Starlark inside the
// process; sandbox/worker drives a long-lived Python subprocess. Both
// satisfy Environment and are chosen when a session is constructed.
package sandbox

import (
	"context"
	"fmt"
	"time"
)

// Well-known variable names.
const (
	// DatasetVariable is where the data loader binds the session's table.
	DatasetVariable = "df"
	// FigureVariable is probed after every execution for a figure with
	// JSON export capability.
	FigureVariable = "fig"
)

// Environment is a persistent execution environment owned by exactly one
// session. Implementations serialize Run, Bind and Lookup internally; the
// session registry additionally serializes whole turns.
type Environment interface {
	// Bind places value into the environment under name. A *Dataset binds
	// a table; other values must be JSON-serializable.
	Bind(ctx context.Context, name string, value any) error
	// Lookup returns the JSON-decoded value bound to name.
	Lookup(ctx context.Context, name string) (value any, ok bool, err error)
	// Run executes code and never returns a Go error: timeouts, runtime
	// failures and artifact problems are reported inside the Result.
	Run(ctx context.Context, code string, timeout time.Duration) Result
	// DataState describes the dataset bound under DatasetVariable, or nil.
	DataState(ctx context.Context) (*DataState, error)
	// Language names the dialect executed, used as the code fence tag.
	Language() string
	// Close releases the environment. Further calls fail.
	Close() error
}

// Environment kinds accepted by Config.Kind.
const (
	KindInProcess = "inproc"
	KindWorker    = "worker"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultReadInterval   = time.Second
	defaultStartTimeout   = 60 * time.Second
	defaultInterruptGrace = 2 * time.Second
)

// Duration is a time.Duration that reads and writes as a Go duration string
// ("30s") in JSON and TOML.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config selects and tunes the environment created for each session.
type Config struct {
	Kind    string   `json:"kind,omitempty" toml:"kind"`
	Timeout Duration `json:"timeout,omitempty" toml:"timeout"`

	// Worker settings.
	Python         string   `json:"python,omitempty" toml:"python"`
	WorkDir        string   `json:"work_dir,omitempty" toml:"work_dir"`
	ReadInterval   Duration `json:"read_interval,omitempty" toml:"read_interval"`
	StartTimeout   Duration `json:"start_timeout,omitempty" toml:"start_timeout"`
	InterruptGrace Duration `json:"interrupt_grace,omitempty" toml:"interrupt_grace"`

	// MaxSteps bounds in-process execution steps per run; zero is unbounded.
	MaxSteps uint64 `json:"max_steps,omitempty" toml:"max_steps"`
}

// DefaultConfig returns the in-process environment with a 30s timeout.
func DefaultConfig() Config {
	return Config{
		Kind:           KindInProcess,
		Timeout:        Duration(defaultTimeout),
		ReadInterval:   Duration(defaultReadInterval),
		StartTimeout:   Duration(defaultStartTimeout),
		InterruptGrace: Duration(defaultInterruptGrace),
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Kind != "" {
		c.Kind = source.Kind
	}
	if source.Timeout > 0 {
		c.Timeout = source.Timeout
	}
	if source.Python != "" {
		c.Python = source.Python
	}
	if source.WorkDir != "" {
		c.WorkDir = source.WorkDir
	}
	if source.ReadInterval > 0 {
		c.ReadInterval = source.ReadInterval
	}
	if source.StartTimeout > 0 {
		c.StartTimeout = source.StartTimeout
	}
	if source.InterruptGrace > 0 {
		c.InterruptGrace = source.InterruptGrace
	}
	if source.MaxSteps > 0 {
		c.MaxSteps = source.MaxSteps
	}
}

// TimeoutOrDefault returns the configured timeout, or 30s when unset.
func (c *Config) TimeoutOrDefault() time.Duration {
	if c.Timeout <= 0 {
		return defaultTimeout
	}
	return c.Timeout.Std()
}

// ValidName reports whether name can be bound as a variable in every
// environment kind.
func ValidName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
