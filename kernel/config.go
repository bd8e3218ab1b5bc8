package kernel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/tailored-agentic-units/autods/core/config"
	"github.com/tailored-agentic-units/autods/core/protocol"
	"github.com/tailored-agentic-units/autods/memory"
	"github.com/tailored-agentic-units/autods/sandbox"
	"github.com/tailored-agentic-units/autods/session"
)

const (
	defaultMaxIterations = 10
	defaultMaxRetries    = 3
)

// Config holds initialization parameters for all kernel subsystems.
// Each subsystem section delegates to that subsystem's config-driven constructor.
type Config struct {
	Agent         config.AgentConfig            `json:"agent" toml:"agent"`
	Agents        map[string]config.AgentConfig `json:"agents,omitempty" toml:"agents"`
	Session       session.Config                `json:"session" toml:"session"`
	Memory        memory.Config                 `json:"memory" toml:"memory"`
	Sandbox       sandbox.Config                `json:"sandbox" toml:"sandbox"`
	Protocol      protocol.Protocol             `json:"protocol,omitempty" toml:"protocol"`
	MaxIterations int                           `json:"max_iterations,omitempty" toml:"max_iterations"`
	MaxRetries    int                           `json:"max_retries,omitempty" toml:"max_retries"`
	SystemPrompt  string                        `json:"system_prompt,omitempty" toml:"system_prompt"`
	// Stream requests incremental model output; deltas are published as
	// updates and never stored in history.
	Stream      bool `json:"stream,omitempty" toml:"stream"`
	SyntaxCheck bool `json:"syntax_check,omitempty" toml:"syntax_check"`
}

// DefaultConfig returns a Config with sensible defaults for all subsystems.
func DefaultConfig() Config {
	return Config{
		Agent:         config.DefaultAgentConfig(),
		Session:       session.DefaultConfig(),
		Memory:        memory.DefaultConfig(),
		Sandbox:       sandbox.DefaultConfig(),
		Protocol:      protocol.Tools,
		MaxIterations: defaultMaxIterations,
		MaxRetries:    defaultMaxRetries,
		SystemPrompt:  DefaultSystemPrompt,
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge method.
func (c *Config) Merge(source *Config) {
	c.Agent.Merge(&source.Agent)
	c.Session.Merge(&source.Session)
	c.Memory.Merge(&source.Memory)
	c.Sandbox.Merge(&source.Sandbox)

	if source.Protocol != "" {
		c.Protocol = source.Protocol
	}
	if source.MaxIterations > 0 {
		c.MaxIterations = source.MaxIterations
	}
	if source.MaxRetries > 0 {
		c.MaxRetries = source.MaxRetries
	}
	if source.SystemPrompt != "" {
		c.SystemPrompt = source.SystemPrompt
	}
	if source.Stream {
		c.Stream = true
	}
	if source.SyntaxCheck {
		c.SyntaxCheck = true
	}

	if len(source.Agents) > 0 {
		c.Agents = source.Agents
	}
}

// Validate reports configuration values the kernel cannot run with.
func (c *Config) Validate() error {
	if !protocol.IsValid(string(c.Protocol)) {
		return fmt.Errorf("%w: unknown protocol %q", ErrInvalidConfig, c.Protocol)
	}
	switch c.Sandbox.Kind {
	case sandbox.KindInProcess, sandbox.KindWorker:
	default:
		return fmt.Errorf("%w: unknown sandbox kind %q", ErrInvalidConfig, c.Sandbox.Kind)
	}
	if c.MaxIterations < 0 || c.MaxRetries < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig reads a config file, merges it with defaults, and returns
// the resulting Config. Files ending in .toml are read as TOML, anything
// else as JSON.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if strings.EqualFold(filepath.Ext(filename), ".toml") {
		err = toml.Unmarshal(data, &loaded)
	} else {
		err = json.Unmarshal(data, &loaded)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
