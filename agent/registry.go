package agent

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/tailored-agentic-units/autods/core/config"
	"github.com/tailored-agentic-units/autods/core/protocol"
)

// AgentInfo describes a configured agent as clients see it when choosing
// one for a turn.
type AgentInfo struct {
	Name      string              `json:"name"`
	Provider  string              `json:"provider,omitempty"`
	Model     string              `json:"model,omitempty"`
	Protocols []protocol.Protocol `json:"protocols,omitempty"`
}

// Registry holds the named agents a turn may select instead of the
// session's default. Agents are built on first use and then shared by
// every session, so one provider client serves all of them.
type Registry struct {
	mu      sync.Mutex
	configs map[string]config.AgentConfig
	agents  map[string]Agent
}

func NewRegistry() *Registry {
	return &Registry{
		configs: make(map[string]config.AgentConfig),
		agents:  make(map[string]Agent),
	}
}

// Register adds a named configuration. Nothing is dialed until the agent
// is first selected.
func (r *Registry) Register(name string, cfg config.AgentConfig) error {
	if name == "" {
		return ErrEmptyAgentName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.configs[name]; exists {
		return fmt.Errorf("%w: %s", ErrAgentExists, name)
	}
	r.configs[name] = cfg
	return nil
}

// Get returns the named agent, building it on first access.
func (r *Registry) Get(name string) (Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(name)
}

func (r *Registry) get(name string) (Agent, error) {
	cfg, registered := r.configs[name]
	if !registered {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	if a, ok := r.agents[name]; ok {
		return a, nil
	}

	a, err := New(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent %q: %w", name, err)
	}
	r.agents[name] = a
	return a, nil
}

// Resolve picks the agent for one turn: fallback when name is empty,
// otherwise the named agent. A named agent that declares protocols must
// declare p, the wire protocol of the session it would serve.
func (r *Registry) Resolve(name string, p protocol.Protocol, fallback Agent) (Agent, error) {
	if name == "" {
		return fallback, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cfg, ok := r.configs[name]; ok {
		if declared := protocols(&cfg); len(declared) > 0 && !slices.Contains(declared, p) {
			return nil, fmt.Errorf("%w: %s does not declare %s", ErrProtocolUnsupported, name, p)
		}
	}
	return r.get(name)
}

// List describes every registered agent, sorted by name.
func (r *Registry) List() []AgentInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]AgentInfo, 0, len(r.configs))
	for name, cfg := range r.configs {
		info := AgentInfo{Name: name, Protocols: protocols(&cfg)}
		if cfg.Provider != nil {
			info.Provider = cfg.Provider.Name
		}
		if cfg.Model != nil {
			info.Model = cfg.Model.Name
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// protocols reads the valid protocol keys of the model capabilities.
func protocols(cfg *config.AgentConfig) []protocol.Protocol {
	if cfg.Model == nil {
		return nil
	}

	var out []protocol.Protocol
	for key := range cfg.Model.Capabilities {
		if protocol.IsValid(key) {
			out = append(out, protocol.Protocol(key))
		}
	}
	slices.Sort(out)
	return out
}
