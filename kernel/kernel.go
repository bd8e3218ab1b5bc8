// Package kernel implements the per-session turn loop that composes the
// agent, the code sandbox, the tool-call parser, the session history and
// the workspace into the think/act/observe/refine cycle.
//
// The kernel initializes from configuration via New, creating every
// subsystem the options did not supply.
//
//	k, err := kernel.New(ctx, &cfg)
//	result, err := k.Run(ctx, "Which region sold the most units?")
package kernel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tailored-agentic-units/autods/agent"
	"github.com/tailored-agentic-units/autods/core/protocol"
	"github.com/tailored-agentic-units/autods/memory"
	"github.com/tailored-agentic-units/autods/notebook"
	"github.com/tailored-agentic-units/autods/observability"
	"github.com/tailored-agentic-units/autods/sandbox"
	"github.com/tailored-agentic-units/autods/session"
	"github.com/tailored-agentic-units/autods/tools"
)

// Option configures a Kernel. Subsystems supplied by options replace the
// ones New would create from configuration.
type Option func(*Kernel)

// WithAgent overrides the config-created agent.
func WithAgent(a agent.Agent) Option {
	return func(k *Kernel) { k.agent = a }
}

// WithRegistry overrides the config-created agent registry.
func WithRegistry(r *agent.Registry) Option {
	return func(k *Kernel) { k.agents = r }
}

// WithSession overrides the config-created session.
func WithSession(s session.Session) Option {
	return func(k *Kernel) { k.session = s }
}

// WithEnvironment overrides the config-created sandbox. The kernel takes
// ownership and closes it.
func WithEnvironment(env sandbox.Environment) Option {
	return func(k *Kernel) {
		k.env = env
		k.owned = append(k.owned, env)
	}
}

// WithWorkspace shares a workspace between kernels. The kernel does not
// close it.
func WithWorkspace(w *memory.Workspace) Option {
	return func(k *Kernel) { k.workspace = w }
}

// WithParser overrides the config-selected tool-call parser.
func WithParser(p tools.Parser) Option {
	return func(k *Kernel) { k.parser = p }
}

// WithObserver overrides the default SlogObserver.
func WithObserver(o observability.Observer) Option {
	return func(k *Kernel) { k.observer = o }
}

// Kernel runs the turn loop of one session. Turns are serialized; the
// kernel is safe for concurrent use.
type Kernel struct {
	agent     agent.Agent
	agents    *agent.Registry
	session   session.Session
	env       sandbox.Environment
	workspace *memory.Workspace
	parser    tools.Parser
	observer  observability.Observer

	maxIterations int
	maxRetries    int
	timeout       time.Duration
	systemPrompt  string
	stream        bool

	owned []io.Closer

	turn    sync.Mutex
	stateMu sync.RWMutex
	state   State
}

// New creates a Kernel from configuration. A sandbox that cannot start is
// reported as sandbox.ErrEnvironmentInit and nothing is left running.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	k := &Kernel{
		maxIterations: cfg.MaxIterations,
		maxRetries:    cfg.MaxRetries,
		timeout:       cfg.Sandbox.TimeoutOrDefault(),
		systemPrompt:  cfg.SystemPrompt,
		stream:        cfg.Stream,
	}

	for _, opt := range opts {
		opt(k)
	}

	if err := k.init(ctx, cfg); err != nil {
		k.Close()
		return nil, err
	}
	return k, nil
}

func (k *Kernel) init(ctx context.Context, cfg *Config) error {
	if k.observer == nil {
		k.observer = observability.NewSlogObserver(slog.Default())
	}

	if k.agent == nil {
		a, err := agent.New(&cfg.Agent)
		if err != nil {
			return fmt.Errorf("failed to create agent: %w", err)
		}
		k.agent = a
	}

	if k.agents == nil {
		reg := agent.NewRegistry()
		for name, agentCfg := range cfg.Agents {
			if err := reg.Register(name, agentCfg); err != nil {
				return fmt.Errorf("failed to register agent %q: %w", name, err)
			}
		}
		k.agents = reg
	}

	if k.session == nil {
		sesh, err := session.New(&cfg.Session)
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		k.session = sesh
		if c, ok := sesh.(io.Closer); ok {
			k.owned = append(k.owned, c)
		}
	}

	if k.workspace == nil {
		store, err := memory.NewStore(&cfg.Memory)
		if err != nil {
			return fmt.Errorf("failed to create memory store: %w", err)
		}
		if store != nil {
			k.workspace = memory.NewWorkspace(store)
			if c, ok := store.(io.Closer); ok {
				k.owned = append(k.owned, c)
			}
		}
	}

	if k.env == nil {
		env, err := NewEnvironment(ctx, &cfg.Sandbox, k.observer)
		if err != nil {
			return err
		}
		k.env = env
		k.owned = append(k.owned, env)
	}

	if k.parser == nil {
		k.parser = newParser(cfg, k.env.Language())
	}
	return nil
}

func newParser(cfg *Config, language string) tools.Parser {
	var opts []tools.Option
	if cfg.SyntaxCheck && language == "python" {
		opts = append(opts, tools.WithSyntaxCheck(tools.PythonSyntax))
	}
	return tools.New(cfg.Protocol, language, opts...)
}

// ID returns the session identifier.
func (k *Kernel) ID() string { return k.session.ID() }

// Registry returns the kernel's agent registry.
func (k *Kernel) Registry() *agent.Registry {
	return k.agents
}

// Environment returns the session sandbox.
func (k *Kernel) Environment() sandbox.Environment { return k.env }

// State returns the current loop state.
func (k *Kernel) State() State {
	k.stateMu.RLock()
	defer k.stateMu.RUnlock()
	return k.state
}

func (k *Kernel) setState(ctx context.Context, s State) {
	k.stateMu.Lock()
	prev := k.state
	k.state = s
	k.stateMu.Unlock()

	if prev != s {
		k.emit(ctx, EventState, observability.LevelVerbose, map[string]any{
			"from": prev.String(),
			"to":   s.String(),
		})
	}
}

// Messages returns the ordered conversation history.
func (k *Kernel) Messages() []protocol.Message {
	return k.session.Messages()
}

// Notebook renders the history as a notebook, leaving out retry prompts.
func (k *Kernel) Notebook() *notebook.Notebook {
	return notebook.Build(k.session.ID(), k.session.Messages(),
		notebook.WithParser(k.parser),
		notebook.WithRequestFilter(func(m protocol.Message) bool { return !IsRetryPrompt(m) }),
	)
}

// Bind places value in the sandbox under name. It waits for any running
// turn to finish.
func (k *Kernel) Bind(ctx context.Context, name string, value any) error {
	k.turn.Lock()
	defer k.turn.Unlock()

	if err := k.env.Bind(ctx, name, value); err != nil {
		return fmt.Errorf("bind %s: %w", name, err)
	}
	return nil
}

// Execute runs code in the sandbox outside of any turn. Nothing is added to
// the history.
func (k *Kernel) Execute(ctx context.Context, code string) sandbox.Result {
	k.turn.Lock()
	defer k.turn.Unlock()

	return k.env.Run(observability.WithSession(ctx, k.ID()), code, k.timeout)
}

// Reset clears the history and the saved transcript. Sandbox variables are
// kept.
func (k *Kernel) Reset(ctx context.Context) error {
	k.turn.Lock()
	defer k.turn.Unlock()

	k.session.Clear()
	k.setState(ctx, Idle)
	if k.workspace != nil {
		if err := k.workspace.Forget(ctx, k.ID()); err != nil {
			return fmt.Errorf("reset %s: %w", k.ID(), err)
		}
	}
	return nil
}

// Close releases the sandbox and every store the kernel created.
func (k *Kernel) Close() error {
	var errs []error
	for i := len(k.owned) - 1; i >= 0; i-- {
		if err := k.owned[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	k.owned = nil
	return errors.Join(errs...)
}

func (k *Kernel) emit(ctx context.Context, typ observability.EventType, level observability.Level, data map[string]any) {
	observability.Emit(ctx, k.observer, typ, level, "kernel", data)
}
