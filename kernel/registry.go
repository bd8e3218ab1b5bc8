package kernel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/autods/agent"
	"github.com/tailored-agentic-units/autods/core/protocol"
	"github.com/tailored-agentic-units/autods/memory"
	"github.com/tailored-agentic-units/autods/observability"
	"github.com/tailored-agentic-units/autods/sandbox"
	"github.com/tailored-agentic-units/autods/session"
)

// Registry owns the live sessions of a process. Each entry is guarded by
// its own semaphore: requests for one session run one at a time and give up
// when their context ends, while different sessions run in parallel.
type Registry struct {
	cfg      Config
	opts     []Option
	agents   *agent.Registry
	observer observability.Observer
	closers  []io.Closer

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

type entry struct {
	sem    chan struct{}
	kernel *Kernel
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithKernelOptions applies opts to every kernel the registry creates,
// after the shared workspace and agent registry.
func WithKernelOptions(opts ...Option) RegistryOption {
	return func(r *Registry) { r.opts = append(r.opts, opts...) }
}

// WithRegistryObserver sets the observer for registry and kernel events.
func WithRegistryObserver(o observability.Observer) RegistryOption {
	return func(r *Registry) { r.observer = o }
}

// NewRegistry creates an empty registry. The workspace and the named
// agents are created once and shared by every session.
func NewRegistry(cfg *Config, opts ...RegistryOption) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Registry{
		cfg:     *cfg,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.observer == nil {
		r.observer = observability.NewSlogObserver(slog.Default())
	}

	r.agents = agent.NewRegistry()
	for name, agentCfg := range cfg.Agents {
		if err := r.agents.Register(name, agentCfg); err != nil {
			return nil, fmt.Errorf("failed to register agent %q: %w", name, err)
		}
	}

	shared := []Option{WithRegistry(r.agents), WithObserver(r.observer)}

	store, err := memory.NewStore(&cfg.Memory)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory store: %w", err)
	}
	if store != nil {
		shared = append(shared, WithWorkspace(memory.NewWorkspace(store)))
		if c, ok := store.(io.Closer); ok {
			r.closers = append(r.closers, c)
		}
	}

	r.opts = append(shared, r.opts...)
	return r, nil
}

// Open returns the session with id, creating it on first use. An empty id
// creates a new session. With a durable session backend an existing
// history is resumed. A session whose sandbox fails to start is not
// registered and the error wraps sandbox.ErrEnvironmentInit.
func (r *Registry) Open(ctx context.Context, id string) (*Kernel, error) {
	if id == "" {
		k, err := r.create(ctx, "")
		if err != nil {
			return nil, err
		}
		e := &entry{sem: make(chan struct{}, 1), kernel: k}

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			k.Close()
			return nil, ErrRegistryClosed
		}
		r.entries[k.ID()] = e
		r.mu.Unlock()
		return k, nil
	}

	var k *Kernel
	err := r.with(ctx, id, true, func(e *entry) error {
		k = e.kernel
		return nil
	})
	return k, err
}

// with runs fn while holding the semaphore of the entry for id. When create
// is set a missing entry is created and its kernel started under the
// semaphore; a failed start removes the entry again.
func (r *Registry) with(ctx context.Context, id string, create bool, fn func(*entry) error) error {
	e, err := r.acquire(ctx, id, create)
	if err != nil {
		return err
	}
	defer func() { <-e.sem }()

	if e.kernel == nil {
		if !create {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		k, err := r.create(ctx, id)
		if err != nil {
			r.mu.Lock()
			if r.entries[id] == e {
				delete(r.entries, id)
			}
			r.mu.Unlock()
			return err
		}
		e.kernel = k
	}
	return fn(e)
}

// acquire returns the entry registered for id with its semaphore held. An
// entry evicted while the caller waited is released and the lookup repeats,
// so a request queued behind Reset or Close reaches the current entry.
func (r *Registry) acquire(ctx context.Context, id string, create bool) (*entry, error) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, ErrRegistryClosed
		}
		e, ok := r.entries[id]
		if !ok {
			if !create {
				r.mu.Unlock()
				return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
			}
			e = &entry{sem: make(chan struct{}, 1)}
			r.entries[id] = e
		}
		r.mu.Unlock()

		select {
		case e.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		r.mu.Lock()
		current := !r.closed && r.entries[id] == e
		r.mu.Unlock()
		if current {
			return e, nil
		}
		<-e.sem
	}
}

func (r *Registry) create(ctx context.Context, id string) (*Kernel, error) {
	sesh, err := session.Open(&r.cfg.Session, id)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	opts := append([]Option{WithSession(sesh)}, r.opts...)
	k, err := New(ctx, &r.cfg, opts...)
	if err != nil {
		if c, ok := sesh.(io.Closer); ok {
			c.Close()
		}
		observability.Emit(ctx, r.observer, EventError, observability.LevelError, "kernel.Registry", map[string]any{
			"session": id,
			"error":   err.Error(),
		})
		return nil, err
	}
	if c, ok := sesh.(io.Closer); ok {
		k.owned = append([]io.Closer{c}, k.owned...)
	}

	observability.Emit(ctx, r.observer, EventSessionOpen, observability.LevelInfo, "kernel.Registry", map[string]any{
		"session": k.ID(),
		"sandbox": r.cfg.Sandbox.Kind,
		"resumed": len(k.Messages()) > 0,
	})
	return k, nil
}

// Get returns the running session with id.
func (r *Registry) Get(ctx context.Context, id string) (*Kernel, error) {
	var k *Kernel
	err := r.with(ctx, id, false, func(e *entry) error {
		k = e.kernel
		return nil
	})
	return k, err
}

// Agents describes the named agents a turn may select with UsingAgent.
func (r *Registry) Agents() []agent.AgentInfo {
	return r.agents.List()
}

// IDs returns the ids of the live sessions, sorted.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.entries))
	for id, e := range r.entries {
		if e.kernel != nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Chat runs a turn in the session with id, creating the session if needed.
func (r *Registry) Chat(ctx context.Context, id, prompt string, fn func(Update), opts ...TurnOption) (*Result, error) {
	var result *Result
	err := r.with(ctx, id, true, func(e *entry) error {
		var err error
		result, err = e.kernel.Stream(ctx, prompt, fn, opts...)
		return err
	})
	return result, err
}

// Bind places value in the sandbox of the session with id, creating the
// session if needed.
func (r *Registry) Bind(ctx context.Context, id, name string, value any) error {
	return r.with(ctx, id, true, func(e *entry) error {
		return e.kernel.Bind(ctx, name, value)
	})
}

// Execute runs code directly in the sandbox of the session with id.
func (r *Registry) Execute(ctx context.Context, id, code string) (sandbox.Result, error) {
	var res sandbox.Result
	err := r.with(ctx, id, true, func(e *entry) error {
		res = e.kernel.Execute(ctx, code)
		return nil
	})
	return res, err
}

// DataState describes the dataset bound in the session with id, or nil.
func (r *Registry) DataState(ctx context.Context, id string) (*sandbox.DataState, error) {
	var state *sandbox.DataState
	err := r.with(ctx, id, false, func(e *entry) error {
		var err error
		state, err = e.kernel.Environment().DataState(ctx)
		return err
	})
	return state, err
}

// Export returns the ordered history of the session with id.
func (r *Registry) Export(ctx context.Context, id string) ([]protocol.Message, error) {
	var msgs []protocol.Message
	err := r.with(ctx, id, false, func(e *entry) error {
		msgs = e.kernel.Messages()
		return nil
	})
	return msgs, err
}

// Notebook renders the session with id as a notebook and saves it to the
// workspace when one is configured.
func (r *Registry) Notebook(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := r.with(ctx, id, false, func(e *entry) error {
		var err error
		data, err = e.kernel.Notebook().JSON()
		if err != nil {
			return err
		}
		if ws := e.kernel.workspace; ws != nil {
			if err := ws.SaveNotebook(ctx, id, data); err != nil {
				return fmt.Errorf("save notebook: %w", err)
			}
		}
		return nil
	})
	return data, err
}

// Reset discards the session with id: its history, transcript and sandbox.
// The next request for id starts fresh.
func (r *Registry) Reset(ctx context.Context, id string) error {
	return r.with(ctx, id, false, func(e *entry) error {
		resetErr := e.kernel.Reset(ctx)
		r.evict(ctx, id, e)
		return resetErr
	})
}

// Close closes and removes the session with id, keeping its stored history.
func (r *Registry) Close(ctx context.Context, id string) error {
	return r.with(ctx, id, false, func(e *entry) error {
		return r.evict(ctx, id, e)
	})
}

func (r *Registry) evict(ctx context.Context, id string, e *entry) error {
	r.mu.Lock()
	if r.entries[id] == e {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	err := e.kernel.Close()
	e.kernel = nil
	observability.Emit(ctx, r.observer, EventSessionClose, observability.LevelInfo, "kernel.Registry", map[string]any{
		"session": id,
	})
	return err
}

// CloseAll closes every session in parallel and the shared stores. The
// registry accepts no further requests.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for id, e := range entries {
		g.Go(func() error {
			select {
			case e.sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-e.sem }()

			if e.kernel == nil {
				return nil
			}
			if err := e.kernel.Close(); err != nil {
				return fmt.Errorf("close %s: %w", id, err)
			}
			e.kernel = nil
			return nil
		})
	}
	err := g.Wait()

	for _, c := range r.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
