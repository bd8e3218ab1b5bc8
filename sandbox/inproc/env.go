// Package inproc runs code in an embedded Starlark interpreter. Each
// Environment owns one set of module globals that persists across runs, so
// a name bound by one execution is visible to the next.
//
// The namespace is pre-seeded with a table library (frame), a plotting
// library (plot), json and math. A table bound with Bind appears as a
// frame table value.
package inproc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/tailored-agentic-units/autods/observability"
	"github.com/tailored-agentic-units/autods/sandbox"
)

const (
	// EventRun is emitted after every execution.
	EventRun observability.EventType = "sandbox.inproc.run"

	envName       = "__env__"
	timeoutMsg    = "Execution timed out."
	figuresLocal  = "figures"
	cellFilename  = "<cell>"
	probeFilename = "<probe>"
)

// cellOptions enables the Python constructs analysis code relies on. They
// apply to cells parsed here only, not to other starlark users.
var cellOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Option configures an Environment.
type Option func(*Environment)

// WithObserver sets the observer that receives run events.
func WithObserver(o observability.Observer) Option {
	return func(e *Environment) { e.observer = o }
}

// Environment is the in-process sandbox.
type Environment struct {
	mu       sync.Mutex
	globals  starlark.StringDict
	builtins starlark.StringDict
	reported *Figure
	pending  *figureRecorder
	maxSteps uint64
	observer observability.Observer
	closed   bool
}

// New creates an empty environment with the pre-seeded libraries.
func New(cfg *sandbox.Config, opts ...Option) (*Environment, error) {
	e := &Environment{
		globals:  make(starlark.StringDict),
		builtins: predeclared(),
		maxSteps: cfg.MaxSteps,
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

var _ sandbox.Environment = (*Environment)(nil)

func (e *Environment) Language() string { return "python" }

func (e *Environment) Bind(_ context.Context, name string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return sandbox.ErrClosed
	}
	if !sandbox.ValidName(name) {
		return fmt.Errorf("%w: invalid variable name %q", sandbox.ErrUnsupportedValue, name)
	}

	v, err := fromGo(value)
	if err != nil {
		return fmt.Errorf("bind %s: %w", name, err)
	}
	e.globals[name] = v
	return nil
}

func (e *Environment) Lookup(_ context.Context, name string) (any, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, false, sandbox.ErrClosed
	}
	v, ok := e.globals[name]
	if !ok {
		return nil, false, nil
	}
	return toGo(v), true, nil
}

func (e *Environment) DataState(_ context.Context) (*sandbox.DataState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, sandbox.ErrClosed
	}
	t, ok := e.globals[sandbox.DatasetVariable].(*Table)
	if !ok {
		return nil, nil
	}
	return t.state(sandbox.DatasetVariable), nil
}

func (e *Environment) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	e.globals = nil
	return nil
}

// Run executes code against the persistent globals. Bindings made before a
// failure are kept, matching interpreter semantics.
func (e *Environment) Run(ctx context.Context, code string, timeout time.Duration) sandbox.Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	if e.closed {
		return sandbox.Failed(sandbox.ExecutionError, sandbox.ErrClosed.Error(), "")
	}

	result := e.execute(ctx, code, timeout)
	e.probe(&result)
	result.Duration = time.Since(start)

	observability.Emit(ctx, e.observer, EventRun, observability.LevelVerbose, "inproc.Run", map[string]any{
		"success":  result.Success,
		"kind":     string(result.Kind()),
		"artifact": result.Artifact.Kind.String(),
		"duration": result.Duration,
	})
	return result
}

func (e *Environment) execute(ctx context.Context, code string, timeout time.Duration) (result sandbox.Result) {
	var out strings.Builder
	defer func() {
		if r := recover(); r != nil {
			result = sandbox.Failed(sandbox.ExecutionError, fmt.Sprintf("internal interpreter error: %v", r), "").WithStdout(out.String())
		}
	}()

	thread := &starlark.Thread{
		Name: "cell",
		Print: func(_ *starlark.Thread, msg string) {
			out.WriteString(msg)
			out.WriteByte('\n')
		},
	}
	if e.maxSteps > 0 {
		thread.SetMaxExecutionSteps(e.maxSteps)
	}
	recorder := &figureRecorder{}
	thread.SetLocal(figuresLocal, recorder)

	f, err := cellOptions.Parse(cellFilename, code, 0)
	if err != nil {
		return sandbox.Failed(sandbox.ExecutionError, "SyntaxError: "+err.Error(), "")
	}

	env, err := e.prologue(f)
	if err != nil {
		return sandbox.Failed(sandbox.ExecutionError, err.Error(), "")
	}

	predeclared := make(starlark.StringDict, len(e.builtins)+1)
	for k, v := range e.builtins {
		predeclared[k] = v
	}
	predeclared[envName] = env

	prog, err := starlark.FileProgram(f, predeclared.Has)
	if err != nil {
		return sandbox.Failed(sandbox.ExecutionError, "NameError: "+err.Error(), "")
	}

	var timedOut atomic.Bool
	timer := time.AfterFunc(timeout, func() {
		timedOut.Store(true)
		thread.Cancel("timeout")
	})
	stop := context.AfterFunc(ctx, func() { thread.Cancel("cancelled") })

	globals, runErr := prog.Init(thread, predeclared)

	timer.Stop()
	stop()

	for k, v := range globals {
		e.globals[k] = v
	}
	e.pending = recorder

	stdout := out.String()
	switch {
	case runErr == nil:
		return sandbox.Succeeded(stdout, sandbox.Artifact{})
	case timedOut.Load():
		return sandbox.Failed(sandbox.TimeoutError, timeoutMsg, "").WithStdout(stdout)
	case ctx.Err() != nil:
		return sandbox.Failed(sandbox.ExecutionError, "execution cancelled: "+ctx.Err().Error(), "").WithStdout(stdout)
	}

	var evalErr *starlark.EvalError
	if errors.As(runErr, &evalErr) {
		return sandbox.Failed(sandbox.ExecutionError, evalErr.Msg, evalErr.Backtrace()).WithStdout(stdout)
	}
	return sandbox.Failed(sandbox.ExecutionError, runErr.Error(), "").WithStdout(stdout)
}

// prologue rebinds every persistent global the chunk mentions as a global of
// the chunk itself, so code such as `df = df.head()` reads the previous
// value before rebinding it.
func (e *Environment) prologue(f *syntax.File) (*starlark.Dict, error) {
	referenced := make(map[string]bool)
	walkIdents(f, func(id *syntax.Ident) {
		if _, bound := e.globals[id.Name]; bound {
			referenced[id.Name] = true
		}
	})

	env := starlark.NewDict(len(referenced))
	if len(referenced) == 0 {
		return env, nil
	}

	names := make([]string, 0, len(referenced))
	for name := range referenced {
		names = append(names, name)
	}
	sort.Strings(names)

	var src strings.Builder
	for _, name := range names {
		if err := env.SetKey(starlark.String(name), e.globals[name]); err != nil {
			return nil, err
		}
		fmt.Fprintf(&src, "%s = %s[%q]\n", name, envName, name)
	}

	pro, err := cellOptions.Parse("<prologue>", src.String(), 0)
	if err != nil {
		return nil, fmt.Errorf("rebind globals: %w", err)
	}
	f.Stmts = append(pro.Stmts, f.Stmts...)
	return env, nil
}

// walkIdents calls fn for every identifier under n. syntax.Walk does not
// descend into while loops, so those are walked here.
func walkIdents(n syntax.Node, fn func(*syntax.Ident)) {
	syntax.Walk(n, func(n syntax.Node) bool {
		switch n := n.(type) {
		case *syntax.Ident:
			fn(n)
		case *syntax.WhileStmt:
			walkIdents(n.Cond, fn)
			for _, stmt := range n.Body {
				walkIdents(stmt, fn)
			}
			return false
		}
		return true
	})
}

// probe performs the single artifact capability check for a run: a new
// figure bound to the figure variable exports JSON; otherwise the last
// figure drawn during the run is rasterized.
func (e *Environment) probe(result *sandbox.Result) {
	var ex sandbox.Extractor
	defer func() {
		ex.Apply(result)
		e.pending = nil
	}()

	if v, ok := e.globals[sandbox.FigureVariable]; ok {
		if data, exported, err := e.exportFigure(v); exported {
			if err != nil {
				ex.Fail(err)
			} else {
				ex.Structured(data)
			}
			return
		}
	}

	if e.pending == nil {
		return
	}
	if fig := e.pending.last(); fig != nil {
		png, err := fig.render()
		if err != nil {
			ex.Fail(err)
			return
		}
		ex.Raster(png)
	}
}

// exportFigure calls to_json on v when v offers it and has not been
// reported before.
func (e *Environment) exportFigure(v starlark.Value) ([]byte, bool, error) {
	if fig, ok := v.(*Figure); ok {
		if fig == e.reported {
			return nil, false, nil
		}
		e.reported = fig
	}

	attrs, ok := v.(starlark.HasAttrs)
	if !ok {
		return nil, false, nil
	}
	method, err := attrs.Attr("to_json")
	if err != nil || method == nil {
		return nil, false, nil
	}
	callable, ok := method.(starlark.Callable)
	if !ok {
		return nil, false, nil
	}

	out, err := starlark.Call(&starlark.Thread{Name: probeFilename}, callable, nil, nil)
	if err != nil {
		return nil, true, err
	}
	s, ok := starlark.AsString(out)
	if !ok {
		return nil, true, fmt.Errorf("to_json returned %s, want string", out.Type())
	}
	return []byte(s), true, nil
}
