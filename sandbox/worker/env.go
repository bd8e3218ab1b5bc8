// Package worker runs code in a long-lived Python subprocess. The process
// keeps one namespace for the lifetime of the session; requests and
// results travel as line-delimited JSON over its stdin and stdout.
package worker

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/autods/observability"
	"github.com/tailored-agentic-units/autods/sandbox"
)

//go:embed worker.py
var workerScript []byte

const (
	EventStart    observability.EventType = "sandbox.worker.start"
	EventRestart  observability.EventType = "sandbox.worker.restart"
	EventRun      observability.EventType = "sandbox.worker.run"
	EventStderr   observability.EventType = "sandbox.worker.stderr"
	EventProtocol observability.EventType = "sandbox.worker.protocol"

	timeoutMsg    = "Execution timed out."
	restartNotice = "The execution environment was restarted; variables defined by earlier code were lost."
)

// Option configures an Environment.
type Option func(*Environment)

// WithObserver sets the observer that receives worker events.
func WithObserver(o observability.Observer) Option {
	return func(e *Environment) { e.observer = o }
}

// WithScript runs the worker from path instead of the embedded script.
func WithScript(path string) Option {
	return func(e *Environment) { e.script = path }
}

type binding struct {
	name  string
	value any
}

// Environment is the subprocess sandbox.
type Environment struct {
	mu       sync.Mutex
	cfg      sandbox.Config
	python   string
	script   string
	tmpDir   string
	proc     *process
	stale    string
	bindings []binding
	dataset  string
	observer observability.Observer
	closed   bool
}

var _ sandbox.Environment = (*Environment)(nil)

// New starts a worker. Any failure to bring it up is reported as
// sandbox.ErrEnvironmentInit.
func New(ctx context.Context, cfg *sandbox.Config, opts ...Option) (*Environment, error) {
	c := sandbox.DefaultConfig()
	c.Merge(cfg)

	e := &Environment{
		cfg:      c,
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}

	python, err := resolvePython(c.Python)
	if err != nil {
		return nil, sandbox.InitError(err)
	}
	e.python = python

	if e.tmpDir, err = os.MkdirTemp("", "autods-worker-"); err != nil {
		return nil, sandbox.InitError(err)
	}
	if e.script == "" {
		e.script = filepath.Join(e.tmpDir, "worker.py")
		if err := os.WriteFile(e.script, workerScript, 0o600); err != nil {
			os.RemoveAll(e.tmpDir)
			return nil, sandbox.InitError(err)
		}
	}

	if e.proc, err = e.start(ctx); err != nil {
		os.RemoveAll(e.tmpDir)
		return nil, sandbox.InitError(err)
	}
	return e, nil
}

func (e *Environment) Language() string { return "python" }

func (e *Environment) start(ctx context.Context) (*process, error) {
	dir := e.cfg.WorkDir
	if dir == "" {
		dir = e.tmpDir
	}
	return startProcess(ctx, e.python, e.script, dir, e.cfg.StartTimeout.Std(), e.observer)
}

// ensure returns a worker that is idle and ready for a new request. A
// request abandoned by a timeout gets InterruptGrace to finish; a worker
// that does not, or that has died, is replaced and the remembered
// bindings are replayed. The returned notice is non-empty after a restart.
func (e *Environment) ensure(ctx context.Context) (string, error) {
	if e.proc != nil && e.stale != "" {
		deadline := time.Now().Add(e.cfg.InterruptGrace.Std())
		err := e.proc.pump(ctx, e.stale, deadline, e.cfg.ReadInterval.Std(), func(message) {})
		if err != nil && e.proc.alive() {
			e.proc.kill()
		}
		e.stale = ""
	}
	if e.proc != nil && e.proc.alive() {
		return "", nil
	}

	reason := "process exited"
	if e.proc != nil && e.proc.err != nil {
		reason = e.proc.err.Error()
	}
	observability.Emit(ctx, e.observer, EventRestart, observability.LevelWarning, "worker.ensure", map[string]any{
		"reason": reason,
	})

	proc, err := e.start(ctx)
	if err != nil {
		e.proc = nil
		return "", err
	}
	e.proc = proc

	notice := restartNotice
	var restored []string
	for _, b := range e.bindings {
		if err := e.bind(ctx, b.name, b.value); err != nil {
			notice += fmt.Sprintf(" Variable %s could not be restored: %v.", b.name, err)
			continue
		}
		restored = append(restored, b.name)
	}
	if len(restored) > 0 {
		notice += fmt.Sprintf(" Bound variables were restored: %s.", strings.Join(restored, ", "))
	}
	return notice, nil
}

// Run executes code in the worker. Timeouts interrupt the worker but leave
// it running, so its namespace survives.
func (e *Environment) Run(ctx context.Context, code string, timeout time.Duration) sandbox.Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	if e.closed {
		return sandbox.Failed(sandbox.ExecutionError, sandbox.ErrClosed.Error(), "")
	}

	notice, err := e.ensure(ctx)
	if err != nil {
		return sandbox.Failed(sandbox.EnvironmentInitError, sandbox.InitError(err).Error(), "")
	}

	result := e.execute(ctx, code, start.Add(timeout))
	result.AddNotice(notice)
	result.Duration = time.Since(start)

	observability.Emit(ctx, e.observer, EventRun, observability.LevelVerbose, "worker.Run", map[string]any{
		"success":  result.Success,
		"kind":     string(result.Kind()),
		"artifact": result.Artifact.Kind.String(),
		"duration": result.Duration,
	})
	return result
}

func (e *Environment) execute(ctx context.Context, code string, deadline time.Time) sandbox.Result {
	id := uuid.NewString()
	if err := e.proc.send(request{ID: id, Op: opExecute, Code: code}); err != nil {
		e.proc.kill()
		return sandbox.Failed(sandbox.ExecutionError, err.Error(), "")
	}

	var (
		stdout  strings.Builder
		failure *sandbox.ExecError
		ex      sandbox.Extractor
	)
	err := e.proc.pump(ctx, id, deadline, e.cfg.ReadInterval.Std(), func(m message) {
		switch m.Type {
		case msgStream:
			stdout.WriteString(m.Text)
		case msgExecuteResult:
			stdout.WriteString(m.Text)
			stdout.WriteByte('\n')
		case msgError:
			failure = m.execError()
		case msgDisplay:
			if m.Artifact != nil {
				ex.Observe(*m.Artifact)
			}
		}
	})

	var result sandbox.Result
	switch {
	case errors.Is(err, errTimeout):
		e.abandon(id)
		result = sandbox.Failed(sandbox.TimeoutError, timeoutMsg, "")
	case errors.Is(err, errExited):
		result = sandbox.Failed(sandbox.ExecutionError, "the execution environment exited unexpectedly: "+err.Error(), "")
	case err != nil:
		e.abandon(id)
		result = sandbox.Failed(sandbox.ExecutionError, "execution cancelled: "+err.Error(), "")
	case failure != nil:
		result = sandbox.Result{Error: failure}
	default:
		result = sandbox.Succeeded("", sandbox.Artifact{})
	}

	result = result.WithStdout(stdout.String())
	ex.Apply(&result)
	return result
}

// abandon interrupts a request the caller stopped waiting for. Its idle
// status is collected by the next ensure.
func (e *Environment) abandon(id string) {
	e.stale = id
	if err := e.proc.interrupt(); err != nil {
		e.proc.kill()
	}
}

// call sends a non-execute request and returns its reply.
func (e *Environment) call(ctx context.Context, req request) (message, error) {
	req.ID = uuid.NewString()
	if err := e.proc.send(req); err != nil {
		e.proc.kill()
		return message{}, err
	}

	var reply message
	deadline := time.Now().Add(e.cfg.TimeoutOrDefault())
	err := e.proc.pump(ctx, req.ID, deadline, e.cfg.ReadInterval.Std(), func(m message) {
		if m.Type == msgReply {
			reply = m
		}
	})
	if err != nil {
		if errors.Is(err, errTimeout) || ctx.Err() != nil {
			e.abandon(req.ID)
		}
		return message{}, fmt.Errorf("%s: %w", req.Op, err)
	}
	if reply.Error != "" {
		return reply, &RemoteError{Op: req.Op, Message: reply.Error}
	}
	return reply, nil
}

func (e *Environment) Bind(ctx context.Context, name string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return sandbox.ErrClosed
	}
	if !sandbox.ValidName(name) {
		return fmt.Errorf("%w: invalid variable name %q", sandbox.ErrUnsupportedValue, name)
	}
	if _, err := e.ensure(ctx); err != nil {
		return err
	}
	if err := e.bind(ctx, name, value); err != nil {
		return err
	}

	e.remember(name, value)
	if ds, ok := value.(*sandbox.Dataset); ok && name == sandbox.DatasetVariable {
		e.dataset = ds.Name
	}
	return nil
}

func (e *Environment) bind(ctx context.Context, name string, value any) error {
	if ds, ok := value.(*sandbox.Dataset); ok {
		path, format, err := e.materialize(name, ds)
		if err != nil {
			return err
		}
		_, err = e.call(ctx, request{Op: opBindDataset, Name: name, Path: path, Format: format})
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %T: %v", sandbox.ErrUnsupportedValue, value, err)
	}
	_, err = e.call(ctx, request{Op: opBind, Name: name, Value: data})
	return err
}

// materialize returns a file the worker can read the dataset from. Tables
// without a readable source file are written as CSV.
func (e *Environment) materialize(name string, ds *sandbox.Dataset) (string, string, error) {
	format := strings.ToLower(ds.Format)
	if ds.Path != "" && (format == "csv" || format == "json") {
		abs, err := filepath.Abs(ds.Path)
		if err != nil {
			return "", "", err
		}
		return abs, format, nil
	}

	path := filepath.Join(e.tmpDir, name+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()
	if err := ds.Frame.WriteCSV(f); err != nil {
		return "", "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, "csv", nil
}

func (e *Environment) remember(name string, value any) {
	for i, b := range e.bindings {
		if b.name == name {
			e.bindings[i].value = value
			return
		}
	}
	e.bindings = append(e.bindings, binding{name: name, value: value})
}

func (e *Environment) Lookup(ctx context.Context, name string) (any, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, false, sandbox.ErrClosed
	}
	if _, err := e.ensure(ctx); err != nil {
		return nil, false, err
	}

	reply, err := e.call(ctx, request{Op: opLookup, Name: name})
	if err != nil || !reply.Found {
		return nil, false, err
	}
	var value any
	if len(reply.Value) > 0 {
		if err := json.Unmarshal(reply.Value, &value); err != nil {
			return nil, false, fmt.Errorf("decode %s: %w", name, err)
		}
	}
	return value, true, nil
}

func (e *Environment) DataState(ctx context.Context) (*sandbox.DataState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, sandbox.ErrClosed
	}
	if _, err := e.ensure(ctx); err != nil {
		return nil, err
	}

	reply, err := e.call(ctx, request{Op: opDescribe, Name: sandbox.DatasetVariable})
	if err != nil || !reply.Found {
		return nil, err
	}
	state := &sandbox.DataState{}
	if err := json.Unmarshal(reply.Value, state); err != nil {
		return nil, fmt.Errorf("decode data state: %w", err)
	}
	state.Variable = sandbox.DatasetVariable
	state.Source = e.dataset
	return state, nil
}

// Ping checks that the worker answers requests.
func (e *Environment) Ping(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return sandbox.ErrClosed
	}
	if _, err := e.ensure(ctx); err != nil {
		return err
	}
	_, err := e.call(ctx, request{Op: opPing})
	return err
}

func (e *Environment) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	if e.proc != nil {
		e.proc.kill()
		e.proc = nil
	}
	return os.RemoveAll(e.tmpDir)
}
