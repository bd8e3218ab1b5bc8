package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/tailored-agentic-units/autods/observability"
)

const (
	maxMessageSize = 64 * 1024 * 1024
	messageBuffer  = 256
)

// process is one running worker. Messages read from its stdout arrive on
// msgs; exited is closed once the process is gone and err is set.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	msgs   chan message
	exited chan struct{}
	err    error

	stop     chan struct{}
	stopOnce sync.Once

	observer observability.Observer
}

func startProcess(ctx context.Context, python, script, dir string, startTimeout time.Duration, obs observability.Observer) (*process, error) {
	cmd := exec.Command(python, "-u", script)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1", "MPLBACKEND=Agg")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &process{
		cmd:      cmd,
		stdin:    stdin,
		msgs:     make(chan message, messageBuffer),
		exited:   make(chan struct{}),
		stop:     make(chan struct{}),
		observer: obs,
	}

	var pipes sync.WaitGroup
	pipes.Add(2)
	go func() {
		defer pipes.Done()
		p.readLoop(ctx, stdout)
	}()
	go func() {
		defer pipes.Done()
		p.stderrLoop(ctx, stderr)
	}()
	go p.waitLoop(&pipes)

	timer := time.NewTimer(startTimeout)
	defer timer.Stop()

	for {
		select {
		case m := <-p.msgs:
			if m.Type == msgReady {
				observability.Emit(ctx, obs, EventStart, observability.LevelInfo, "worker.start", map[string]any{
					"pid": cmd.Process.Pid,
				})
				return p, nil
			}
		case <-p.exited:
			return nil, fmt.Errorf("worker exited during startup: %w", p.err)
		case <-timer.C:
			p.kill()
			return nil, fmt.Errorf("worker not ready after %s", startTimeout)
		case <-ctx.Done():
			p.kill()
			return nil, ctx.Err()
		}
	}
}

func (p *process) readLoop(ctx context.Context, stdout io.Reader) {
	reader := bufio.NewReader(stdout)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > maxMessageSize {
			observability.Emit(ctx, p.observer, EventProtocol, observability.LevelWarning, "worker.readLoop", map[string]any{
				"error": "message too large",
				"size":  len(line),
			})
			p.terminate()
			return
		}
		if len(strings.TrimSpace(string(line))) > 0 {
			var m message
			if jerr := json.Unmarshal(line, &m); jerr != nil {
				observability.Emit(ctx, p.observer, EventProtocol, observability.LevelWarning, "worker.readLoop", map[string]any{
					"error": jerr.Error(),
				})
			} else {
				select {
				case p.msgs <- m:
				case <-p.stop:
					return
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func (p *process) stderrLoop(ctx context.Context, stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		observability.Emit(ctx, p.observer, EventStderr, observability.LevelVerbose, "worker.stderr", map[string]any{
			"message": line,
		})
	}
}

func (p *process) waitLoop(pipes *sync.WaitGroup) {
	pipes.Wait()
	err := p.cmd.Wait()
	if err == nil {
		err = errors.New("process exited")
	}
	p.err = err
	close(p.exited)
}

func (p *process) alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

func (p *process) send(req request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if _, err := p.stdin.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// interrupt raises KeyboardInterrupt inside the worker.
func (p *process) interrupt() error {
	return p.cmd.Process.Signal(os.Interrupt)
}

func (p *process) terminate() {
	p.stopOnce.Do(func() { close(p.stop) })
	_ = p.stdin.Close()
	_ = p.cmd.Process.Kill()
}

// kill terminates the process and waits for it to be reaped.
func (p *process) kill() {
	p.terminate()
	select {
	case <-p.exited:
	case <-time.After(5 * time.Second):
	}
}

// pump delivers the messages of request id to handle until the worker
// reports idle for it. Messages for other ids are stale and dropped. Each
// wait is bounded by interval and the whole pump by deadline.
func (p *process) pump(ctx context.Context, id string, deadline time.Time, interval time.Duration, handle func(message)) error {
	for {
		wait := min(interval, time.Until(deadline))
		if wait <= 0 {
			return errTimeout
		}
		timer := time.NewTimer(wait)

		select {
		case m := <-p.msgs:
			timer.Stop()
			if m.ID != id {
				continue
			}
			if m.idle() {
				return nil
			}
			handle(m)
		case <-timer.C:
		case <-p.exited:
			timer.Stop()
			return p.drain(id, handle)
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// drain delivers messages buffered before the process exited.
func (p *process) drain(id string, handle func(message)) error {
	for {
		select {
		case m := <-p.msgs:
			if m.ID != id {
				continue
			}
			if m.idle() {
				return nil
			}
			handle(m)
		default:
			return fmt.Errorf("%w: %v", errExited, p.err)
		}
	}
}

func resolvePython(configured string) (string, error) {
	if configured != "" {
		return exec.LookPath(configured)
	}
	if path, err := exec.LookPath("python3"); err == nil {
		return path, nil
	}
	if path, err := exec.LookPath("python"); err == nil {
		return path, nil
	}
	return "", errors.New("python not found in PATH")
}
