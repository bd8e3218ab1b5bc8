package kernel

import (
	"context"
	"fmt"

	"github.com/tailored-agentic-units/autods/observability"
	"github.com/tailored-agentic-units/autods/sandbox"
	"github.com/tailored-agentic-units/autods/sandbox/inproc"
	"github.com/tailored-agentic-units/autods/sandbox/worker"
)

// NewEnvironment starts the sandbox selected by cfg.Kind. Kernels call it
// for every session; the CLI uses it for one-off runs.
func NewEnvironment(ctx context.Context, cfg *sandbox.Config, obs observability.Observer) (sandbox.Environment, error) {
	switch cfg.Kind {
	case sandbox.KindInProcess, "":
		env, err := inproc.New(cfg, inproc.WithObserver(obs))
		if err != nil {
			return nil, sandbox.InitError(err)
		}
		return env, nil
	case sandbox.KindWorker:
		env, err := worker.New(ctx, cfg, worker.WithObserver(obs))
		if err != nil {
			return nil, err
		}
		return env, nil
	default:
		return nil, sandbox.InitError(fmt.Errorf("unknown sandbox kind %q", cfg.Kind))
	}
}
