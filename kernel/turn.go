package kernel

import (
	"context"
	"fmt"
	"strings"

	"github.com/tailored-agentic-units/autods/agent"
	"github.com/tailored-agentic-units/autods/core/protocol"
	"github.com/tailored-agentic-units/autods/core/response"
	"github.com/tailored-agentic-units/autods/observability"
	"github.com/tailored-agentic-units/autods/sandbox"
	"github.com/tailored-agentic-units/autods/tools"
)

// TurnOption adjusts a single turn.
type TurnOption func(*turnConfig)

type turnConfig struct {
	agentName string
}

// UsingAgent answers the turn with the named agent from the registry
// instead of the default agent.
func UsingAgent(name string) TurnOption {
	return func(c *turnConfig) { c.agentName = name }
}

// Run executes one turn for prompt and returns its result.
func (k *Kernel) Run(ctx context.Context, prompt string, opts ...TurnOption) (*Result, error) {
	return k.Stream(ctx, prompt, nil, opts...)
}

// Stream executes one turn for prompt, publishing every step to fn.
//
// The turn ends with a final answer, a max-retries notice (ErrMaxRetries),
// a max-steps notice (ErrMaxIterations) or a model call failure
// (*ModelCallError). Notices are appended to the history as assistant
// messages; the history after a failure still holds every attempt.
func (k *Kernel) Stream(ctx context.Context, prompt string, fn func(Update), opts ...TurnOption) (*Result, error) {
	k.turn.Lock()
	defer k.turn.Unlock()

	var tc turnConfig
	for _, opt := range opts {
		opt(&tc)
	}

	ctx = observability.WithSession(ctx, k.ID())
	t := &turn{k: k, publish: fn, result: &Result{}}
	if t.publish == nil {
		t.publish = func(Update) {}
	}

	a, err := k.agents.Resolve(tc.agentName, k.parser.Protocol(), k.agent)
	if err != nil {
		t.result.Outcome = OutcomeError
		return t.result, fmt.Errorf("resolve agent: %w", err)
	}
	t.agent = a

	k.session.AddMessage(protocol.NewMessage(protocol.RoleUser, prompt))

	k.emit(ctx, EventTurnStart, observability.LevelInfo, map[string]any{
		"prompt_length":  len(prompt),
		"agent":          a.Name(),
		"protocol":       string(k.parser.Protocol()),
		"max_iterations": k.maxIterations,
		"max_retries":    k.maxRetries,
	})

	result, err := t.loop(ctx)

	k.snapshot(ctx)
	k.setState(ctx, Idle)

	data := map[string]any{
		"outcome":    string(result.Outcome),
		"iterations": result.Iterations,
		"retries":    result.Retries,
		"executions": len(result.Executions),
	}
	if err != nil {
		data["error"] = err.Error()
	}
	k.emit(ctx, EventTurnComplete, observability.LevelInfo, data)
	return result, err
}

// snapshot saves the transcript to the workspace. A failed save is logged;
// the turn result stands.
func (k *Kernel) snapshot(ctx context.Context) {
	if k.workspace == nil {
		return
	}
	if err := k.workspace.Snapshot(ctx, k.ID(), k.session.Messages()); err != nil {
		k.emit(ctx, EventError, observability.LevelWarning, map[string]any{
			"error": err.Error(),
			"stage": "snapshot",
		})
	}
}

type turn struct {
	k       *Kernel
	agent   agent.Agent
	publish func(Update)
	result  *Result
	retries int
}

func (t *turn) loop(ctx context.Context) (*Result, error) {
	k := t.k
	for iteration := 1; ; iteration++ {
		if k.maxIterations > 0 && iteration > k.maxIterations {
			return t.giveUp(ctx, OutcomeMaxSteps, maxStepsNotice, ErrMaxIterations)
		}
		t.result.Iterations = iteration

		k.setState(ctx, Thinking)
		k.emit(ctx, EventIterationStart, observability.LevelVerbose, map[string]any{"iteration": iteration})
		t.publish(Update{Type: UpdateThinking, Iteration: iteration})

		msg, err := t.think(ctx, iteration)
		if err != nil {
			k.setState(ctx, Failed)
			t.result.Outcome = OutcomeError
			k.emit(ctx, EventError, observability.LevelError, map[string]any{
				"iteration": iteration,
				"error":     err.Error(),
			})
			t.publish(Update{Type: UpdateError, Content: err.Error(), Iteration: iteration, Outcome: OutcomeError})
			return t.result, err
		}
		k.session.AddMessage(msg)

		invocations := k.parser.Parse(msg)
		if len(invocations) == 0 {
			if text := strings.TrimSpace(msg.Text()); text != "" {
				return t.answer(ctx, msg.Text())
			}
			if t.fail(ctx, iteration) {
				return t.giveUp(ctx, OutcomeMaxRetries,
					fmt.Sprintf(maxRetriesNotice, t.retries, "the model returned an empty reply"), ErrMaxRetries)
			}
			k.session.AddMessage(retryMessage(emptyNudge))
			continue
		}

		var failures []string
		for _, inv := range invocations {
			res := t.act(ctx, iteration, inv)
			if !res.Success {
				t.retries++
				failures = append(failures, describeFailure(res))
			}
		}

		if len(failures) == 0 {
			continue
		}
		if t.retries > k.maxRetries {
			return t.giveUp(ctx, OutcomeMaxRetries,
				fmt.Sprintf(maxRetriesNotice, k.maxRetries+1, failures[len(failures)-1]), ErrMaxRetries)
		}
		k.emit(ctx, EventRetry, observability.LevelInfo, map[string]any{
			"iteration": iteration,
			"retries":   t.retries,
			"failures":  len(failures),
		})
		k.session.AddMessage(retryMessage(reflectionPrompt(failures)))
	}
}

// think calls the model with the current history.
func (t *turn) think(ctx context.Context, iteration int) (protocol.Message, error) {
	k := t.k
	messages := k.buildMessages(k.systemContent(ctx))
	schema := k.parser.Tools()

	var (
		resp *response.ToolsResponse
		err  error
	)
	if k.stream {
		resp, err = t.agent.ToolsStream(ctx, messages, schema, func(delta string) {
			t.publish(Update{Type: UpdateDelta, Content: delta, Iteration: iteration})
		})
	} else {
		resp, err = t.agent.Tools(ctx, messages, schema)
	}
	if err != nil {
		return protocol.Message{}, &ModelCallError{Agent: t.agent.Name(), Iteration: iteration, Err: err}
	}

	msg, ok := resp.Message()
	if !ok {
		return protocol.Message{}, &ModelCallError{Agent: t.agent.Name(), Iteration: iteration, Err: ErrEmptyResponse}
	}
	if msg.Content == nil {
		msg.Content = ""
	}
	return msg, nil
}

// act runs one invocation and appends its observation.
func (t *turn) act(ctx context.Context, iteration int, inv tools.Invocation) sandbox.Result {
	k := t.k
	k.setState(ctx, ToolExecuting)
	k.emit(ctx, EventExecution, observability.LevelVerbose, map[string]any{
		"iteration": iteration,
		"call_id":   inv.ID,
		"tool":      inv.Name,
	})
	t.publish(Update{
		Type:        UpdateExecution,
		Iteration:   iteration,
		CallID:      inv.ID,
		Code:        inv.Code,
		Description: inv.Description,
	})

	var res sandbox.Result
	if inv.Failed() {
		res = sandbox.Failed(sandbox.ParseError, inv.Err.Error(), "")
	} else {
		res = k.env.Run(ctx, inv.Code, k.timeout)
	}

	k.setState(ctx, Observing)
	observation := Observation(res)
	k.session.AddMessage(protocol.Message{
		Role:       protocol.RoleTool,
		Content:    observation,
		ToolCallID: inv.ID,
	})

	k.emit(ctx, EventObservation, observability.LevelVerbose, map[string]any{
		"iteration": iteration,
		"call_id":   inv.ID,
		"success":   res.Success,
		"kind":      string(res.Kind()),
		"artifact":  res.Artifact.Kind.String(),
		"duration":  res.Duration,
	})
	t.publish(Update{
		Type:      UpdateResult,
		Content:   observation,
		Iteration: iteration,
		CallID:    inv.ID,
		Result:    &res,
	})

	t.result.Executions = append(t.result.Executions, Execution{
		CallID:      inv.ID,
		Code:        inv.Code,
		Description: inv.Description,
		Iteration:   iteration,
		Result:      res,
	})
	return res
}

// fail counts a failure that produced no execution and reports whether
// the retry budget is spent.
func (t *turn) fail(ctx context.Context, iteration int) bool {
	t.retries++
	t.k.emit(ctx, EventRetry, observability.LevelInfo, map[string]any{
		"iteration": iteration,
		"retries":   t.retries,
		"reason":    "empty reply",
	})
	return t.retries > t.k.maxRetries
}

func (t *turn) answer(ctx context.Context, content string) (*Result, error) {
	t.k.setState(ctx, Responding)
	t.result.Response = content
	t.result.Outcome = OutcomeAnswer
	t.result.Retries = t.retries

	t.k.emit(ctx, EventResponse, observability.LevelInfo, map[string]any{
		"iteration":       t.result.Iterations,
		"response_length": len(content),
	})
	t.publish(Update{Type: UpdateFinal, Content: content, Iteration: t.result.Iterations, Outcome: OutcomeAnswer})
	return t.result, nil
}

// giveUp ends the turn with a notice appended as the assistant's reply.
func (t *turn) giveUp(ctx context.Context, outcome Outcome, notice string, err error) (*Result, error) {
	k := t.k
	k.setState(ctx, Failed)
	k.session.AddMessage(protocol.NewMessage(protocol.RoleAssistant, notice))

	t.result.Response = notice
	t.result.Outcome = outcome
	t.result.Retries = min(t.retries, k.maxRetries+1)

	k.emit(ctx, EventError, observability.LevelWarning, map[string]any{
		"error":      err.Error(),
		"iterations": t.result.Iterations,
		"retries":    t.retries,
	})
	t.publish(Update{Type: UpdateNotice, Content: notice, Iteration: t.result.Iterations, Outcome: outcome})
	return t.result, err
}
