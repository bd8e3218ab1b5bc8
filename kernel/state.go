package kernel

import (
	"github.com/tailored-agentic-units/autods/sandbox"
)

// State is the position of a session in its turn loop.
type State int

const (
	Idle State = iota
	Thinking
	ToolExecuting
	Observing
	Responding
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Thinking:
		return "thinking"
	case ToolExecuting:
		return "tool_executing"
	case Observing:
		return "observing"
	case Responding:
		return "responding"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is how a turn ended.
type Outcome string

const (
	OutcomeAnswer     Outcome = "answer"
	OutcomeMaxRetries Outcome = "max_retries"
	OutcomeMaxSteps   Outcome = "max_steps"
	OutcomeError      Outcome = "error"
)

// UpdateType classifies a streamed Update.
type UpdateType string

const (
	UpdateThinking  UpdateType = "thinking"
	UpdateDelta     UpdateType = "delta"
	UpdateExecution UpdateType = "execution"
	UpdateResult    UpdateType = "result"
	UpdateFinal     UpdateType = "final"
	UpdateNotice    UpdateType = "notice"
	UpdateError     UpdateType = "error"
)

// Update is one step of a turn as seen by a client. Content carries the
// text for the type: the delta, the observation, the final answer or the
// notice.
type Update struct {
	Type        UpdateType      `json:"type"`
	Content     string          `json:"content,omitempty"`
	Iteration   int             `json:"iteration,omitempty"`
	CallID      string          `json:"call_id,omitempty"`
	Code        string          `json:"code,omitempty"`
	Description string          `json:"description,omitempty"`
	Result      *sandbox.Result `json:"result,omitempty"`
	Outcome     Outcome         `json:"outcome,omitempty"`
}

// Execution records one invocation run during a turn.
type Execution struct {
	CallID      string         `json:"call_id"`
	Code        string         `json:"code"`
	Description string         `json:"description,omitempty"`
	Iteration   int            `json:"iteration"`
	Result      sandbox.Result `json:"result"`
}

// Result holds the outcome of a turn.
type Result struct {
	Response   string      `json:"response"`
	Outcome    Outcome     `json:"outcome"`
	Iterations int         `json:"iterations"`
	Retries    int         `json:"retries"`
	Executions []Execution `json:"executions,omitempty"`
}
