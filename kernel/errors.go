package kernel

import (
	"errors"
	"fmt"
)

var (
	// ErrMaxIterations is returned when a turn exhausts its model-call
	// budget without the agent producing a final response.
	ErrMaxIterations = errors.New("max iterations reached")
	// ErrMaxRetries is returned when a turn gives up after too many failed
	// executions.
	ErrMaxRetries = errors.New("max retries reached")

	ErrInvalidConfig   = errors.New("invalid kernel config")
	ErrEmptyResponse   = errors.New("model returned no choices")
	ErrSessionNotFound = errors.New("session not found")
	ErrRegistryClosed  = errors.New("session registry closed")
)

// ModelCallError reports a failed model call. It aborts the turn; the
// session stays usable.
type ModelCallError struct {
	Agent     string
	Iteration int
	Err       error
}

func (e *ModelCallError) Error() string {
	return fmt.Sprintf("model call failed (agent %s, iteration %d): %v", e.Agent, e.Iteration, e.Err)
}

func (e *ModelCallError) Unwrap() error { return e.Err }
