package sandbox

import (
	"errors"
	"fmt"
)

var (
	// ErrEnvironmentInit reports that an environment could not be created.
	// It is fatal for the session being constructed.
	ErrEnvironmentInit = errors.New("environment initialization failed")
	// ErrClosed is returned by calls on a closed environment.
	ErrClosed = errors.New("environment closed")
	// ErrUnsupportedValue is returned by Bind for values that cannot cross
	// into the environment.
	ErrUnsupportedValue = errors.New("unsupported value")
)

// ErrorKind classifies an execution failure.
type ErrorKind string

const (
	ParseError           ErrorKind = "ParseError"
	ExecutionError       ErrorKind = "ExecutionError"
	TimeoutError         ErrorKind = "TimeoutError"
	EnvironmentInitError ErrorKind = "EnvironmentInitError"
)

// ExecError describes why an execution failed. Message is the
// human-readable description (for Python, "ValueError: bad"); Trace is the
// interpreter's traceback when one exists.
type ExecError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Trace   string    `json:"trace,omitempty"`
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// InitError wraps cause so that errors.Is(err, ErrEnvironmentInit) holds.
func InitError(cause error) error {
	return fmt.Errorf("%w: %v", ErrEnvironmentInit, cause)
}
