package worker

import "errors"

var (
	// ErrUnavailable is returned when the worker process cannot be reached.
	ErrUnavailable = errors.New("execution worker unavailable")

	errTimeout = errors.New("execution timed out")
	errExited  = errors.New("execution worker exited")
)

// RemoteError is a failure reported by the worker for a non-execute
// request, such as a dataset that pandas could not read.
type RemoteError struct {
	Op      string
	Message string
}

func (e *RemoteError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op == "" {
		return e.Message
	}
	return e.Op + ": " + e.Message
}
