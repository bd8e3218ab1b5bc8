package sandbox

import "time"

// Result is the outcome of one execution. Success is false iff Error is
// non-nil. Notice carries non-fatal remarks such as a lost environment or
// an artifact that could not be serialized.
type Result struct {
	Stdout   string        `json:"stdout"`
	Error    *ExecError    `json:"error,omitempty"`
	Artifact Artifact      `json:"artifact"`
	Success  bool          `json:"success"`
	Notice   string        `json:"notice,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Succeeded builds a successful result.
func Succeeded(stdout string, artifact Artifact) Result {
	return Result{Stdout: stdout, Artifact: artifact, Success: true}
}

// Failed builds a failed result.
func Failed(kind ErrorKind, message, trace string) Result {
	return Result{
		Error: &ExecError{Kind: kind, Message: message, Trace: trace},
	}
}

// WithStdout returns r with stdout set, keeping any failure.
func (r Result) WithStdout(stdout string) Result {
	r.Stdout = stdout
	return r
}

// AddNotice appends a remark to the result's notice.
func (r *Result) AddNotice(notice string) {
	if notice == "" {
		return
	}
	if r.Notice != "" {
		r.Notice += "\n"
	}
	r.Notice += notice
}

// Kind returns the failure kind, or "" for a successful result.
func (r Result) Kind() ErrorKind {
	if r.Error == nil {
		return ""
	}
	return r.Error.Kind
}
