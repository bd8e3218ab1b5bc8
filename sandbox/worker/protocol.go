package worker

import (
	"encoding/json"
	"strings"

	"github.com/tailored-agentic-units/autods/sandbox"
)

// Request operations understood by worker.py.
const (
	opExecute     = "execute"
	opBind        = "bind"
	opBindDataset = "bind_dataset"
	opLookup      = "lookup"
	opDescribe    = "describe"
	opPing        = "ping"
)

// Message types written by worker.py.
const (
	msgReady         = "ready"
	msgStream        = "stream"
	msgExecuteResult = "execute_result"
	msgDisplay       = "display"
	msgError         = "error"
	msgReply         = "reply"
	msgStatus        = "status"

	stateIdle = "idle"
)

type request struct {
	ID     string          `json:"id"`
	Op     string          `json:"op"`
	Code   string          `json:"code,omitempty"`
	Name   string          `json:"name,omitempty"`
	Value  json.RawMessage `json:"value,omitempty"`
	Path   string          `json:"path,omitempty"`
	Format string          `json:"format,omitempty"`
}

type message struct {
	ID        string           `json:"id"`
	Type      string           `json:"type"`
	Name      string           `json:"name,omitempty"`
	Text      string           `json:"text,omitempty"`
	Ename     string           `json:"ename,omitempty"`
	Evalue    string           `json:"evalue,omitempty"`
	Traceback []string         `json:"traceback,omitempty"`
	Artifact  *sandbox.Payload `json:"artifact,omitempty"`
	State     string           `json:"state,omitempty"`
	Found     bool             `json:"found,omitempty"`
	Value     json.RawMessage  `json:"value,omitempty"`
	Error     string           `json:"error,omitempty"`
}

func (m message) idle() bool {
	return m.Type == msgStatus && m.State == stateIdle
}

// execError renders an error message as "ValueError: bad".
func (m message) execError() *sandbox.ExecError {
	text := m.Ename
	if m.Evalue != "" {
		text += ": " + m.Evalue
	}
	return &sandbox.ExecError{
		Kind:    sandbox.ExecutionError,
		Message: text,
		Trace:   strings.Join(m.Traceback, ""),
	}
}
