package transport

import (
	"github.com/tailored-agentic-units/autods/core/protocol"
	"github.com/tailored-agentic-units/autods/dataset"
	"github.com/tailored-agentic-units/autods/kernel"
	"github.com/tailored-agentic-units/autods/sandbox"
)

// Procedure paths of the agent service.
const (
	ServiceName = "autods.v1.AgentService"

	ChatProcedure     = "/" + ServiceName + "/Chat"
	ResetProcedure    = "/" + ServiceName + "/Reset"
	ExportProcedure   = "/" + ServiceName + "/Export"
	LoadDataProcedure = "/" + ServiceName + "/LoadData"
	ExecuteProcedure  = "/" + ServiceName + "/Execute"
	DescribeProcedure = "/" + ServiceName + "/Describe"
)

// ChatRequest starts a turn. An empty SessionID opens a new session; its id
// is reported on every update.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Prompt    string `json:"prompt"`
	Agent     string `json:"agent,omitempty"`
}

// ChatUpdate is one streamed step of a turn.
type ChatUpdate struct {
	SessionID string `json:"session_id"`
	kernel.Update
}

type ResetRequest struct {
	SessionID string `json:"session_id"`
}

type ResetResponse struct{}

type ExportRequest struct {
	SessionID string `json:"session_id"`
}

type ExportResponse struct {
	SessionID string             `json:"session_id"`
	Messages  []protocol.Message `json:"messages"`
}

// LoadDataRequest binds a table into a session as df. Either Content
// (file text in Format, or a format implied by Name) or Database and Query
// must be set.
type LoadDataRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Format    string `json:"format,omitempty"`
	Content   string `json:"content,omitempty"`
	Database  string `json:"database,omitempty"`
	Query     string `json:"query,omitempty"`
}

type LoadDataResponse struct {
	SessionID string           `json:"session_id"`
	Variable  string           `json:"variable"`
	Profile   *dataset.Profile `json:"profile"`
	Message   string           `json:"message"`
}

// ExecuteRequest runs code directly in a session sandbox, outside any turn.
type ExecuteRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Code      string `json:"code"`
}

type ExecuteResponse struct {
	SessionID   string         `json:"session_id"`
	Result      sandbox.Result `json:"result"`
	Observation string         `json:"observation"`
}

type DescribeRequest struct {
	SessionID string `json:"session_id,omitempty"`
}
