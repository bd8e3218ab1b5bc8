package agent

import "errors"

var (
	// ErrAgentNotFound is returned when no agent is registered under a name.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrAgentExists is returned when registering a name twice.
	ErrAgentExists = errors.New("agent already registered")

	// ErrEmptyAgentName is returned when registering an agent without a name.
	ErrEmptyAgentName = errors.New("agent name is empty")

	// ErrProtocolUnsupported is returned when a turn selects an agent whose
	// model does not declare the session's protocol.
	ErrProtocolUnsupported = errors.New("agent does not support protocol")

	// ErrNoModel is returned when an agent configuration names no model.
	ErrNoModel = errors.New("agent config has no model")
)
