package kernel

import "github.com/tailored-agentic-units/autods/observability"

// Kernel event types emitted during a turn.
const (
	EventTurnStart      observability.EventType = "kernel.turn.start"
	EventTurnComplete   observability.EventType = "kernel.turn.complete"
	EventIterationStart observability.EventType = "kernel.iteration.start"
	EventExecution      observability.EventType = "kernel.execution"
	EventObservation    observability.EventType = "kernel.observation"
	EventRetry          observability.EventType = "kernel.retry"
	EventResponse       observability.EventType = "kernel.response"
	EventError          observability.EventType = "kernel.error"
	EventState          observability.EventType = "kernel.state"

	EventSessionOpen  observability.EventType = "kernel.session.open"
	EventSessionClose observability.EventType = "kernel.session.close"
)
