package dispatch

import "github.com/tailored-agentic-units/voice/observability"

// Dispatch event types.
const (
	EventRejected  observability.EventType = "dispatch.rejected"
	EventActivated observability.EventType = "dispatch.activated"
	EventInvoke    observability.EventType = "dispatch.invoke"
	EventComplete  observability.EventType = "dispatch.complete"
)
