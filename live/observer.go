package live

import "github.com/tailored-agentic-units/voice/observability"

// Connection lifecycle events.
const (
	EventConnect    observability.EventType = "live.connect"
	EventDisconnect observability.EventType = "live.disconnect"
)
