package orchestrator

import "github.com/tailored-agentic-units/voice/observability"

// Orchestrator event types.
const (
	EventSessionOpen   observability.EventType = "orchestrator.session.open"
	EventSessionClose  observability.EventType = "orchestrator.session.close"
	EventState         observability.EventType = "orchestrator.state"
	EventTranscript    observability.EventType = "orchestrator.transcript"
	EventClarification observability.EventType = "orchestrator.clarification"
	EventReply         observability.EventType = "orchestrator.reply"
	EventStale         observability.EventType = "orchestrator.stale"
	EventError         observability.EventType = "orchestrator.error"
)
