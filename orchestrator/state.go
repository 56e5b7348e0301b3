package orchestrator

import (
	"fmt"
	"slices"
)

// State is the turn-taking phase of a session.
type State int

const (
	StateIdle State = iota
	StateListening
	StateProcessing
	StateSpeaking
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Listening re-enters itself after a clarification prompt.
var transitions = map[State][]State{
	StateIdle:       {StateListening},
	StateListening:  {StateListening, StateProcessing, StateIdle, StateError},
	StateProcessing: {StateSpeaking, StateIdle, StateError},
	StateSpeaking:   {StateIdle, StateListening, StateError},
	StateError:      {StateIdle},
}

// CanTransition reports whether the state machine permits from → to.
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}
