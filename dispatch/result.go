package dispatch

import (
	"fmt"

	"github.com/tailored-agentic-units/voice/capability"
)

// Result is the structured outcome of dispatching a matched rule.
type Result struct {
	CapabilityID string    `json:"capability_id"`
	Action       string    `json:"action"`
	Success      bool      `json:"success"`
	Message      string    `json:"message"`
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	Activated    bool      `json:"activated,omitempty"`
}

// Err returns the sentinel error matching ErrorKind, or nil on success.
func (r Result) Err() error {
	switch r.ErrorKind {
	case KindNone:
		return nil
	case KindCapabilityNotFound:
		return fmt.Errorf("%w: %s", capability.ErrNotFound, r.CapabilityID)
	case KindCapabilityInactive:
		return fmt.Errorf("%w: %s", ErrCapabilityInactive, r.CapabilityID)
	case KindTimeout:
		return fmt.Errorf("%w: %s %s", ErrTimeout, r.CapabilityID, r.Action)
	default:
		return fmt.Errorf("%w: %s %s", ErrActionFailed, r.CapabilityID, r.Action)
	}
}

// FailureResult builds the Result for a dispatch that could not start.
func FailureResult(capabilityID, action, name string, err error) Result {
	kind := KindOf(err)
	return Result{
		CapabilityID: capabilityID,
		Action:       action,
		Success:      false,
		Message:      failureMessage(kind, name, action),
		ErrorKind:    kind,
	}
}

func successMessage(name, action string, activated bool) string {
	if activated {
		return fmt.Sprintf("%s is now active and has finished %s.", name, action)
	}
	return fmt.Sprintf("%s has finished %s.", name, action)
}

func failureMessage(kind ErrorKind, name, action string) string {
	switch kind {
	case KindCapabilityNotFound:
		return "I couldn't find anything that handles that."
	case KindCapabilityInactive:
		return fmt.Sprintf("%s is switched off right now. Ask me to activate it first.", name)
	case KindTimeout:
		return fmt.Sprintf("%s is taking too long to %s. Let's try again in a moment.", name, action)
	default:
		return fmt.Sprintf("%s wasn't able to %s this time.", name, action)
	}
}
