package dispatch

import (
	"errors"

	"github.com/tailored-agentic-units/voice/capability"
)

// Sentinel errors for dispatch.
var (
	ErrCapabilityInactive = capability.ErrInactive
	ErrActionFailed       = errors.New("action failed")
	ErrTimeout            = errors.New("dispatch timed out")
)

// ErrorKind classifies a failed dispatch in a Result.
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindCapabilityNotFound ErrorKind = "capability_not_found"
	KindCapabilityInactive ErrorKind = "capability_inactive"
	KindActionFailed       ErrorKind = "action_failed"
	KindTimeout            ErrorKind = "timeout"
)

// KindOf maps an error to its ErrorKind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, capability.ErrNotFound):
		return KindCapabilityNotFound
	case errors.Is(err, capability.ErrInactive):
		return KindCapabilityInactive
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	default:
		return KindActionFailed
	}
}
