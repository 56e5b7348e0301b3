package orchestrator

import (
	"errors"
	"fmt"
)

// Sentinel errors for the conversation orchestrator.
var (
	ErrRecognition       = errors.New("speech recognition failed")
	ErrSynthesis         = errors.New("speech synthesis failed")
	ErrTimeout           = errors.New("conversation step timed out")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionClosed     = errors.New("session closed")
	ErrBusy              = errors.New("session is busy")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrClosed            = errors.New("orchestrator closed")
)

// SessionError reports a failure that a session recovered from.
type SessionError struct {
	SessionID string
	State     State
	Err       error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s failed in %s: %v", e.SessionID, e.State, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// Message is a short sentence suitable for showing or speaking to the user.
func (e *SessionError) Message() string {
	return userMessage(e.Err)
}

func userMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "That took longer than expected. Let's try again."
	case errors.Is(err, ErrRecognition):
		return "I didn't catch that. Could you say it again?"
	case errors.Is(err, ErrSynthesis):
		return "I had trouble speaking that reply, but it's saved in our conversation."
	case errors.Is(err, ErrBusy):
		return "I'm still working on your last request."
	default:
		return "Something went wrong on my side, but I'm still here."
	}
}
