package live

import (
	"errors"
	"fmt"

	"github.com/tailored-agentic-units/voice/orchestrator"
	"github.com/tailored-agentic-units/voice/session"
)

var (
	ErrBadFrame     = errors.New("invalid frame")
	ErrNotConnected = errors.New("session has no live connection")
)

// errorFrame maps an error to the frame sent to the browser.
func errorFrame(err error) ServerFrame {
	code := CodeInternal
	switch {
	case errors.Is(err, ErrBadFrame), errors.Is(err, session.ErrInvalidTurn):
		code = CodeBadRequest
	case errors.Is(err, orchestrator.ErrBusy):
		code = CodeBusy
	case errors.Is(err, orchestrator.ErrSessionClosed), errors.Is(err, orchestrator.ErrClosed):
		code = CodeClosed
	case errors.Is(err, orchestrator.ErrTimeout):
		code = CodeTimeout
	case errors.Is(err, orchestrator.ErrRecognition):
		code = CodeRecognition
	case errors.Is(err, orchestrator.ErrSynthesis):
		code = CodeSynthesis
	}

	msg := err.Error()
	var serr *orchestrator.SessionError
	if errors.As(err, &serr) {
		msg = serr.Message()
	}
	return ServerFrame{Type: FrameError, Code: code, Message: msg}
}

func badFrame(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadFrame, fmt.Sprintf(format, args...))
}
