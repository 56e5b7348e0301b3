package router

import (
	"errors"
	"fmt"

	"github.com/tailored-agentic-units/voice/capability"
)

// Sentinel errors for the command router. ErrInvalidRule wraps
// capability.ErrConfiguration so callers can treat both as setup mistakes.
var (
	ErrNoIntentMatch = errors.New("no intent match")
	ErrInvalidRule   = fmt.Errorf("invalid rule: %w", capability.ErrConfiguration)
)
