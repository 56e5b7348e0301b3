package capability

import "errors"

// Sentinel errors for the capability registry.
var (
	ErrConfiguration = errors.New("capability configuration error")
	ErrNotFound      = errors.New("capability not found")
	ErrInactive      = errors.New("capability inactive")
)
