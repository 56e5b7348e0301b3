package actions

import "errors"

// Sentinel errors for the actions registry.
var (
	ErrNotFound      = errors.New("action not found")
	ErrAlreadyExists = errors.New("action already registered")
	ErrEmptyName     = errors.New("capability id is empty")
)
