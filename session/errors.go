package session

import "errors"

// Sentinel errors for session stores.
var (
	ErrNotFound     = errors.New("session not found")
	ErrInvalidTurn  = errors.New("invalid turn")
	ErrStoreClosed  = errors.New("session store closed")
	ErrPersist      = errors.New("session persistence failed")
	ErrArchiveEntry = errors.New("archive entry not found")
)
