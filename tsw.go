package tsw

import "errors"

// Version is set at build time with -ldflags "-X github.com/aretw0/tsw.Version=...".
var Version = "dev"

var (
	// ErrActionPending is returned when an instance already has an action
	// queued that has not started yet.
	ErrActionPending = errors.New("another action is already pending")
	// ErrInvalidSpec is returned when a definition is incomplete.
	ErrInvalidSpec = errors.New("invalid definition")
)
