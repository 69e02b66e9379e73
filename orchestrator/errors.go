package orchestrator

import "errors"

// Sentinel errors for orchestrator lifecycle.
var (
	// ErrAlreadyStarted is returned by Start when the loops are running.
	ErrAlreadyStarted = errors.New("orchestrator: already started")

	// ErrNotStarted is returned by Stop before Start.
	ErrNotStarted = errors.New("orchestrator: not started")

	// ErrPanic wraps a recovered panic.
	ErrPanic = errors.New("orchestrator: recovered panic")
)
