package health

import "errors"

var (
	// ErrCheckFailed indicates a probe reported a failure without an error.
	ErrCheckFailed = errors.New("health: check failed")

	// ErrCheckTimeout indicates a probe did not finish within its timeout.
	ErrCheckTimeout = errors.New("health: check timeout")

	// ErrCheckPanicked indicates a probe panicked.
	ErrCheckPanicked = errors.New("health: check panicked")

	// ErrServiceNotFound indicates the service is not registered.
	ErrServiceNotFound = errors.New("health: service not registered")
)
