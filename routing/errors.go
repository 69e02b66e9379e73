package routing

import "errors"

var (
	// ErrNoServices is returned when no enabled instance serves the requested type.
	ErrNoServices = errors.New("routing: no services available")

	// ErrInstanceUnhealthy is returned when the selected instance is unhealthy.
	ErrInstanceUnhealthy = errors.New("routing: selected instance is unhealthy")

	// ErrUnknownStrategy is returned for an unsupported strategy name.
	ErrUnknownStrategy = errors.New("routing: unknown strategy")

	// ErrInvalidInstance is returned when an instance fails validation.
	ErrInvalidInstance = errors.New("routing: invalid instance")

	// ErrNilInvoker is returned when a Router is built without an Invoker.
	ErrNilInvoker = errors.New("routing: invoker is nil")
)
