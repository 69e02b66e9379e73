package admin

import "errors"

// Sentinel errors for the bearer-token guard.
var (
	ErrMissingCredentials = errors.New("admin: missing credentials")
	ErrInvalidCredentials = errors.New("admin: invalid credentials")
	ErrTokenExpired       = errors.New("admin: token expired")
	ErrTokenMalformed     = errors.New("admin: token malformed")

	// ErrNilSource is returned by NewHandler without a status source.
	ErrNilSource = errors.New("admin: status source is required")
)
