// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoneAvailable indicates the pool holds no usable credential.
	// It is a normal outcome, not a failure of the pool.
	ErrNoneAvailable = errors.New("no credential available")

	// ErrEmptyCredential indicates an empty credential value was supplied.
	ErrEmptyCredential = errors.New("empty credential")

	// ErrInvalidArgument indicates a malformed or incomplete request.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStoreUnavailable indicates the backing store cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAccountNotFound indicates the remote search returned no account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrProbeUnconfigured indicates the liveness probe lacks the auth
	// parameters it needs and did not run.
	ErrProbeUnconfigured = errors.New("probe unconfigured")

	// ErrSessionRejected indicates the remote backend rejected the session cookie.
	ErrSessionRejected = errors.New("session rejected")
)
