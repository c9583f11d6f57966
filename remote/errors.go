package remote

import "errors"

var (
	// ErrUnavailable marks connectivity failures: transport errors,
	// timeouts, and 5xx answers. Retryable with backoff.
	ErrUnavailable = errors.New("replica unavailable")

	// ErrUnauthorized marks authentication failures. Not retryable
	// without a new token.
	ErrUnauthorized = errors.New("client unauthorized")

	// ErrVersionConflict marks a push rejected wholesale because the
	// replica requires a newer base version.
	ErrVersionConflict = errors.New("version conflict")

	// ErrBadRequest marks a malformed request. Not retryable.
	ErrBadRequest = errors.New("bad request")

	// ErrNotFound marks an unknown endpoint or resource.
	ErrNotFound = errors.New("not found")
)
