package adapter

import "errors"

var (
	// ErrUnauthorized maps 401 responses: the configured credentials were
	// rejected.
	ErrUnauthorized = errors.New("remote unauthorized")

	// ErrNotFound maps 404 responses for pages and attachments.
	ErrNotFound = errors.New("remote item not found")

	// ErrVersionConflict maps 409 responses: the expected-version
	// precondition of an update no longer held.
	ErrVersionConflict = errors.New("version conflict")

	// ErrRemoteUnavailable is returned once transient failures (timeouts,
	// 5xx, rate limiting) have exhausted the bounded retry budget.
	ErrRemoteUnavailable = errors.New("remote unavailable")

	// ErrSpaceNotFound is returned when the configured space key does not
	// resolve to a space.
	ErrSpaceNotFound = errors.New("space not found")
)
