package jobs

import "errors"

var (
	// ErrNotFound is returned for an unknown job id or a missing local artifact.
	ErrNotFound = errors.New("job not found")

	// ErrInvalidState is returned when a job is not in the status an operation requires.
	ErrInvalidState = errors.New("invalid job state")

	// ErrUpstreamFailure covers an unreachable engine or export host, a non-success
	// status, or a malformed response.
	ErrUpstreamFailure = errors.New("upstream failure")

	// ErrConfiguration is returned when the webhook endpoint is unset or a placeholder.
	ErrConfiguration = errors.New("webhook not configured")

	// ErrTimeout is returned when a dispatch or an export fetch exceeded its bound.
	ErrTimeout = errors.New("operation timed out")
)
