package types

import "errors"

var (
	// ErrInvalidInput is returned for client-correctable request shape violations.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when a circuit identity, job or summary does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExecutorFailure is returned when a proof task could not be executed,
	// either because the worker reported it as failed or because the
	// transport exhausted its retries.
	ErrExecutorFailure = errors.New("executor failure")
	// ErrSubmissionFailure is returned when the final proof could not be
	// submitted on-chain.
	ErrSubmissionFailure = errors.New("submission failure")
)
