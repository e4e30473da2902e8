package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCursorRegression indicates an attempt to move lastProcessedPR
	// backwards. This is a programming error and must fail loudly.
	ErrCursorRegression = errors.New("cursor regression")

	// ErrSyncInProgress indicates a sync cycle is already running for the
	// repository.
	ErrSyncInProgress = errors.New("sync in progress")

	// ErrSessionInvalid indicates the session is unknown or expired.
	ErrSessionInvalid = errors.New("session invalid")

	// ErrOracleUnavailable indicates the analysis oracle is not configured
	// or returned an unusable reply.
	ErrOracleUnavailable = errors.New("oracle unavailable")

	// ErrDocumentMissing indicates the remote workspace document backing a
	// connection no longer exists.
	ErrDocumentMissing = errors.New("workspace document missing")
)
