package store

import "errors"

var (
	ErrConflict = errors.New("conflict")
	// ErrNotFound is returned when a booking does not exist in the org.
	ErrNotFound = errors.New("not found")
	// ErrIdempotencyConflict is returned when an idempotency key is replayed
	// with a different booking document.
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
)
