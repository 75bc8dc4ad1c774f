// Package apperr holds the sentinel errors shared across cardsync packages.
// Callers wrap them with context and branch with errors.Is.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// Addressing errors.
	ErrInvalidID  = errors.New("invalid identifier")
	ErrInvalidKey = errors.New("invalid storage key")

	// ErrValidation marks a record or request that failed shape validation.
	ErrValidation = errors.New("validation failed")

	// Permission errors: wrong initiator, self-sync, unknown partition.
	ErrForbidden   = errors.New("forbidden")
	ErrUnknownMode = errors.New("unknown mode")

	// ErrReservedValue is returned when the literal empty marker is supplied as a real value.
	ErrReservedValue = errors.New("reserved value")
)
