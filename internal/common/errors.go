// Package common defines shared constants and sentinel errors used across
// client and server layers of ledgersync. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal      = errors.New("internal error")
	ErrorUnauthorized  = errors.New("unauthorized")
	ErrVersionConflict = errors.New("version conflict")

	// Validation errors.
	ErrUnknownEntityType = errors.New("unknown entity type")
	ErrUnknownOperation  = errors.New("unknown operation")
	ErrIncorrectField    = errors.New("field must be name=value")
	ErrEmptyID           = errors.New("record id must not be empty")

	// Local store errors.
	ErrTombstoned        = errors.New("row is deleted")
	ErrInvalidTransition = errors.New("invalid outbox status transition")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
