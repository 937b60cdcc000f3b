// Package apperr defines the error kinds exposed by the auth services.
// Repository and codec failures are converted into one of these sentinels
// before they cross a service boundary; handlers match them with errors.Is
// to pick a status code.
package apperr

import "errors"

var (
	// ErrUnauthorized covers credential mismatch, refresh/session mismatch,
	// and pin or reset-token mismatch.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidToken is a token whose signature does not verify.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken is a token whose signature verifies but whose expiry
	// has passed.
	ErrExpiredToken = errors.New("expired token")

	// ErrInvalidArgument is a caller-supplied field failing basic validation.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidFormat is a stored value that failed to deserialize.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrNotFound is a missing lookup key or user reference.
	ErrNotFound = errors.New("not found")

	// ErrDuplicatedKey is a create that collided with an existing record.
	ErrDuplicatedKey = errors.New("duplicated key")

	// ErrStoreUnavailable is an unreachable or failing backing store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInternal is any other unexpected failure.
	ErrInternal = errors.New("internal error")
)
