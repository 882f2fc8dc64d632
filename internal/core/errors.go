package core

import (
	"context"
	"errors"
	"fmt"
)

// Error taxonomy. Every error surfaced by the services wraps exactly one of
// these so the transport layer can map it to a stable kind.
var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrConflict       = errors.New("conflict")
	ErrInfrastructure = errors.New("infrastructure failure")

	// ErrUnavailable marks infrastructure failures worth retrying: busy
	// database, timeouts, lock wait cancelled.
	ErrUnavailable = fmt.Errorf("%w: store unavailable", ErrInfrastructure)

	// ErrKeyCollision means two active rows share (date, created_at). The
	// store assigns created_at monotonically, so this indicates corrupted data.
	ErrKeyCollision = fmt.Errorf("%w: duplicate chronological key", ErrInfrastructure)
)

// Kind is the machine-readable error category reported to API callers.
type Kind string

const (
	KindValidation   Kind = "validation_error"
	KindNotFound     Kind = "not_found_error"
	KindUnauthorized Kind = "auth_error"
	KindConflict     Kind = "conflict_error"
	KindInternal     Kind = "internal_error"
)

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}

// IsRetryable reports whether the caller may retry the same request.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Validationf builds a validation error with a user-facing reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
