package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials indicates login failure. Unknown user, bad password
	// and non-active accounts are indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionExpired indicates a session whose expires_at has passed.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionNotFound indicates an unknown or revoked session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrForbidden indicates the principal lacks the capability for the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition indicates a lifecycle edge that is not allowed.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a uniqueness or single-active-record violation.
	ErrConflict = errors.New("conflict")
	// ErrAuditWrite indicates the audit fact could not be persisted; the
	// surrounding transaction must roll back.
	ErrAuditWrite = errors.New("audit write failed")
)

// Kinds reported to clients.
const (
	KindUnauthorized      = "unauthorized"
	KindForbidden         = "forbidden"
	KindNotFound          = "not_found"
	KindInvalidTransition = "invalid_transition"
	KindValidation        = "validation"
	KindConflict          = "conflict"
	KindInternal          = "internal"
)

// Forbidden wraps ErrForbidden with a human readable reason.
func Forbidden(reason string) error {
	return fmt.Errorf("%w: %s", ErrForbidden, reason)
}

// Invalid wraps ErrValidation with a human readable reason.
func Invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrValidation, reason)
}

// Transition wraps ErrInvalidTransition describing the rejected edge.
func Transition(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Conflict wraps ErrConflict with a reason.
func Conflict(reason string) error {
	return fmt.Errorf("%w: %s", ErrConflict, reason)
}

// KindOf classifies err into the stable kind string exposed over HTTP.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrSessionExpired),
		errors.Is(err, ErrSessionNotFound):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}
