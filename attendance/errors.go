/*
errors.go - Centralized error types for the attendance engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Store adapters return the sentinels; the HTTP layer maps them to status codes.

ERROR CATEGORIES:
  1. Caller errors - InvalidInput (empty id/name, unknown method)
  2. Lifecycle errors - NotFound, Conflict (session misuse)
  3. Store errors - DuplicateRecord (uniqueness), System (infrastructure)

Note that NoActiveSession, InvalidEmployee and Duplicate are NOT errors.
They are final classifications returned in ScanResult.Kind.

USAGE:
    if errors.Is(err, attendance.ErrConflict) {
        var ce *attendance.ConflictError
        errors.As(err, &ce) // ce.ActiveSessionID
    }

SEE ALSO:
  - scan.go: Wraps store failures in SystemError
  - store/sqlite/sqlite.go: Maps SQLite constraint codes to sentinels
*/
package attendance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is returned for caller errors. No state is changed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned when a referenced session doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a session lifecycle transition is not allowed
	// (starting while one is active, ending one that is not active).
	ErrConflict = errors.New("conflict")

	// ErrDuplicateRecord is returned by stores when (session, employee) already
	// has a record. The scanner turns it into a Duplicate result.
	ErrDuplicateRecord = errors.New("duplicate attendance record")

	// ErrSessionNotActive is returned by stores when a record targets a session
	// that is not (or no longer) active. The scanner turns it into NoActiveSession.
	ErrSessionNotActive = errors.New("session not active")

	// ErrSystem marks infrastructure failures. Safe to retry the whole submission.
	ErrSystem = errors.New("system error")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConflictError describes a rejected session transition.
type ConflictError struct {
	Op              string
	SessionID       SessionID // session the caller referenced, if any
	ActiveSessionID SessionID // session currently active, if any
	Reason          string
}

func (e *ConflictError) Error() string {
	switch {
	case e.ActiveSessionID != "" && e.SessionID == "":
		return fmt.Sprintf("%s: session %s is already active", e.Op, e.ActiveSessionID)
	case e.Reason != "":
		return fmt.Sprintf("%s: session %s %s", e.Op, e.SessionID, e.Reason)
	default:
		return fmt.Sprintf("%s: session %s is not active", e.Op, e.SessionID)
	}
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// SystemError wraps a persistence failure.
type SystemError struct {
	Op  string
	Err error
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SystemError) Unwrap() []error { return []error{ErrSystem, e.Err} }

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if resubmitting the same request might succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSystem)
}

// IsClientError returns true if the error is due to invalid client input or misuse.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrConflict)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
