/*
Package attendance provides the session and scan processing engine.

PURPOSE:
  This package owns attendance correctness. It governs the lifecycle of an
  attendance session, classifies every check-in submitted by scanning devices,
  and derives live and historical statistics from the append-only record log.
  Persistence, transport and roster ingestion are collaborators defined as
  interfaces in store.go.

KEY CONCEPTS IN THIS FILE (types.go):
  - Employee: Roster entry, read-only from the engine's point of view
  - Session: An attendance-taking window (active -> ended)
  - Record: An immutable check-in for (session, employee)
  - Method: How the check-in was captured (qr, manual)

DESIGN PRINCIPLES:
  1. Append-only: Records are never modified or deleted
  2. Uniqueness: (SessionID, EmployeeID) is recorded at most once
  3. Server time: ScannedAt is assigned by the engine clock, never the device
  4. Type Safety: Strong typing for IDs prevents mixing session/employee IDs

SEE ALSO:
  - session.go: Session lifecycle
  - scan.go: Check-in classification
  - stats.go, report.go: Derived aggregates
*/
package attendance

import (
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type SessionID string
type RecordID string

// =============================================================================
// EMPLOYEE - Roster entry
// =============================================================================

// Employee is owned by the roster import pipeline. The engine only reads it.
type Employee struct {
	ID         EmployeeID
	FullName   string
	Department string
	Active     bool
}

// =============================================================================
// SESSION
// =============================================================================

type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// Session is an attendance-taking window.
// At most one session has status active at any time.
type Session struct {
	ID        SessionID
	EventName string
	Status    SessionStatus
	StartedAt time.Time
	EndedAt   *time.Time // set only on transition to ended
	StartedBy string
	EndedBy   string
}

func (s Session) IsActive() bool { return s.Status == SessionActive }

// =============================================================================
// RECORD - Append-only check-in
// =============================================================================

type Method string

const (
	MethodQR     Method = "qr"
	MethodManual Method = "manual"
)

func (m Method) Valid() bool { return m == MethodQR || m == MethodManual }

// Record is an accepted check-in. Never mutated once created.
type Record struct {
	ID         RecordID
	SessionID  SessionID
	EmployeeID EmployeeID
	Method     Method
	DeviceID   string
	ScannedAt  time.Time
}

// =============================================================================
// ROSTER IMPORT - Provenance of roster upserts
// =============================================================================

type RosterImport struct {
	ID         string
	Filename   string
	RowCount   int
	ActorID    string
	ImportedAt time.Time
}

// Clock returns the authoritative server time.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }
