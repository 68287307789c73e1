/*
store.go - Persistence interfaces for roster, sessions, records and audit

PURPOSE:
  Defines the interface between the engine and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Roster:       Read-only employee lookup (plus upsert for the import pipeline)
  SessionStore: Session lifecycle persistence with the single-active invariant
  RecordStore:  Append-only attendance records with (session, employee) uniqueness
  AuditLog:     Who did what when

APPEND-ONLY CONTRACT:
  RecordStore has exactly one write: InsertRecord. NO Update() or Delete().

ATOMIC UNIQUE INSERT:
  InsertRecord MUST be atomic with respect to (SessionID, EmployeeID).
  When several devices race to record the same employee, exactly one insert
  succeeds and the others get ErrDuplicateRecord. This is the only
  concurrency control point for check-ins.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite with UNIQUE(session_id, employee_id)
  - attendance/store/memory.go: In-memory for tests and dev

SEE ALSO:
  - scan.go: Uses RecordStore
  - session.go: Uses SessionStore
*/
package attendance

import (
	"context"
	"time"
)

// =============================================================================
// ROSTER - Read-only from the engine
// =============================================================================

type Roster interface {
	// Lookup returns nil, nil if the employee is unknown.
	Lookup(ctx context.Context, id EmployeeID) (*Employee, error)

	// ListActive returns active employees ordered by department, then id.
	ListActive(ctx context.Context) ([]Employee, error)
}

// RosterWriter is implemented by stores that back the roster import pipeline.
type RosterWriter interface {
	// UpsertEmployees inserts or replaces employees by ID and records provenance.
	// Either all rows and the import entry are written, or none are.
	UpsertEmployees(ctx context.Context, employees []Employee, imp RosterImport) error
}

// =============================================================================
// SESSION STORE
// =============================================================================

type SessionStore interface {
	// CreateSession persists an active session. Returns *ConflictError if
	// another session is already active.
	CreateSession(ctx context.Context, s Session) error

	// EndSession transitions an active session to ended.
	// Returns ErrNotFound for unknown ids, *ConflictError if not active.
	EndSession(ctx context.Context, id SessionID, endedAt time.Time, actor string) (Session, error)

	// ActiveSession returns nil, nil when idle.
	ActiveSession(ctx context.Context) (*Session, error)

	// GetSession returns nil, nil if the session doesn't exist.
	GetSession(ctx context.Context, id SessionID) (*Session, error)

	// SessionsStartedBetween returns sessions with from <= StartedAt < to,
	// ordered by StartedAt.
	SessionsStartedBetween(ctx context.Context, from, to time.Time) ([]Session, error)
}

// =============================================================================
// RECORD STORE - Append-only
// =============================================================================

type RecordStore interface {
	// InsertRecord atomically appends a record. Returns ErrSessionNotActive if
	// the session is not active at the moment of the write, and
	// ErrDuplicateRecord if the (SessionID, EmployeeID) pair already exists.
	InsertRecord(ctx context.Context, r Record) error

	// EarliestRecord returns the first record for the pair by ScannedAt,
	// or nil, nil if there is none.
	EarliestRecord(ctx context.Context, sessionID SessionID, employeeID EmployeeID) (*Record, error)

	// ListRecords returns every record of a session ordered by ScannedAt.
	ListRecords(ctx context.Context, sessionID SessionID) ([]Record, error)
}

// =============================================================================
// AUDIT LOG - Separate from records, tracks who did what when
// =============================================================================

type AuditEntry struct {
	ID        string
	Timestamp time.Time
	ActorID   string
	Action    AuditAction
	SessionID SessionID
	Payload   map[string]any
}

type AuditAction string

const (
	AuditSessionStarted AuditAction = "session_started"
	AuditSessionEnded   AuditAction = "session_ended"
	AuditRosterImported AuditAction = "roster_imported"
)

// AuditLog stores audit entries. Also append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	SessionID *SessionID
	ActorID   *string
	Actions   []AuditAction
}

// Store is everything a full backend provides.
type Store interface {
	Roster
	RosterWriter
	SessionStore
	RecordStore
	AuditLog
}
