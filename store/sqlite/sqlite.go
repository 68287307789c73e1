/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements attendance.Store (roster, sessions, records, audit) using SQLite.
  In production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on attendance_records
  - sessions are updated exactly once (active -> ended)

KEY TABLES:
  employees:          Roster snapshot, upserted by the import pipeline
  roster_imports:     Provenance of each upsert (filename, rows, actor)
  sessions:           Attendance sessions
  attendance_records: Immutable check-ins
  audit_log:          Who did what when

CRITICAL INDEXES:
  - idx_single_active_session: partial UNIQUE index, at most one active session
  - attendance_records UNIQUE(session_id, employee_id): no double counting
  - idx_records_session_scanned: record listing / earliest-record lookup

CONSTRAINT ERRORS:
  UNIQUE violations are detected with sqlite3.Error.ExtendedCode and mapped
  to attendance sentinels, so callers never parse driver messages.

TIMESTAMPS:
  Stored as fixed-width UTC text (nanosecond precision), so lexical order in
  SQL equals chronological order.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety plus WAL for concurrent readers.
  ":memory:" databases are pinned to one connection, since every new
  connection to ":memory:" would otherwise open an empty database.

USAGE:
  store, err := sqlite.New("./data/attendance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - attendance/store.go: Interface definitions
  - attendance/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/checkin-engine/attendance"
)

// Store implements attendance.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ attendance.Store = (*Store)(nil)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Roster (owned by the import pipeline)
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		department TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_active_department
		ON employees(is_active, department, id);

	CREATE TABLE IF NOT EXISTS roster_imports (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		row_count INTEGER NOT NULL,
		actor_id TEXT,
		imported_at TEXT NOT NULL
	);

	-- Sessions
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		event_name TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('active', 'ended')),
		started_at TEXT NOT NULL,
		ended_at TEXT,
		started_by TEXT,
		ended_by TEXT
	);

	-- CRITICAL: at most one active session
	CREATE UNIQUE INDEX IF NOT EXISTS idx_single_active_session
		ON sessions(status) WHERE status = 'active';

	CREATE INDEX IF NOT EXISTS idx_sessions_started_at
		ON sessions(started_at);

	-- Attendance records (append-only)
	-- CRITICAL: an employee is recorded at most once per session
	CREATE TABLE IF NOT EXISTS attendance_records (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		employee_id TEXT NOT NULL,
		method TEXT NOT NULL CHECK (method IN ('qr', 'manual')),
		device_id TEXT NOT NULL,
		scanned_at TEXT NOT NULL,
		UNIQUE(session_id, employee_id)
	);

	CREATE INDEX IF NOT EXISTS idx_records_session_scanned
		ON attendance_records(session_id, scanned_at);

	-- Audit log
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		session_id TEXT,
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_log_session
		ON audit_log(session_id) WHERE session_id IS NOT NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ROSTER (attendance.Roster, attendance.RosterWriter)
// =============================================================================

func (s *Store) Lookup(ctx context.Context, id attendance.EmployeeID) (*attendance.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var e attendance.Employee
	err := s.db.QueryRowContext(ctx,
		"SELECT id, full_name, department, is_active FROM employees WHERE id = ?",
		id,
	).Scan(&e.ID, &e.FullName, &e.Department, &e.Active)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lookup employee: %w", err)
	}
	return &e, nil
}

func (s *Store) ListActive(ctx context.Context) ([]attendance.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, full_name, department, is_active
		FROM employees
		WHERE is_active = TRUE
		ORDER BY department ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	var employees []attendance.Employee
	for rows.Next() {
		var e attendance.Employee
		if err := rows.Scan(&e.ID, &e.FullName, &e.Department, &e.Active); err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

// UpsertEmployees replaces employees by id and records the import, atomically.
func (s *Store) UpsertEmployees(ctx context.Context, employees []attendance.Employee, imp attendance.RosterImport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	now := formatTime(imp.ImportedAt)
	for _, e := range employees {
		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO employees (id, full_name, department, is_active, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				full_name = excluded.full_name,
				department = excluded.department,
				is_active = excluded.is_active,
				updated_at = excluded.updated_at
		`, e.ID, e.FullName, e.Department, e.Active, now)
		if err != nil {
			return fmt.Errorf("failed to upsert employee %s: %w", e.ID, err)
		}
	}

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO roster_imports (id, filename, row_count, actor_id, imported_at)
		VALUES (?, ?, ?, ?, ?)
	`, imp.ID, imp.Filename, imp.RowCount, nullString(imp.ActorID), now)
	if err != nil {
		return fmt.Errorf("failed to record roster import: %w", err)
	}

	return sqlTx.Commit()
}

// ListRosterImports returns the import provenance log, oldest first.
func (s *Store) ListRosterImports(ctx context.Context) ([]attendance.RosterImport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, filename, row_count, actor_id, imported_at FROM roster_imports ORDER BY imported_at ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list roster imports: %w", err)
	}
	defer rows.Close()

	var imports []attendance.RosterImport
	for rows.Next() {
		var imp attendance.RosterImport
		var actor sql.NullString
		var importedAt string
		if err := rows.Scan(&imp.ID, &imp.Filename, &imp.RowCount, &actor, &importedAt); err != nil {
			return nil, err
		}
		imp.ActorID = actor.String
		imp.ImportedAt = parseTime(importedAt)
		imports = append(imports, imp)
	}
	return imports, rows.Err()
}

// =============================================================================
// SESSIONS (attendance.SessionStore)
// =============================================================================

const sessionColumns = "id, event_name, status, started_at, ended_at, started_by, ended_by"

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) CreateSession(ctx context.Context, sess attendance.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	var activeID string
	err = sqlTx.QueryRowContext(ctx, "SELECT id FROM sessions WHERE status = 'active' LIMIT 1").Scan(&activeID)
	switch {
	case err == nil:
		return &attendance.ConflictError{Op: "start session", ActiveSessionID: attendance.SessionID(activeID)}
	case err != sql.ErrNoRows:
		return fmt.Errorf("failed to check active session: %w", err)
	}

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO sessions (id, event_name, status, started_at, ended_at, started_by, ended_by)
		VALUES (?, ?, ?, ?, NULL, ?, NULL)
	`, sess.ID, sess.EventName, sess.Status, formatTime(sess.StartedAt), nullString(sess.StartedBy))
	if err != nil {
		if isUniqueConstraintError(err) {
			// Another writer (e.g. a second process) won the active slot.
			return &attendance.ConflictError{Op: "start session", Reason: "lost the race for the active slot"}
		}
		return fmt.Errorf("failed to create session: %w", err)
	}

	return sqlTx.Commit()
}

func (s *Store) EndSession(ctx context.Context, id attendance.SessionID, endedAt time.Time, actor string) (attendance.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return attendance.Session{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	res, err := sqlTx.ExecContext(ctx, `
		UPDATE sessions SET status = 'ended', ended_at = ?, ended_by = ?
		WHERE id = ? AND status = 'active'
	`, formatTime(endedAt), nullString(actor), id)
	if err != nil {
		return attendance.Session{}, fmt.Errorf("failed to end session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return attendance.Session{}, fmt.Errorf("failed to end session: %w", err)
	}

	sess, err := getSession(ctx, sqlTx, id)
	if err != nil {
		return attendance.Session{}, err
	}
	if sess == nil {
		return attendance.Session{}, fmt.Errorf("session %s: %w", id, attendance.ErrNotFound)
	}
	if n == 0 {
		return attendance.Session{}, &attendance.ConflictError{Op: "end session", SessionID: id, Reason: "is already ended"}
	}

	if err := sqlTx.Commit(); err != nil {
		return attendance.Session{}, fmt.Errorf("failed to commit end session: %w", err)
	}
	return *sess, nil
}

func (s *Store) ActiveSession(ctx context.Context) (*attendance.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE status = 'active' LIMIT 1")
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active session: %w", err)
	}
	return &sess, nil
}

func (s *Store) GetSession(ctx context.Context, id attendance.SessionID) (*attendance.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSession(ctx, s.db, id)
}

func getSession(ctx context.Context, db queryRower, id attendance.SessionID) (*attendance.Session, error) {
	row := db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &sess, nil
}

func (s *Store) SessionsStartedBetween(ctx context.Context, from, to time.Time) ([]attendance.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sessionColumns+` FROM sessions
		WHERE started_at >= ? AND started_at < ?
		ORDER BY started_at ASC`,
		formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []attendance.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (attendance.Session, error) {
	var sess attendance.Session
	var startedAt string
	var endedAt, startedBy, endedBy sql.NullString

	if err := row.Scan(&sess.ID, &sess.EventName, &sess.Status, &startedAt, &endedAt, &startedBy, &endedBy); err != nil {
		return attendance.Session{}, err
	}
	sess.StartedAt = parseTime(startedAt)
	if endedAt.Valid {
		t := parseTime(endedAt.String)
		sess.EndedAt = &t
	}
	sess.StartedBy = startedBy.String
	sess.EndedBy = endedBy.String
	return sess, nil
}

// =============================================================================
// RECORDS (attendance.RecordStore) - append-only
// =============================================================================

const recordColumns = "id, session_id, employee_id, method, device_id, scanned_at"

// InsertRecord appends a record. UNIQUE(session_id, employee_id) makes the
// insert itself the arbiter between racing devices. The row is only written
// while the session is still active, so a concurrent EndSession wins cleanly.
func (s *Store) InsertRecord(ctx context.Context, r attendance.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	result, err := sqlTx.ExecContext(ctx, `
		INSERT INTO attendance_records (id, session_id, employee_id, method, device_id, scanned_at)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM sessions WHERE id = ? AND status = 'active')
	`, r.ID, r.SessionID, r.EmployeeID, r.Method, r.DeviceID, formatTime(r.ScannedAt), r.SessionID)
	if err != nil {
		if isUniqueConstraintError(err) {
			return attendance.ErrDuplicateRecord
		}
		return fmt.Errorf("failed to insert record: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	if n == 0 {
		return attendance.ErrSessionNotActive
	}
	return sqlTx.Commit()
}

func (s *Store) EarliestRecord(ctx context.Context, sessionID attendance.SessionID, employeeID attendance.EmployeeID) (*attendance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+` FROM attendance_records
		WHERE session_id = ? AND employee_id = ?
		ORDER BY scanned_at ASC
		LIMIT 1`,
		sessionID, employeeID)

	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	return &r, nil
}

func (s *Store) ListRecords(ctx context.Context, sessionID attendance.SessionID) ([]attendance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+recordColumns+` FROM attendance_records
		WHERE session_id = ?
		ORDER BY scanned_at ASC, id ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []attendance.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func scanRecord(row scanner) (attendance.Record, error) {
	var r attendance.Record
	var scannedAt string
	if err := row.Scan(&r.ID, &r.SessionID, &r.EmployeeID, &r.Method, &r.DeviceID, &scannedAt); err != nil {
		return attendance.Record{}, err
	}
	r.ScannedAt = parseTime(scannedAt)
	return r, nil
}

// =============================================================================
// AUDIT LOG (attendance.AuditLog)
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, e attendance.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, timestamp, actor_id, action, session_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, formatTime(e.Timestamp), nullString(e.ActorID), e.Action, nullString(string(e.SessionID)), string(payload))
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s *Store) QueryAudit(ctx context.Context, f attendance.AuditFilter) ([]attendance.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, timestamp, actor_id, action, session_id, payload_json FROM audit_log WHERE 1 = 1"
	var args []any
	if f.SessionID != nil {
		query += " AND session_id = ?"
		args = append(args, *f.SessionID)
	}
	if f.ActorID != nil {
		query += " AND actor_id = ?"
		args = append(args, *f.ActorID)
	}
	if len(f.Actions) > 0 {
		query += " AND action IN (?" + strings.Repeat(", ?", len(f.Actions)-1) + ")"
		for _, a := range f.Actions {
			args = append(args, a)
		}
	}
	query += " ORDER BY timestamp ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []attendance.AuditEntry
	for rows.Next() {
		var e attendance.AuditEntry
		var ts string
		var actor, sessionID, payload sql.NullString
		if err := rows.Scan(&e.ID, &ts, &actor, &e.Action, &sessionID, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Timestamp = parseTime(ts)
		e.ActorID = actor.String
		e.SessionID = attendance.SessionID(sessionID.String)
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode payload of audit entry %s: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset clears all data. Development/demo only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"attendance_records", "sessions", "audit_log", "roster_imports", "employees"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
