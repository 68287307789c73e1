// Package store provides in-memory Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/checkin-engine/attendance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	employees map[attendance.EmployeeID]attendance.Employee
	imports   []attendance.RosterImport
	sessions  map[attendance.SessionID]attendance.Session
	activeID  attendance.SessionID
	records   map[key]attendance.Record
	bySession map[attendance.SessionID][]attendance.Record // ordered by ScannedAt
	audit     []attendance.AuditEntry
}

type key struct {
	SessionID  attendance.SessionID
	EmployeeID attendance.EmployeeID
}

var _ attendance.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		employees: make(map[attendance.EmployeeID]attendance.Employee),
		sessions:  make(map[attendance.SessionID]attendance.Session),
		records:   make(map[key]attendance.Record),
		bySession: make(map[attendance.SessionID][]attendance.Record),
	}
}

// =============================================================================
// ROSTER
// =============================================================================

func (m *Memory) Lookup(_ context.Context, id attendance.EmployeeID) (*attendance.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.employees[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *Memory) ListActive(_ context.Context) ([]attendance.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []attendance.Employee
	for _, e := range m.employees {
		if e.Active {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Department != result[j].Department {
			return result[i].Department < result[j].Department
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// UpsertEmployees replaces employees by id. Atomic under the store lock.
func (m *Memory) UpsertEmployees(_ context.Context, employees []attendance.Employee, imp attendance.RosterImport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range employees {
		m.employees[e.ID] = e
	}
	m.imports = append(m.imports, imp)
	return nil
}

// ListRosterImports returns the provenance log in insertion order.
func (m *Memory) ListRosterImports(_ context.Context) ([]attendance.RosterImport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]attendance.RosterImport(nil), m.imports...), nil
}

// =============================================================================
// SESSIONS
// =============================================================================

func (m *Memory) CreateSession(_ context.Context, s attendance.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeID != "" {
		return &attendance.ConflictError{Op: "start session", ActiveSessionID: m.activeID}
	}
	if _, exists := m.sessions[s.ID]; exists {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	m.sessions[s.ID] = s
	if s.Status == attendance.SessionActive {
		m.activeID = s.ID
	}
	return nil
}

func (m *Memory) EndSession(_ context.Context, id attendance.SessionID, endedAt time.Time, actor string) (attendance.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return attendance.Session{}, fmt.Errorf("session %s: %w", id, attendance.ErrNotFound)
	}
	if s.Status != attendance.SessionActive {
		return attendance.Session{}, &attendance.ConflictError{Op: "end session", SessionID: id, Reason: "is already ended"}
	}
	s.Status = attendance.SessionEnded
	s.EndedAt = &endedAt
	s.EndedBy = actor
	m.sessions[id] = s
	if m.activeID == id {
		m.activeID = ""
	}
	return s, nil
}

func (m *Memory) ActiveSession(_ context.Context) (*attendance.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.activeID == "" {
		return nil, nil
	}
	s := m.sessions[m.activeID]
	return &s, nil
}

func (m *Memory) GetSession(_ context.Context, id attendance.SessionID) (*attendance.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Memory) SessionsStartedBetween(_ context.Context, from, to time.Time) ([]attendance.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []attendance.Session
	for _, s := range m.sessions {
		if !s.StartedAt.Before(from) && s.StartedAt.Before(to) {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.Before(result[j].StartedAt)
	})
	return result, nil
}

// =============================================================================
// RECORDS - Append-only
// =============================================================================

// InsertRecord appends a record. The map check and write happen under one
// lock, so concurrent inserts for the same pair see exactly one winner and
// no insert lands after EndSession.
func (m *Memory) InsertRecord(_ context.Context, r attendance.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeID == "" || m.activeID != r.SessionID {
		return attendance.ErrSessionNotActive
	}

	k := key{SessionID: r.SessionID, EmployeeID: r.EmployeeID}
	if _, exists := m.records[k]; exists {
		return attendance.ErrDuplicateRecord
	}
	m.records[k] = r

	recs := m.bySession[r.SessionID]
	i := sort.Search(len(recs), func(i int) bool {
		return recs[i].ScannedAt.After(r.ScannedAt)
	})
	recs = append(recs, attendance.Record{})
	copy(recs[i+1:], recs[i:])
	recs[i] = r
	m.bySession[r.SessionID] = recs
	return nil
}

func (m *Memory) EarliestRecord(_ context.Context, sessionID attendance.SessionID, employeeID attendance.EmployeeID) (*attendance.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[key{SessionID: sessionID, EmployeeID: employeeID}]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Memory) ListRecords(_ context.Context, sessionID attendance.SessionID) ([]attendance.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]attendance.Record, len(m.bySession[sessionID]))
	copy(result, m.bySession[sessionID])
	return result, nil
}

// =============================================================================
// AUDIT
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, entry attendance.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) QueryAudit(_ context.Context, f attendance.AuditFilter) ([]attendance.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []attendance.AuditEntry
	for _, e := range m.audit {
		if f.SessionID != nil && e.SessionID != *f.SessionID {
			continue
		}
		if f.ActorID != nil && e.ActorID != *f.ActorID {
			continue
		}
		if len(f.Actions) > 0 && !containsAction(f.Actions, e.Action) {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

func containsAction(actions []attendance.AuditAction, a attendance.AuditAction) bool {
	for _, x := range actions {
		if x == a {
			return true
		}
	}
	return false
}

// Reset clears all data. Development/demo only.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.employees = make(map[attendance.EmployeeID]attendance.Employee)
	m.imports = nil
	m.sessions = make(map[attendance.SessionID]attendance.Session)
	m.activeID = ""
	m.records = make(map[key]attendance.Record)
	m.bySession = make(map[attendance.SessionID][]attendance.Record)
	m.audit = nil
	return nil
}
