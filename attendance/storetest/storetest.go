// Package storetest holds the behavioral tests every attendance.Store
// implementation must pass. Adapters call Run from their own _test.go files.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/checkin-engine/attendance"
	"golang.org/x/sync/errgroup"
)

// Factory returns a fresh, empty store. Cleanup is the factory's job.
type Factory func(t *testing.T) attendance.Store

var base = time.Date(2025, time.March, 10, 9, 0, 0, 123456789, time.UTC)

// Run executes the full contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("RosterUpsertAndLookup", func(t *testing.T) { testRoster(t, newStore(t)) })
	t.Run("SingleActiveSession", func(t *testing.T) { testSingleActive(t, newStore(t)) })
	t.Run("EndSession", func(t *testing.T) { testEndSession(t, newStore(t)) })
	t.Run("SessionsStartedBetween", func(t *testing.T) { testSessionsBetween(t, newStore(t)) })
	t.Run("RecordUniqueness", func(t *testing.T) { testRecordUniqueness(t, newStore(t)) })
	t.Run("RecordRequiresActiveSession", func(t *testing.T) { testRecordRequiresActive(t, newStore(t)) })
	t.Run("ConcurrentInserts", func(t *testing.T) { testConcurrentInserts(t, newStore(t)) })
	t.Run("ConcurrentStarts", func(t *testing.T) { testConcurrentStarts(t, newStore(t)) })
	t.Run("Audit", func(t *testing.T) { testAudit(t, newStore(t)) })
}

func activeSession(id string, startedAt time.Time) attendance.Session {
	return attendance.Session{
		ID:        attendance.SessionID(id),
		EventName: "Event " + id,
		Status:    attendance.SessionActive,
		StartedAt: startedAt,
		StartedBy: "admin",
	}
}

func record(id string, sess attendance.SessionID, emp attendance.EmployeeID, at time.Time) attendance.Record {
	return attendance.Record{
		ID:         attendance.RecordID(id),
		SessionID:  sess,
		EmployeeID: emp,
		Method:     attendance.MethodQR,
		DeviceID:   "kiosk-1",
		ScannedAt:  at,
	}
}

func testRoster(t *testing.T, s attendance.Store) {
	ctx := context.Background()

	emp, err := s.Lookup(ctx, "EMP-404")
	require.NoError(t, err)
	assert.Nil(t, emp, "unknown employee is nil, not an error")

	require.NoError(t, s.UpsertEmployees(ctx, []attendance.Employee{
		{ID: "E2", FullName: "Budi", Department: "Sales", Active: true},
		{ID: "E1", FullName: "Ayu", Department: "Eng", Active: true},
		{ID: "E3", FullName: "Citra", Department: "Eng", Active: false},
	}, attendance.RosterImport{ID: "imp-1", Filename: "roster.csv", RowCount: 3, ActorID: "hr", ImportedAt: base}))

	emp, err = s.Lookup(ctx, "E3")
	require.NoError(t, err)
	require.NotNil(t, emp)
	assert.False(t, emp.Active)

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, attendance.EmployeeID("E1"), active[0].ID, "ordered by department then id")
	assert.Equal(t, attendance.EmployeeID("E2"), active[1].ID)

	// Upsert replaces by id.
	require.NoError(t, s.UpsertEmployees(ctx, []attendance.Employee{
		{ID: "E1", FullName: "Ayu L.", Department: "Ops", Active: true},
	}, attendance.RosterImport{ID: "imp-2", Filename: "fix.csv", RowCount: 1, ImportedAt: base.Add(time.Hour)}))

	emp, err = s.Lookup(ctx, "E1")
	require.NoError(t, err)
	require.NotNil(t, emp)
	assert.Equal(t, attendance.Employee{ID: "E1", FullName: "Ayu L.", Department: "Ops", Active: true}, *emp)
}

func testSingleActive(t *testing.T, s attendance.Store) {
	ctx := context.Background()

	active, err := s.ActiveSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)

	require.NoError(t, s.CreateSession(ctx, activeSession("s1", base)))

	err = s.CreateSession(ctx, activeSession("s2", base.Add(time.Minute)))
	require.ErrorIs(t, err, attendance.ErrConflict)
	var conflict *attendance.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, attendance.SessionID("s1"), conflict.ActiveSessionID)

	active, err = s.ActiveSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, attendance.SessionID("s1"), active.ID)
	assert.True(t, active.StartedAt.Equal(base), "timestamps round-trip at full precision")

	missing, err := s.GetSession(ctx, "s2")
	require.NoError(t, err)
	assert.Nil(t, missing, "rejected session was not stored")
}

func testEndSession(t *testing.T, s attendance.Store) {
	ctx := context.Background()

	_, err := s.EndSession(ctx, "nope", base, "admin")
	assert.ErrorIs(t, err, attendance.ErrNotFound)

	require.NoError(t, s.CreateSession(ctx, activeSession("s1", base)))
	endedAt := base.Add(time.Hour)
	ended, err := s.EndSession(ctx, "s1", endedAt, "lead")
	require.NoError(t, err)
	assert.Equal(t, attendance.SessionEnded, ended.Status)
	require.NotNil(t, ended.EndedAt)
	assert.True(t, ended.EndedAt.Equal(endedAt))
	assert.Equal(t, "lead", ended.EndedBy)
	assert.Equal(t, "admin", ended.StartedBy)

	_, err = s.EndSession(ctx, "s1", endedAt, "lead")
	assert.ErrorIs(t, err, attendance.ErrConflict)

	active, err := s.ActiveSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)

	// The slot is free again.
	require.NoError(t, s.CreateSession(ctx, activeSession("s2", base.Add(2*time.Hour))))
}

func testSessionsBetween(t *testing.T, s attendance.Store) {
	ctx := context.Background()
	starts := []time.Time{
		time.Date(2025, 2, 28, 23, 59, 59, 0, time.UTC),
		time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	for i, at := range starts {
		id := attendance.SessionID(fmt.Sprintf("s%d", i))
		require.NoError(t, s.CreateSession(ctx, activeSession(string(id), at)))
		_, err := s.EndSession(ctx, id, at.Add(time.Hour), "admin")
		require.NoError(t, err)
	}

	got, err := s.SessionsStartedBetween(ctx,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, attendance.SessionID("s2"), got[0].ID, "ordered by start, inclusive lower bound")
	assert.Equal(t, attendance.SessionID("s1"), got[1].ID)
}

func testRecordUniqueness(t *testing.T, s attendance.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateSession(ctx, activeSession("s1", base)))

	first := record("r1", "s1", "E1", base.Add(time.Minute))
	require.NoError(t, s.InsertRecord(ctx, first))
	require.NoError(t, s.InsertRecord(ctx, record("r2", "s1", "E2", base.Add(30*time.Second))))

	err := s.InsertRecord(ctx, record("r3", "s1", "E1", base.Add(2*time.Minute)))
	assert.ErrorIs(t, err, attendance.ErrDuplicateRecord)

	earliest, err := s.EarliestRecord(ctx, "s1", "E1")
	require.NoError(t, err)
	require.NotNil(t, earliest)
	assert.Equal(t, first.ID, earliest.ID)
	assert.True(t, earliest.ScannedAt.Equal(first.ScannedAt))

	none, err := s.EarliestRecord(ctx, "s1", "E9")
	require.NoError(t, err)
	assert.Nil(t, none)

	recs, err := s.ListRecords(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, attendance.RecordID("r2"), recs[0].ID, "ordered by scanned_at")
	assert.Equal(t, attendance.RecordID("r1"), recs[1].ID)

	// The same employee may attend another session.
	_, err = s.EndSession(ctx, "s1", base.Add(time.Hour), "admin")
	require.NoError(t, err)
	require.NoError(t, s.CreateSession(ctx, activeSession("s2", base.Add(2*time.Hour))))
	assert.NoError(t, s.InsertRecord(ctx, record("r4", "s2", "E1", base.Add(2*time.Hour+time.Minute))))
}

func testRecordRequiresActive(t *testing.T, s attendance.Store) {
	ctx := context.Background()

	err := s.InsertRecord(ctx, record("r0", "nope", "E1", base))
	assert.ErrorIs(t, err, attendance.ErrSessionNotActive, "unknown session")

	require.NoError(t, s.CreateSession(ctx, activeSession("s1", base)))
	require.NoError(t, s.InsertRecord(ctx, record("r1", "s1", "E1", base.Add(time.Minute))))

	endedAt := base.Add(time.Hour)
	_, err = s.EndSession(ctx, "s1", endedAt, "admin")
	require.NoError(t, err)

	// A new pair and an existing pair are both rejected once the session ended.
	err = s.InsertRecord(ctx, record("r2", "s1", "E2", endedAt.Add(time.Second)))
	assert.ErrorIs(t, err, attendance.ErrSessionNotActive)
	err = s.InsertRecord(ctx, record("r3", "s1", "E1", endedAt.Add(time.Second)))
	assert.ErrorIs(t, err, attendance.ErrSessionNotActive)

	// Another session being active does not reopen s1.
	require.NoError(t, s.CreateSession(ctx, activeSession("s2", base.Add(2*time.Hour))))
	err = s.InsertRecord(ctx, record("r4", "s1", "E3", base.Add(2*time.Hour)))
	assert.ErrorIs(t, err, attendance.ErrSessionNotActive)

	recs, err := s.ListRecords(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, attendance.RecordID("r1"), recs[0].ID)
}

func testConcurrentInserts(t *testing.T, s attendance.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateSession(ctx, activeSession("s1", base)))

	const n = 25
	errs := make([]error, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			errs[i] = s.InsertRecord(ctx, record(fmt.Sprintf("r%d", i), "s1", "E1", base.Add(time.Duration(i)*time.Millisecond)))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var ok, dup int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, attendance.ErrDuplicateRecord)
		dup++
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, dup)

	recs, err := s.ListRecords(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func testConcurrentStarts(t *testing.T, s attendance.Store) {
	ctx := context.Background()

	const n = 10
	errs := make([]error, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			errs[i] = s.CreateSession(ctx, activeSession(fmt.Sprintf("s%d", i), base))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, attendance.ErrConflict)
	}
	assert.Equal(t, 1, ok)
}

func testAudit(t *testing.T, s attendance.Store) {
	ctx := context.Background()
	sid := attendance.SessionID("s1")
	actor := "admin"

	entries := []attendance.AuditEntry{
		{ID: "a1", Timestamp: base, ActorID: actor, Action: attendance.AuditSessionStarted, SessionID: sid, Payload: map[string]any{"event_name": "Town Hall"}},
		{ID: "a2", Timestamp: base.Add(time.Minute), ActorID: "hr", Action: attendance.AuditRosterImported, Payload: map[string]any{"row_count": 3}},
		{ID: "a3", Timestamp: base.Add(time.Hour), ActorID: actor, Action: attendance.AuditSessionEnded, SessionID: sid},
	}
	for _, e := range entries {
		require.NoError(t, s.AppendAudit(ctx, e))
	}

	bySession, err := s.QueryAudit(ctx, attendance.AuditFilter{SessionID: &sid})
	require.NoError(t, err)
	require.Len(t, bySession, 2)
	assert.Equal(t, "a1", bySession[0].ID)
	assert.Equal(t, "Town Hall", bySession[0].Payload["event_name"])

	byActor, err := s.QueryAudit(ctx, attendance.AuditFilter{ActorID: &actor, Actions: []attendance.AuditAction{attendance.AuditSessionEnded}})
	require.NoError(t, err)
	require.Len(t, byActor, 1)
	assert.Equal(t, "a3", byActor[0].ID)

	all, err := s.QueryAudit(ctx, attendance.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
