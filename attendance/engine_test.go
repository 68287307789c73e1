package attendance_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/checkin-engine/attendance"
	"github.com/warp/checkin-engine/attendance/store"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// stepClock advances one second on every reading so timestamps are distinct
// and ordered.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock(start time.Time) *stepClock {
	return &stepClock{t: start}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

var march10 = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*attendance.Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	clock := newStepClock(march10)
	return attendance.New(mem, attendance.Config{Clock: clock.Now}), mem
}

// exampleRoster is EMP-001/Dept A, EMP-002/Dept A, EMP-003/Dept B.
func exampleRoster() []attendance.Employee {
	return []attendance.Employee{
		{ID: "EMP-001", FullName: "Ayu", Department: "Dept A", Active: true},
		{ID: "EMP-002", FullName: "Budi", Department: "Dept A", Active: true},
		{ID: "EMP-003", FullName: "Citra", Department: "Dept B", Active: true},
	}
}

func importRoster(t *testing.T, e *attendance.Engine, employees []attendance.Employee) {
	t.Helper()
	_, err := e.Importer.Import(context.Background(), employees, "roster.csv", "hr-admin")
	require.NoError(t, err)
}

func assertRate(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got),
		append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func scan(t *testing.T, e *attendance.Engine, id string, method attendance.Method) attendance.ScanResult {
	t.Helper()
	res, err := e.Scanner.Scan(context.Background(), attendance.ScanRequest{EmployeeID: id, Method: method, DeviceID: "kiosk-1"})
	require.NoError(t, err)
	return res
}

// =============================================================================
// END-TO-END EXAMPLE
// =============================================================================

func TestScanner_ExampleScenario(t *testing.T) {
	// GIVEN: Three active employees and a started session
	e, _ := newTestEngine(t)
	ctx := context.Background()
	importRoster(t, e, exampleRoster())
	sess, err := e.Sessions.Start(ctx, "Town Hall", "admin")
	require.NoError(t, err)

	// WHEN: EMP-001 scans via QR
	first := scan(t, e, "EMP-001", attendance.MethodQR)

	// THEN: Recorded
	assert.Equal(t, attendance.KindRecorded, first.Kind)
	assert.Equal(t, sess.ID, first.SessionID)
	require.NotNil(t, first.Record)
	require.NotNil(t, first.Employee)
	assert.Equal(t, "Dept A", first.Employee.Department)

	// WHEN: EMP-001 is entered again manually
	second := scan(t, e, "EMP-001", attendance.MethodManual)

	// THEN: Duplicate, referencing the QR record
	assert.Equal(t, attendance.KindDuplicate, second.Kind)
	require.NotNil(t, second.Record)
	assert.Equal(t, first.Record.ID, second.Record.ID)
	assert.Equal(t, first.Record.ScannedAt, second.Record.ScannedAt)
	assert.Equal(t, attendance.MethodQR, second.Record.Method)

	// WHEN: An unknown id is submitted
	unknown := scan(t, e, "EMP-999", attendance.MethodQR)
	assert.Equal(t, attendance.KindInvalidEmployee, unknown.Kind)
	assert.Nil(t, unknown.Record)

	// THEN: Stats count one QR presence
	stats, err := e.Stats.SessionStats(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, attendance.SessionStats{RosterTotal: 3, PresentTotal: 1, ScannedTotal: 1, ManualTotal: 0}, stats)

	depts, err := e.Stats.DepartmentStats(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, depts, 2)
	assert.Equal(t, "Dept A", depts[0].Department)
	assert.Equal(t, 1, depts[0].Present)
	assert.Equal(t, 2, depts[0].Total)
	assertRate(t, "50.0", depts[0].Rate)
	assert.Equal(t, "Dept B", depts[1].Department)
	assert.Equal(t, 0, depts[1].Present)
	assert.Equal(t, 1, depts[1].Total)
	assertRate(t, "0", depts[1].Rate)

	report, err := e.Reports.SessionReport(ctx, sess.ID)
	require.NoError(t, err)
	absent := make([]attendance.EmployeeID, len(report.Absent))
	for i, a := range report.Absent {
		absent[i] = a.ID
	}
	assert.Equal(t, []attendance.EmployeeID{"EMP-002", "EMP-003"}, absent)
	require.Len(t, report.Present, 1)
	assert.Equal(t, attendance.EmployeeID("EMP-001"), report.Present[0].Employee.ID)
}

// =============================================================================
// SCAN CLASSIFICATION
// =============================================================================

func TestScanner_InvalidInput(t *testing.T) {
	e, mem := newTestEngine(t)
	ctx := context.Background()
	importRoster(t, e, exampleRoster())
	sess, err := e.Sessions.Start(ctx, "Standup", "admin")
	require.NoError(t, err)

	_, err = e.Scanner.Scan(ctx, attendance.ScanRequest{EmployeeID: "   ", Method: attendance.MethodQR})
	assert.ErrorIs(t, err, attendance.ErrInvalidInput)
	assert.True(t, attendance.IsClientError(err))

	_, err = e.Scanner.Scan(ctx, attendance.ScanRequest{EmployeeID: "EMP-001", Method: "face"})
	assert.ErrorIs(t, err, attendance.ErrInvalidInput)

	recs, err := mem.ListRecords(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, recs, "invalid input must not write")
}

func TestScanner_NoActiveSession(t *testing.T) {
	e, _ := newTestEngine(t)
	importRoster(t, e, exampleRoster())

	res := scan(t, e, "EMP-001", attendance.MethodQR)
	assert.Equal(t, attendance.KindNoActiveSession, res.Kind)
	assert.Empty(t, res.SessionID)
	assert.Nil(t, res.Record)
}

func TestScanner_InactiveEmployeeIsInvalid(t *testing.T) {
	e, _ := newTestEngine(t)
	roster := exampleRoster()
	roster[1].Active = false
	importRoster(t, e, roster)
	_, err := e.Sessions.Start(context.Background(), "Standup", "admin")
	require.NoError(t, err)

	res := scan(t, e, "EMP-002", attendance.MethodQR)
	assert.Equal(t, attendance.KindInvalidEmployee, res.Kind)
}

func TestScanner_TrimsIDAndDefaultsDevice(t *testing.T) {
	e, _ := newTestEngine(t)
	importRoster(t, e, exampleRoster())
	_, err := e.Sessions.Start(context.Background(), "Standup", "admin")
	require.NoError(t, err)

	res, err := e.Scanner.Scan(context.Background(), attendance.ScanRequest{EmployeeID: "  EMP-003 \n", Method: attendance.MethodManual})
	require.NoError(t, err)
	assert.Equal(t, attendance.KindRecorded, res.Kind)
	assert.Equal(t, attendance.EmployeeID("EMP-003"), res.Record.EmployeeID)
	assert.Equal(t, attendance.UnknownDevice, res.Record.DeviceID)
}

func TestScanner_ConcurrentSubmissionsRecordOnce(t *testing.T) {
	// GIVEN: One employee and an active session
	e, mem := newTestEngine(t)
	ctx := context.Background()
	importRoster(t, e, exampleRoster())
	sess, err := e.Sessions.Start(ctx, "Town Hall", "admin")
	require.NoError(t, err)

	// WHEN: 50 devices submit the same employee at once
	const n = 50
	results := make([]attendance.ScanResult, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			method := attendance.MethodQR
			if i%2 == 1 {
				method = attendance.MethodManual
			}
			res, err := e.Scanner.Scan(ctx, attendance.ScanRequest{EmployeeID: "EMP-001", Method: method})
			results[i] = res
			return err
		})
	}
	require.NoError(t, g.Wait())

	// THEN: Exactly one Recorded, the rest Duplicate, all with the same ScannedAt
	var recorded, duplicate int
	var winner *attendance.Record
	for _, res := range results {
		switch res.Kind {
		case attendance.KindRecorded:
			recorded++
			winner = res.Record
		case attendance.KindDuplicate:
			duplicate++
		}
	}
	assert.Equal(t, 1, recorded)
	assert.Equal(t, n-1, duplicate)
	require.NotNil(t, winner)
	for _, res := range results {
		assert.Equal(t, winner.ScannedAt, res.Record.ScannedAt)
		assert.Equal(t, winner.ID, res.Record.ID)
	}

	recs, err := mem.ListRecords(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

// failingRecords fails every insert, as a broken disk would.
type failingRecords struct {
	*store.Memory
	err error
}

func (f failingRecords) InsertRecord(context.Context, attendance.Record) error { return f.err }

func TestScanner_StoreFailureIsRetryableSystemError(t *testing.T) {
	mem := store.NewMemory()
	e := attendance.New(mem, attendance.Config{})
	importRoster(t, e, exampleRoster())
	_, err := e.Sessions.Start(context.Background(), "Standup", "admin")
	require.NoError(t, err)

	diskFull := errors.New("disk full")
	scanner := &attendance.Scanner{
		Sessions: mem,
		Roster:   mem,
		Records:  failingRecords{Memory: mem, err: diskFull},
	}

	_, err = scanner.Scan(context.Background(), attendance.ScanRequest{EmployeeID: "EMP-001", Method: attendance.MethodQR})
	require.Error(t, err)
	assert.ErrorIs(t, err, attendance.ErrSystem)
	assert.ErrorIs(t, err, diskFull)
	assert.True(t, attendance.IsRetryable(err))
	assert.False(t, attendance.IsClientError(err))

	var sysErr *attendance.SystemError
	require.ErrorAs(t, err, &sysErr)
	assert.Equal(t, "insert record", sysErr.Op)

	// Resubmitting after recovery degrades to Recorded, then Duplicate.
	assert.Equal(t, attendance.KindRecorded, scan(t, e, "EMP-001", attendance.MethodQR).Kind)
	assert.Equal(t, attendance.KindDuplicate, scan(t, e, "EMP-001", attendance.MethodQR).Kind)
}

func TestScanner_PublishesOnlyWhenRecorded(t *testing.T) {
	e, _ := newTestEngine(t)
	importRoster(t, e, exampleRoster())
	sess, err := e.Sessions.Start(context.Background(), "Standup", "admin")
	require.NoError(t, err)

	sub := e.Broadcaster.Subscribe(sess.ID)
	defer sub.Close()

	scan(t, e, "EMP-001", attendance.MethodQR)
	select {
	case n := <-sub.C():
		assert.Equal(t, sess.ID, n.SessionID)
		assert.Equal(t, attendance.ReasonRecorded, n.Reason)
	default:
		t.Fatal("expected a notification after a recorded scan")
	}

	scan(t, e, "EMP-001", attendance.MethodQR)
	select {
	case n := <-sub.C():
		t.Fatalf("duplicate must not notify, got %+v", n)
	default:
	}
}

// endsAfterLookup hands out the active session, then ends it before the
// scanner gets to insert.
type endsAfterLookup struct {
	*store.Memory
	end func(attendance.SessionID)
}

func (s endsAfterLookup) ActiveSession(ctx context.Context) (*attendance.Session, error) {
	sess, err := s.Memory.ActiveSession(ctx)
	if err == nil && sess != nil {
		s.end(sess.ID)
	}
	return sess, err
}

func TestScanner_SessionEndedMidScan(t *testing.T) {
	// GIVEN: A session that ends between the active lookup and the insert
	e, mem := newTestEngine(t)
	importRoster(t, e, exampleRoster())
	ctx := context.Background()
	sess, err := e.Sessions.Start(ctx, "Standup", "admin")
	require.NoError(t, err)

	scanner := &attendance.Scanner{
		Sessions: endsAfterLookup{Memory: mem, end: func(id attendance.SessionID) {
			_, endErr := e.Sessions.End(ctx, id, "admin")
			require.NoError(t, endErr)
		}},
		Roster:  mem,
		Records: mem,
	}

	// WHEN: A device submits a check-in
	res, err := scanner.Scan(ctx, attendance.ScanRequest{EmployeeID: "EMP-001", Method: attendance.MethodQR, DeviceID: "kiosk-1"})

	// THEN: It is not recorded into the ended session
	require.NoError(t, err)
	assert.Equal(t, attendance.KindNoActiveSession, res.Kind)
	assert.Nil(t, res.Record)

	ended, err := e.Sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, attendance.SessionEnded, ended.Status)

	recs, err := mem.ListRecords(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================

func TestSessions_SingleActive(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := e.Sessions.Start(ctx, "  Morning Briefing  ", "admin")
	require.NoError(t, err)
	assert.Equal(t, "Morning Briefing", first.EventName)
	assert.True(t, first.IsActive())

	_, err = e.Sessions.Start(ctx, "Second", "lead")
	require.ErrorIs(t, err, attendance.ErrConflict)
	var conflict *attendance.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, first.ID, conflict.ActiveSessionID)

	// The rejected start leaves the active session untouched.
	active, err := e.Sessions.Active(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, first.ID, active.ID)
	assert.Equal(t, "Morning Briefing", active.EventName)
	assert.Equal(t, attendance.SessionActive, active.Status)
	assert.True(t, first.StartedAt.Equal(active.StartedAt))
	assert.Equal(t, "admin", active.StartedBy)
	assert.Nil(t, active.EndedAt)
}

func TestSessions_StartRequiresName(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Sessions.Start(context.Background(), "   ", "admin")
	assert.ErrorIs(t, err, attendance.ErrInvalidInput)
}

func TestSessions_EndLifecycle(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Sessions.End(ctx, "missing", "admin")
	assert.ErrorIs(t, err, attendance.ErrNotFound)
	assert.True(t, attendance.IsNotFound(err))

	sess, err := e.Sessions.Start(ctx, "Standup", "admin")
	require.NoError(t, err)

	ended, err := e.Sessions.End(ctx, sess.ID, "lead")
	require.NoError(t, err)
	assert.Equal(t, attendance.SessionEnded, ended.Status)
	require.NotNil(t, ended.EndedAt)
	assert.True(t, ended.EndedAt.After(ended.StartedAt))
	assert.Equal(t, "lead", ended.EndedBy)

	_, err = e.Sessions.End(ctx, sess.ID, "lead")
	assert.ErrorIs(t, err, attendance.ErrConflict)

	active, err := e.Sessions.Active(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)

	// Scans after the end see no active session.
	importRoster(t, e, exampleRoster())
	assert.Equal(t, attendance.KindNoActiveSession, scan(t, e, "EMP-001", attendance.MethodQR).Kind)

	// A new session may start once the previous one ended.
	_, err = e.Sessions.Start(ctx, "Retro", "admin")
	assert.NoError(t, err)

	_, err = e.Sessions.Get(ctx, "missing")
	assert.ErrorIs(t, err, attendance.ErrNotFound)
}

func TestSessions_AuditTrail(t *testing.T) {
	e, mem := newTestEngine(t)
	ctx := context.Background()

	sess, err := e.Sessions.Start(ctx, "Standup", "admin")
	require.NoError(t, err)
	_, err = e.Sessions.End(ctx, sess.ID, "lead")
	require.NoError(t, err)

	entries, err := mem.QueryAudit(ctx, attendance.AuditFilter{SessionID: &sess.ID})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, attendance.AuditSessionStarted, entries[0].Action)
	assert.Equal(t, "admin", entries[0].ActorID)
	assert.Equal(t, attendance.AuditSessionEnded, entries[1].Action)
	assert.Equal(t, "lead", entries[1].ActorID)
}

func TestSessions_PublishEnded(t *testing.T) {
	e, _ := newTestEngine(t)
	sess, err := e.Sessions.Start(context.Background(), "Standup", "admin")
	require.NoError(t, err)

	sub := e.Broadcaster.Subscribe(sess.ID)
	defer sub.Close()

	_, err = e.Sessions.End(context.Background(), sess.ID, "admin")
	require.NoError(t, err)

	n := <-sub.C()
	assert.Equal(t, attendance.ReasonSessionEnded, n.Reason)
}

// =============================================================================
// ROSTER IMPORT
// =============================================================================

func TestRosterImporter_UpsertAndProvenance(t *testing.T) {
	e, mem := newTestEngine(t)
	ctx := context.Background()

	imp, err := e.Importer.Import(ctx, []attendance.Employee{
		{ID: " EMP-001 ", FullName: " Ayu ", Department: " Dept A ", Active: true},
		{ID: "EMP-002", FullName: "Budi", Department: "Dept A", Active: true},
		{ID: "EMP-001", FullName: "Ayu L.", Department: "Dept B", Active: true},
	}, "march.csv", "hr-admin")
	require.NoError(t, err)
	assert.Equal(t, 2, imp.RowCount)
	assert.Equal(t, "march.csv", imp.Filename)

	emp, err := mem.Lookup(ctx, "EMP-001")
	require.NoError(t, err)
	require.NotNil(t, emp)
	assert.Equal(t, "Ayu L.", emp.FullName, "later rows win")
	assert.Equal(t, "Dept B", emp.Department)

	// A second import deactivates EMP-002.
	_, err = e.Importer.Import(ctx, []attendance.Employee{
		{ID: "EMP-002", FullName: "Budi", Department: "Dept A", Active: false},
	}, "april.csv", "hr-admin")
	require.NoError(t, err)

	active, err := mem.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, attendance.EmployeeID("EMP-001"), active[0].ID)

	imports, err := mem.ListRosterImports(ctx)
	require.NoError(t, err)
	require.Len(t, imports, 2)
	assert.Equal(t, "april.csv", imports[1].Filename)

	audit, err := mem.QueryAudit(ctx, attendance.AuditFilter{Actions: []attendance.AuditAction{attendance.AuditRosterImported}})
	require.NoError(t, err)
	assert.Len(t, audit, 2)
}

func TestRosterImporter_RejectsBlankID(t *testing.T) {
	e, mem := newTestEngine(t)
	_, err := e.Importer.Import(context.Background(), []attendance.Employee{
		{ID: "EMP-001", FullName: "Ayu", Department: "Dept A", Active: true},
		{ID: "  ", FullName: "Nobody", Department: "Dept A", Active: true},
	}, "bad.csv", "hr-admin")
	require.ErrorIs(t, err, attendance.ErrInvalidInput)
	assert.Contains(t, err.Error(), "row 2")

	active, err := mem.ListActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active, "a rejected import writes nothing")
}
