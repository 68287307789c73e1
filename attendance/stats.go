/*
stats.go - Live per-session statistics

PURPOSE:
  Derives the current attendance snapshot of a session from the record log
  and the active roster. Nothing here is stored: every call recomputes from
  committed data, so present_total can never exceed the committed records.

PUSH MODEL:
  Scanner publishes a Notification after every accepted insert. Consumers
  re-pull Snapshot; under bursts they may skip intermediate states but the
  values they read are always consistent with one committed state.

RATE:
  rate = round(present/total * 1000) / 10, total = 0 -> 0. See rate.go.

ORDER:
  Departments sort by rate desc, present desc, then name asc.
*/
package attendance

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type SessionStats struct {
	RosterTotal  int
	PresentTotal int
	ScannedTotal int
	ManualTotal  int
}

type DepartmentStat struct {
	Department string
	Present    int
	Total      int
	Rate       decimal.Decimal
}

// Snapshot is a consistent view of one session at AsOf.
type Snapshot struct {
	Session     Session
	AsOf        time.Time
	Stats       SessionStats
	Departments []DepartmentStat
}

// Stats is the Stats Aggregator.
type Stats struct {
	Sessions SessionStore
	Roster   Roster
	Records  RecordStore
	Clock    Clock
}

func (s *Stats) SessionStats(ctx context.Context, id SessionID) (SessionStats, error) {
	snap, err := s.Snapshot(ctx, id)
	if err != nil {
		return SessionStats{}, err
	}
	return snap.Stats, nil
}

func (s *Stats) DepartmentStats(ctx context.Context, id SessionID) ([]DepartmentStat, error) {
	snap, err := s.Snapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	return snap.Departments, nil
}

// Snapshot loads the roster and records once and derives both views from them.
func (s *Stats) Snapshot(ctx context.Context, id SessionID) (Snapshot, error) {
	in, err := loadSessionInputs(ctx, s.Sessions, s.Roster, s.Records, id)
	if err != nil {
		return Snapshot{}, err
	}
	now := systemClock
	if s.Clock != nil {
		now = s.Clock
	}
	return Snapshot{
		Session:     in.session,
		AsOf:        now(),
		Stats:       computeSessionStats(in.roster, in.records),
		Departments: computeDepartmentStats(in.roster, in.records),
	}, nil
}

// =============================================================================
// SHARED LOADING & COMPUTATION (also used by report.go)
// =============================================================================

type sessionInputs struct {
	session Session
	roster  []Employee
	records []Record
}

func loadSessionInputs(ctx context.Context, sessions SessionStore, roster Roster, records RecordStore, id SessionID) (sessionInputs, error) {
	sess, err := sessions.GetSession(ctx, id)
	if err != nil {
		return sessionInputs{}, &SystemError{Op: "load session", Err: err}
	}
	if sess == nil {
		return sessionInputs{}, ErrNotFound
	}
	active, err := roster.ListActive(ctx)
	if err != nil {
		return sessionInputs{}, &SystemError{Op: "list roster", Err: err}
	}
	recs, err := records.ListRecords(ctx, id)
	if err != nil {
		return sessionInputs{}, &SystemError{Op: "list records", Err: err}
	}
	return sessionInputs{session: *sess, roster: active, records: recs}, nil
}

func computeSessionStats(roster []Employee, records []Record) SessionStats {
	st := SessionStats{RosterTotal: len(roster)}
	seen := make(map[EmployeeID]bool, len(records))
	for _, r := range records {
		if seen[r.EmployeeID] {
			continue
		}
		seen[r.EmployeeID] = true
		st.PresentTotal++
		switch r.Method {
		case MethodQR:
			st.ScannedTotal++
		case MethodManual:
			st.ManualTotal++
		}
	}
	return st
}

func computeDepartmentStats(roster []Employee, records []Record) []DepartmentStat {
	present := presentSet(records)
	byDept := make(map[string]*DepartmentStat)
	var order []string
	for _, e := range roster {
		d, ok := byDept[e.Department]
		if !ok {
			d = &DepartmentStat{Department: e.Department}
			byDept[e.Department] = d
			order = append(order, e.Department)
		}
		d.Total++
		if present[e.ID] {
			d.Present++
		}
	}

	out := make([]DepartmentStat, 0, len(order))
	for _, name := range order {
		d := byDept[name]
		d.Rate = Rate(d.Present, d.Total)
		out = append(out, *d)
	}
	sortDepartmentStats(out)
	return out
}

func sortDepartmentStats(stats []DepartmentStat) {
	sort.SliceStable(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		if c := a.Rate.Cmp(b.Rate); c != 0 {
			return c > 0
		}
		if a.Present != b.Present {
			return a.Present > b.Present
		}
		return a.Department < b.Department
	})
}

func presentSet(records []Record) map[EmployeeID]bool {
	set := make(map[EmployeeID]bool, len(records))
	for _, r := range records {
		set[r.EmployeeID] = true
	}
	return set
}
