/*
report.go - Exportable session and monthly reports

PURPOSE:
  Produces plain aggregate structures for export. Rendering them into a
  spreadsheet is someone else's job; this file guarantees the content.

SESSION REPORT (three sheets):
  1. Summary + department rates  -> Session, Stats, Departments
  2. Raw present records         -> Present (and Records for the full log)
  3. Absent roster               -> Absent

  PARTITION INVARIANT: every active roster employee appears exactly once,
  either in Present or in Absent.

MONTHLY PIVOT:
  One column per session started in the month (fixed time zone,
  [first of month, first of next month)), plus Total and AverageRate.
  AverageRate is the UNWEIGHTED mean of per-session rates. It is not
  sum(present)/sum(total); the two diverge whenever attendance varies, and
  downstream consumers depend on the unweighted form.
*/
package attendance

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Attendee is a present employee with the record that made them present.
type Attendee struct {
	Employee Employee
	Record   Record
}

type SessionReport struct {
	Session     Session
	GeneratedAt time.Time
	Stats       SessionStats
	Departments []DepartmentStat
	Present     []Attendee
	Absent      []Employee
	Records     []Record // raw log, may include employees no longer active
}

type MonthlyReport struct {
	Month       Month
	Location    string
	GeneratedAt time.Time
	Sessions    []Session // columns, ordered by StartedAt
	Rows        []MonthlyRow
}

type MonthlyRow struct {
	Department  string
	Total       int
	Cells       []MonthlyCell // one per Sessions entry, same order
	AverageRate decimal.Decimal
}

type MonthlyCell struct {
	SessionID SessionID
	Present   int
	Rate      decimal.Decimal
}

// Reports is the Report Aggregator.
type Reports struct {
	Sessions SessionStore
	Roster   Roster
	Records  RecordStore
	Location *time.Location // month boundaries; nil means UTC
	Clock    Clock
}

// SessionReport builds the three-sheet export of one session.
func (r *Reports) SessionReport(ctx context.Context, id SessionID) (SessionReport, error) {
	in, err := loadSessionInputs(ctx, r.Sessions, r.Roster, r.Records, id)
	if err != nil {
		return SessionReport{}, err
	}

	byEmployee := make(map[EmployeeID]Record, len(in.records))
	for _, rec := range in.records {
		if _, ok := byEmployee[rec.EmployeeID]; !ok {
			byEmployee[rec.EmployeeID] = rec
		}
	}

	report := SessionReport{
		Session:     in.session,
		GeneratedAt: r.now(),
		Stats:       computeSessionStats(in.roster, in.records),
		Departments: computeDepartmentStats(in.roster, in.records),
		Present:     []Attendee{},
		Absent:      []Employee{},
		Records:     in.records,
	}
	for _, e := range in.roster {
		if rec, ok := byEmployee[e.ID]; ok {
			report.Present = append(report.Present, Attendee{Employee: e, Record: rec})
		} else {
			report.Absent = append(report.Absent, e)
		}
	}

	sort.SliceStable(report.Present, func(i, j int) bool {
		return report.Present[i].Record.ScannedAt.Before(report.Present[j].Record.ScannedAt)
	})
	sort.SliceStable(report.Absent, func(i, j int) bool {
		a, b := report.Absent[i], report.Absent[j]
		if a.Department != b.Department {
			return a.Department < b.Department
		}
		return a.ID < b.ID
	})
	return report, nil
}

// MonthlyReport builds the per-department pivot across the month's sessions.
func (r *Reports) MonthlyReport(ctx context.Context, month Month) (MonthlyReport, error) {
	loc := locationOrUTC(r.Location)
	from, to := month.Range(loc)

	sessions, err := r.Sessions.SessionsStartedBetween(ctx, from, to)
	if err != nil {
		return MonthlyReport{}, &SystemError{Op: "list sessions", Err: err}
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})

	roster, err := r.Roster.ListActive(ctx)
	if err != nil {
		return MonthlyReport{}, &SystemError{Op: "list roster", Err: err}
	}

	deptOf := make(map[EmployeeID]string, len(roster))
	totals := make(map[string]int)
	for _, e := range roster {
		deptOf[e.ID] = e.Department
		totals[e.Department]++
	}
	departments := make([]string, 0, len(totals))
	for d := range totals {
		departments = append(departments, d)
	}
	sort.Strings(departments)

	// presentBySession[i][dept] = distinct employees of dept recorded in session i
	presentBySession := make([]map[string]int, len(sessions))
	for i, sess := range sessions {
		recs, err := r.Records.ListRecords(ctx, sess.ID)
		if err != nil {
			return MonthlyReport{}, &SystemError{Op: "list records", Err: err}
		}
		counts := make(map[string]int)
		for id := range presentSet(recs) {
			if dept, ok := deptOf[id]; ok {
				counts[dept]++
			}
		}
		presentBySession[i] = counts
	}

	report := MonthlyReport{
		Month:       month,
		Location:    loc.String(),
		GeneratedAt: r.now(),
		Sessions:    sessions,
		Rows:        make([]MonthlyRow, 0, len(departments)),
	}
	for _, dept := range departments {
		row := MonthlyRow{
			Department: dept,
			Total:      totals[dept],
			Cells:      make([]MonthlyCell, 0, len(sessions)),
		}
		rates := make([]decimal.Decimal, 0, len(sessions))
		for i, sess := range sessions {
			present := presentBySession[i][dept]
			rate := Rate(present, row.Total)
			row.Cells = append(row.Cells, MonthlyCell{SessionID: sess.ID, Present: present, Rate: rate})
			rates = append(rates, rate)
		}
		row.AverageRate = AverageRate(rates)
		report.Rows = append(report.Rows, row)
	}
	return report, nil
}

func (r *Reports) now() time.Time {
	if r.Clock == nil {
		return systemClock()
	}
	return r.Clock()
}

// CurrentMonth is the month containing now, in the report location.
func (r *Reports) CurrentMonth() Month {
	return MonthOf(r.now(), locationOrUTC(r.Location))
}
