/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Roster:    EmployeeDTO
  Sessions:  SessionDTO, StartSessionRequest, EndSessionRequest, ActiveSessionResponse
  Scans:     ScanRequestDTO, ScanResponse, RecordDTO
  Stats:     SnapshotDTO, SessionStatsDTO, DepartmentStatDTO
  Reports:   SessionReportDTO, MonthlyReportDTO
  Scenarios: ScenarioDTO, LoadScenarioRequest

RATES:
  Rates are computed as decimals with one fractional digit and exported as
  JSON numbers (50.0 -> 50). They are never recomputed from floats.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/checkin-engine/attendance"
)

// =============================================================================
// ROSTER
// =============================================================================

type EmployeeDTO struct {
	ID         string `json:"id"`
	FullName   string `json:"full_name"`
	Department string `json:"department"`
	Active     bool   `json:"is_active"`
}

// =============================================================================
// SESSIONS
// =============================================================================

type SessionDTO struct {
	ID        string     `json:"id"`
	EventName string     `json:"event_name"`
	Status    string     `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	StartedBy string     `json:"started_by,omitempty"`
	EndedBy   string     `json:"ended_by,omitempty"`
}

type StartSessionRequest struct {
	EventName string `json:"event_name"`
	ActorID   string `json:"actor_id"`
}

type EndSessionRequest struct {
	ActorID string `json:"actor_id"`
}

type ActiveSessionResponse struct {
	Session *SessionDTO `json:"session"`
}

// =============================================================================
// SCANS
// =============================================================================

type ScanRequestDTO struct {
	EmployeeID string `json:"employee_id"`
	Method     string `json:"method"`
	DeviceID   string `json:"device_id"`
}

type RecordDTO struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	EmployeeID string    `json:"employee_id"`
	Method     string    `json:"method"`
	DeviceID   string    `json:"device_id"`
	ScannedAt  time.Time `json:"scanned_at"`
}

// ScanResponse carries the classification. Record is the new record for
// "recorded" and the earliest existing record for "duplicate".
type ScanResponse struct {
	Kind       string       `json:"kind"`
	SessionID  string       `json:"session_id,omitempty"`
	EmployeeID string       `json:"employee_id"`
	Employee   *EmployeeDTO `json:"employee,omitempty"`
	Record     *RecordDTO   `json:"record,omitempty"`
}

// =============================================================================
// STATS
// =============================================================================

type SessionStatsDTO struct {
	RosterTotal  int `json:"roster_total"`
	PresentTotal int `json:"present_total"`
	ScannedTotal int `json:"scanned_total"`
	ManualTotal  int `json:"manual_total"`
}

type DepartmentStatDTO struct {
	Department string  `json:"department"`
	Present    int     `json:"present"`
	Total      int     `json:"total"`
	Rate       float64 `json:"rate"`
}

type SnapshotDTO struct {
	Session     SessionDTO          `json:"session"`
	AsOf        time.Time           `json:"as_of"`
	Stats       SessionStatsDTO     `json:"stats"`
	Departments []DepartmentStatDTO `json:"departments"`
}

// =============================================================================
// REPORTS
// =============================================================================

type AttendeeDTO struct {
	Employee EmployeeDTO `json:"employee"`
	Record   RecordDTO   `json:"record"`
}

type SessionReportDTO struct {
	Session     SessionDTO          `json:"session"`
	GeneratedAt time.Time           `json:"generated_at"`
	Stats       SessionStatsDTO     `json:"stats"`
	Departments []DepartmentStatDTO `json:"departments"`
	Present     []AttendeeDTO       `json:"present"`
	Absent      []EmployeeDTO       `json:"absent"`
	Records     []RecordDTO         `json:"records"`
}

type MonthlyCellDTO struct {
	SessionID string  `json:"session_id"`
	Present   int     `json:"present"`
	Rate      float64 `json:"rate"`
}

type MonthlyRowDTO struct {
	Department  string           `json:"department"`
	Total       int              `json:"total"`
	Cells       []MonthlyCellDTO `json:"cells"`
	AverageRate float64          `json:"average_rate"`
}

type MonthlyReportDTO struct {
	Month       string          `json:"month"`
	Location    string          `json:"location"`
	GeneratedAt time.Time       `json:"generated_at"`
	Sessions    []SessionDTO    `json:"sessions"`
	Rows        []MonthlyRowDTO `json:"rows"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Details   any    `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toEmployeeDTO(e attendance.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:         string(e.ID),
		FullName:   e.FullName,
		Department: e.Department,
		Active:     e.Active,
	}
}

func toEmployeeDTOs(employees []attendance.Employee) []EmployeeDTO {
	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	return dtos
}

func toSessionDTO(s attendance.Session) SessionDTO {
	return SessionDTO{
		ID:        string(s.ID),
		EventName: s.EventName,
		Status:    string(s.Status),
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
		StartedBy: s.StartedBy,
		EndedBy:   s.EndedBy,
	}
}

func toRecordDTO(r attendance.Record) RecordDTO {
	return RecordDTO{
		ID:         string(r.ID),
		SessionID:  string(r.SessionID),
		EmployeeID: string(r.EmployeeID),
		Method:     string(r.Method),
		DeviceID:   r.DeviceID,
		ScannedAt:  r.ScannedAt,
	}
}

func toRecordDTOs(records []attendance.Record) []RecordDTO {
	dtos := make([]RecordDTO, len(records))
	for i, r := range records {
		dtos[i] = toRecordDTO(r)
	}
	return dtos
}

func toScanResponse(res attendance.ScanResult) ScanResponse {
	resp := ScanResponse{
		Kind:       string(res.Kind),
		SessionID:  string(res.SessionID),
		EmployeeID: string(res.EmployeeID),
	}
	if res.Employee != nil {
		e := toEmployeeDTO(*res.Employee)
		resp.Employee = &e
	}
	if res.Record != nil {
		r := toRecordDTO(*res.Record)
		resp.Record = &r
	}
	return resp
}

func toSessionStatsDTO(s attendance.SessionStats) SessionStatsDTO {
	return SessionStatsDTO{
		RosterTotal:  s.RosterTotal,
		PresentTotal: s.PresentTotal,
		ScannedTotal: s.ScannedTotal,
		ManualTotal:  s.ManualTotal,
	}
}

func toDepartmentStatDTOs(stats []attendance.DepartmentStat) []DepartmentStatDTO {
	dtos := make([]DepartmentStatDTO, len(stats))
	for i, d := range stats {
		dtos[i] = DepartmentStatDTO{
			Department: d.Department,
			Present:    d.Present,
			Total:      d.Total,
			Rate:       d.Rate.InexactFloat64(),
		}
	}
	return dtos
}

func toSnapshotDTO(s attendance.Snapshot) SnapshotDTO {
	return SnapshotDTO{
		Session:     toSessionDTO(s.Session),
		AsOf:        s.AsOf,
		Stats:       toSessionStatsDTO(s.Stats),
		Departments: toDepartmentStatDTOs(s.Departments),
	}
}

func toSessionReportDTO(r attendance.SessionReport) SessionReportDTO {
	present := make([]AttendeeDTO, len(r.Present))
	for i, a := range r.Present {
		present[i] = AttendeeDTO{Employee: toEmployeeDTO(a.Employee), Record: toRecordDTO(a.Record)}
	}
	return SessionReportDTO{
		Session:     toSessionDTO(r.Session),
		GeneratedAt: r.GeneratedAt,
		Stats:       toSessionStatsDTO(r.Stats),
		Departments: toDepartmentStatDTOs(r.Departments),
		Present:     present,
		Absent:      toEmployeeDTOs(r.Absent),
		Records:     toRecordDTOs(r.Records),
	}
}

func toMonthlyReportDTO(r attendance.MonthlyReport) MonthlyReportDTO {
	sessions := make([]SessionDTO, len(r.Sessions))
	for i, s := range r.Sessions {
		sessions[i] = toSessionDTO(s)
	}
	rows := make([]MonthlyRowDTO, len(r.Rows))
	for i, row := range r.Rows {
		cells := make([]MonthlyCellDTO, len(row.Cells))
		for j, c := range row.Cells {
			cells[j] = MonthlyCellDTO{SessionID: string(c.SessionID), Present: c.Present, Rate: c.Rate.InexactFloat64()}
		}
		rows[i] = MonthlyRowDTO{
			Department:  row.Department,
			Total:       row.Total,
			Cells:       cells,
			AverageRate: row.AverageRate.InexactFloat64(),
		}
	}
	return MonthlyReportDTO{
		Month:       r.Month.String(),
		Location:    r.Location,
		GeneratedAt: r.GeneratedAt,
		Sessions:    sessions,
		Rows:        rows,
	}
}
