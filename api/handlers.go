/*
handlers.go - HTTP API handlers for the attendance engine

PURPOSE:
  Exposes the attendance engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the engine components.

ENDPOINTS:
  Roster:
    GET    /api/employees                 Active roster

  Sessions:
    POST   /api/sessions                  Start a session
    GET    /api/sessions/active           Currently active session (or null)
    GET    /api/sessions/{id}             Session details
    POST   /api/sessions/{id}/end         End a session
    GET    /api/sessions/{id}/stats       Live stats snapshot
    GET    /api/sessions/{id}/report      Session export (summary, present, absent)
    GET    /api/sessions/{id}/live        WebSocket stats stream (live.go)

  Scans:
    POST   /api/scans                     Submit a check-in

  Reports:
    GET    /api/reports/monthly?month=YYYY-MM

  Scenarios:
    GET    /api/scenarios                 List demo scenarios
    POST   /api/scenarios/load            Load a demo scenario

REQUEST FLOW:
  1. Parse HTTP request
  2. Call the engine (all validation lives there)
  3. Serialize response
  4. Map errors to status codes (writeEngineError)

ERROR HANDLING:
  - 400: ErrInvalidInput
  - 404: ErrNotFound
  - 409: ErrConflict (details carry active_session_id when known)
  - 503: ErrSystem, with "retryable": true
  - 500: anything else

  A scan that is Duplicate, InvalidEmployee or NoActiveSession is NOT an
  error: it returns 200 with the classification in "kind".

SECURITY NOTE:
  No authentication. Device and operator identity are out of scope.

SEE ALSO:
  - dto.go: Request/response data structures
  - live.go: WebSocket stats stream
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/warp/checkin-engine/attendance"
	"go.uber.org/zap"
)

// Store is the persistence surface the API needs: the engine store plus
// the dev-only reset used by scenarios.
type Store interface {
	attendance.Store
	Reset(ctx context.Context) error
}

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *attendance.Engine
	Store  Store
	Logger *zap.Logger

	// AllowedOrigins is shared by CORS and the WebSocket origin check.
	AllowedOrigins []string

	mu              sync.Mutex
	currentScenario string
	done            chan struct{} // closed on shutdown, ends live streams
	closeOnce       sync.Once
}

// NewHandler creates a new handler over an engine and its store.
func NewHandler(engine *attendance.Engine, store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Engine: engine,
		Store:  store,
		Logger: logger,
	}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// ROSTER HANDLERS
// =============================================================================

// ListEmployees returns the active roster.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Engine.Roster.ListActive(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list employees", err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTOs(employees))
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

// StartSession opens a new session. 409 if one is already active.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	sess, err := h.Engine.Sessions.Start(r.Context(), req.EventName, req.ActorID)
	if err != nil {
		h.writeEngineError(w, "Failed to start session", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionDTO(sess))
}

// GetActiveSession returns {"session": null} when nothing is active.
func (h *Handler) GetActiveSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Engine.Sessions.Active(r.Context())
	if err != nil {
		h.writeEngineError(w, "Failed to load active session", err)
		return
	}

	resp := ActiveSessionResponse{}
	if sess != nil {
		dto := toSessionDTO(*sess)
		resp.Session = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSession returns one session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Engine.Sessions.Get(r.Context(), sessionIDParam(r))
	if err != nil {
		h.writeEngineError(w, "Failed to load session", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(sess))
}

// EndSession ends an active session. The body is optional.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	var req EndSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	sess, err := h.Engine.Sessions.End(r.Context(), sessionIDParam(r), req.ActorID)
	if err != nil {
		h.writeEngineError(w, "Failed to end session", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(sess))
}

// GetSessionStats returns the current snapshot (stats + departments).
func (h *Handler) GetSessionStats(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Engine.Stats.Snapshot(r.Context(), sessionIDParam(r))
	if err != nil {
		h.writeEngineError(w, "Failed to compute stats", err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTO(snap))
}

// GetSessionReport returns the exportable session report.
func (h *Handler) GetSessionReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.Engine.Reports.SessionReport(r.Context(), sessionIDParam(r))
	if err != nil {
		h.writeEngineError(w, "Failed to build report", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionReportDTO(report))
}

// =============================================================================
// SCAN HANDLERS
// =============================================================================

// SubmitScan classifies one check-in. Every classification is a 200.
func (h *Handler) SubmitScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Engine.Scanner.Scan(r.Context(), attendance.ScanRequest{
		EmployeeID: req.EmployeeID,
		Method:     attendance.Method(strings.ToLower(strings.TrimSpace(req.Method))),
		DeviceID:   req.DeviceID,
	})
	if err != nil {
		h.writeEngineError(w, "Failed to process scan", err)
		return
	}
	writeJSON(w, http.StatusOK, toScanResponse(result))
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// GetMonthlyReport returns the department pivot for ?month=YYYY-MM
// (default: the current month in the configured zone).
func (h *Handler) GetMonthlyReport(w http.ResponseWriter, r *http.Request) {
	var month attendance.Month
	if raw := r.URL.Query().Get("month"); raw != "" {
		m, err := attendance.ParseMonth(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid month, expected YYYY-MM", err)
			return
		}
		month = m
	} else {
		month = h.Engine.Reports.CurrentMonth()
	}

	report, err := h.Engine.Reports.MonthlyReport(r.Context(), month)
	if err != nil {
		h.writeEngineError(w, "Failed to build monthly report", err)
		return
	}
	writeJSON(w, http.StatusOK, toMonthlyReportDTO(report))
}

// =============================================================================
// HELPERS
// =============================================================================

func sessionIDParam(r *http.Request) attendance.SessionID {
	return attendance.SessionID(chi.URLParam(r, "id"))
}

// writeEngineError maps engine errors to HTTP status codes.
func (h *Handler) writeEngineError(w http.ResponseWriter, message string, err error) {
	var conflict *attendance.ConflictError
	switch {
	case errors.Is(err, attendance.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, attendance.ErrNotFound):
		writeError(w, http.StatusNotFound, message, err)
	case errors.As(err, &conflict):
		details := map[string]string{"reason": err.Error()}
		if conflict.ActiveSessionID != "" {
			details["active_session_id"] = string(conflict.ActiveSessionID)
		}
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: message, Details: details})
	case attendance.IsRetryable(err):
		h.Logger.Error(message, zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: message, Details: err.Error(), Retryable: true})
	default:
		h.Logger.Error(message, zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
