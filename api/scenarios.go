/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos and dashboard development.

AVAILABLE SCENARIOS:

	roster-only:    Roster of three across two departments, no sessions
	town-hall:      Same roster, one active session, one check-in
	monthly-review: Two ended sessions in the current month
	                (Dept A 50% then 100%, monthly average 75%)

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Import the roster through RosterImporter (provenance recorded)
 3. Live scenarios go through Sessions/Scanner like real traffic
 4. Historical scenarios write sessions and records with fixed timestamps
    directly to the store

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "town-hall"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler context
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/warp/checkin-engine/attendance"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

const scenarioActor = "scenario-loader"

var scenarios = []ScenarioDTO{
	{
		ID:          "roster-only",
		Name:        "Roster Only",
		Description: "Three employees in Dept A and Dept B, no sessions yet",
	},
	{
		ID:          "town-hall",
		Name:        "Town Hall",
		Description: "Active session with one QR check-in (EMP-001)",
	},
	{
		ID:          "monthly-review",
		Name:        "Monthly Review",
		Description: "Two ended sessions this month: Dept A at 50% then 100%, averaging 75%",
	},
}

var demoRoster = []attendance.Employee{
	{ID: "EMP-001", FullName: "Ayu Lestari", Department: "Dept A", Active: true},
	{ID: "EMP-002", FullName: "Budi Santoso", Department: "Dept A", Active: true},
	{ID: "EMP-003", FullName: "Citra Dewi", Department: "Dept B", Active: true},
}

// ListScenarios returns all available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var load func(context.Context) error
	switch req.ScenarioID {
	case "roster-only":
		load = h.loadRoster
	case "town-hall":
		load = h.loadTownHallScenario
	case "monthly-review":
		load = h.loadMonthlyReviewScenario
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario: %s", req.ScenarioID), nil)
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.setCurrentScenario("")

	if err := load(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}
	h.setCurrentScenario(req.ScenarioID)

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.setCurrentScenario("")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) setCurrentScenario(id string) {
	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadRoster(ctx context.Context) error {
	_, err := h.Engine.Importer.Import(ctx, demoRoster, "demo-roster.csv", scenarioActor)
	return err
}

func (h *Handler) loadTownHallScenario(ctx context.Context) error {
	if err := h.loadRoster(ctx); err != nil {
		return err
	}
	if _, err := h.Engine.Sessions.Start(ctx, "Town Hall", scenarioActor); err != nil {
		return err
	}
	_, err := h.Engine.Scanner.Scan(ctx, attendance.ScanRequest{
		EmployeeID: "EMP-001",
		Method:     attendance.MethodQR,
		DeviceID:   "lobby-kiosk-1",
	})
	return err
}

func (h *Handler) loadMonthlyReviewScenario(ctx context.Context) error {
	if err := h.loadRoster(ctx); err != nil {
		return err
	}

	from, _ := h.Engine.Reports.CurrentMonth().Range(h.Engine.Reports.Location)
	first := from.Add(9 * time.Hour)
	second := from.Add(24*time.Hour + 9*time.Hour)

	// Dept A: 1 of 2 (50%), Dept B: 1 of 1
	if err := h.seedEndedSession(ctx, "Weekly Briefing #1", first, "EMP-001", "EMP-003"); err != nil {
		return err
	}
	// Dept A: 2 of 2 (100%), Dept B: 0 of 1
	return h.seedEndedSession(ctx, "Weekly Briefing #2", second, "EMP-001", "EMP-002")
}

// seedEndedSession writes a closed session with records at fixed times.
func (h *Handler) seedEndedSession(ctx context.Context, name string, startedAt time.Time, present ...attendance.EmployeeID) error {
	startedAt = startedAt.UTC()
	sess := attendance.Session{
		ID:        attendance.SessionID(uuid.NewString()),
		EventName: name,
		Status:    attendance.SessionActive,
		StartedAt: startedAt,
		StartedBy: scenarioActor,
	}
	if err := h.Store.CreateSession(ctx, sess); err != nil {
		return fmt.Errorf("seed session %q: %w", name, err)
	}

	for i, id := range present {
		rec := attendance.Record{
			ID:         attendance.RecordID(uuid.NewString()),
			SessionID:  sess.ID,
			EmployeeID: id,
			Method:     attendance.MethodQR,
			DeviceID:   "lobby-kiosk-1",
			ScannedAt:  startedAt.Add(time.Duration(i+1) * time.Minute),
		}
		if err := h.Store.InsertRecord(ctx, rec); err != nil {
			return fmt.Errorf("seed record %s: %w", id, err)
		}
	}

	if _, err := h.Store.EndSession(ctx, sess.ID, startedAt.Add(time.Hour), scenarioActor); err != nil {
		return fmt.Errorf("seed end session %q: %w", name, err)
	}
	return nil
}
