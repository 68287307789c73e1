package attendance

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RosterImporter is the write side used by the roster upload pipeline.
// The engine itself never writes the roster.
type RosterImporter struct {
	Store interface {
		RosterWriter
		AuditLog
	}
	Clock  Clock
	Logger *zap.Logger
}

// Import upserts employees by id and records provenance (filename, row count, actor).
// Rows are trimmed; rows without an id are rejected. Later rows win over
// earlier rows with the same id.
func (ri *RosterImporter) Import(ctx context.Context, employees []Employee, filename, actor string) (RosterImport, error) {
	byID := make(map[EmployeeID]int, len(employees))
	cleaned := make([]Employee, 0, len(employees))
	for i, e := range employees {
		e.ID = EmployeeID(strings.TrimSpace(string(e.ID)))
		e.FullName = strings.TrimSpace(e.FullName)
		e.Department = strings.TrimSpace(e.Department)
		if e.ID == "" {
			return RosterImport{}, invalidInput("row %d: employee id is required", i+1)
		}
		if idx, ok := byID[e.ID]; ok {
			cleaned[idx] = e
			continue
		}
		byID[e.ID] = len(cleaned)
		cleaned = append(cleaned, e)
	}

	now := systemClock
	if ri.Clock != nil {
		now = ri.Clock
	}
	imp := RosterImport{
		ID:         uuid.NewString(),
		Filename:   filename,
		RowCount:   len(cleaned),
		ActorID:    actor,
		ImportedAt: now(),
	}
	if err := ri.Store.UpsertEmployees(ctx, cleaned, imp); err != nil {
		return RosterImport{}, &SystemError{Op: "upsert roster", Err: err}
	}

	logger := ri.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("roster imported",
		zap.String("filename", filename),
		zap.Int("rows", imp.RowCount),
		zap.String("actor", actor))

	if err := ri.Store.AppendAudit(ctx, AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: imp.ImportedAt,
		ActorID:   actor,
		Action:    AuditRosterImported,
		Payload:   map[string]any{"filename": filename, "row_count": imp.RowCount, "import_id": imp.ID},
	}); err != nil {
		logger.Warn("audit append failed", zap.String("action", string(AuditRosterImported)), zap.Error(err))
	}
	return imp, nil
}
