/*
Package roster reads employee roster files for the import pipeline.

PURPOSE:
  Turns an uploaded roster CSV into []attendance.Employee. The importer
  (attendance.RosterImporter) owns dedup, provenance and persistence; this
  package only parses.

FORMAT:
  Header row required, column order free, names case-insensitive:

    employee_id,full_name,department,is_active
    E001,Alice Smith,Engineering,true

  is_active is optional (missing column or empty cell means active).
  Accepted booleans: true/false, 1/0, yes/no, y/n.
  Rows with a blank employee_id are skipped.

SEE ALSO:
  - attendance/roster.go: RosterImporter.Import
  - cmd/server/main.go: "roster import" command
*/
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/warp/checkin-engine/attendance"
)

const (
	colID         = "employee_id"
	colFullName   = "full_name"
	colDepartment = "department"
	colActive     = "is_active"
)

var ErrMissingColumn = errors.New("roster: missing required column")

// ParseCSV reads a roster file. Line numbers in errors are 1-based and
// include the header.
func ParseCSV(r io.Reader) ([]attendance.Employee, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrMissingColumn)
	}
	if err != nil {
		return nil, fmt.Errorf("roster: read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		cols[name] = i
	}
	for _, required := range []string{colID, colFullName, colDepartment} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}

	var employees []attendance.Employee
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("roster: line %d: %w", line, err)
		}

		id := field(rec, cols, colID)
		if id == "" {
			continue
		}
		active, err := parseActive(field(rec, cols, colActive))
		if err != nil {
			return nil, fmt.Errorf("roster: line %d: %w", line, err)
		}
		employees = append(employees, attendance.Employee{
			ID:         attendance.EmployeeID(id),
			FullName:   field(rec, cols, colFullName),
			Department: field(rec, cols, colDepartment),
			Active:     active,
		})
	}
	return employees, nil
}

func field(rec []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func parseActive(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "", "true", "1", "yes", "y":
		return true, nil
	case "false", "0", "no", "n":
		return false, nil
	}
	return false, fmt.Errorf("invalid is_active value %q", v)
}
