package attendance

import (
	"fmt"
	"time"
)

// =============================================================================
// MONTH - Calendar month evaluated in a fixed time zone
// =============================================================================

const monthLayout = "2006-01"

type Month struct {
	Year  int
	Month time.Month
}

// ParseMonth parses "YYYY-MM".
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return Month{}, fmt.Errorf("%w: month %q must be YYYY-MM", ErrInvalidInput, s)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// MonthOf returns the month containing t in loc.
func MonthOf(t time.Time, loc *time.Location) Month {
	local := t.In(locationOrUTC(loc))
	return Month{Year: local.Year(), Month: local.Month()}
}

// Range returns [first instant of the month, first instant of the next month) in loc.
func (m Month) Range(loc *time.Location) (from, to time.Time) {
	from = time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, locationOrUTC(loc))
	return from, from.AddDate(0, 1, 0)
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

func locationOrUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
