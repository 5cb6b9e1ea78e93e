package core

import (
	"fmt"
	"time"
)

// Month is a calendar month value. It wraps a time.Time normalized to the
// first day of the month in UTC, so comparisons and arithmetic come from the
// standard library. Any day component supplied by a caller is discarded.
type Month struct {
	time.Time
}

// NewMonth builds a Month for the given year and month, day forced to 1.
func NewMonth(year int, month time.Month) Month {
	return Month{Time: time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)}
}

// MonthOf truncates an arbitrary instant to its calendar month.
func MonthOf(t time.Time) Month {
	return NewMonth(t.Year(), t.Month())
}

// ParseMonth accepts "2006-01" or "2006-01-02"; the day is ignored either way.
func ParseMonth(s string) (Month, error) {
	if t, err := time.Parse("2006-01", s); err == nil {
		return MonthOf(t), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Month{}, fmt.Errorf("parse month %q: %w", s, ErrInvalidMonth)
	}
	return MonthOf(t), nil
}

// String renders the canonical "2006-01" form used on the wire.
func (m Month) String() string {
	return m.Format("2006-01")
}

// Key renders the "2006-01-02" form persisted in the month_year column,
// always day 01.
func (m Month) Key() string {
	return m.Format("2006-01-02")
}

// Next returns the following calendar month.
func (m Month) Next() Month {
	return MonthOf(m.AddDate(0, 1, 0))
}

func (m Month) Validate() error {
	if m.IsZero() {
		return ErrInvalidMonth
	}
	if y := m.Year(); y < 2000 || y > 2100 {
		return ErrInvalidMonth
	}
	return nil
}

func (m Month) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m *Month) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return ErrInvalidMonth
	}
	parsed, err := ParseMonth(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MonthRange is an inclusive range of calendar months.
type MonthRange struct {
	From Month
	To   Month
}

// Months expands the range in ascending order. An inverted range is empty.
func (r MonthRange) Months() []Month {
	if r.From.After(r.To.Time) {
		return nil
	}
	var out []Month
	for m := r.From; !m.After(r.To.Time); m = m.Next() {
		out = append(out, m)
	}
	return out
}

// Contains reports whether m falls inside the inclusive range.
func (r MonthRange) Contains(m Month) bool {
	return !m.Before(r.From.Time) && !m.After(r.To.Time)
}

// DefaultWindowMonths is the rolling window shown when a caller gives no
// explicit range.
const DefaultWindowMonths = 24

// DefaultWindow returns the rolling 24-month range starting at the month
// containing now.
func DefaultWindow(now time.Time) MonthRange {
	from := MonthOf(now)
	return MonthRange{From: from, To: MonthOf(from.AddDate(0, DefaultWindowMonths-1, 0))}
}
