// Package core holds the canonical domain types shared by the insight
// engine and its collaborators.
//
// This file contains the calendar-date value type. All dates in the
// system are plain calendar dates serialized as YYYY-MM-DD; provider
// records with unparsable dates are excluded from date-scoped views
// rather than treated as errors.
package core

import (
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar date with day granularity, normalized to UTC
// midnight. The zero value means "no date".
type Date struct {
	time.Time
}

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// DateOf truncates a time to its calendar date in UTC.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// AddDays returns the date n calendar days later (earlier for negative n).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// MonthKey returns the YYYY-MM bucket key for monthly aggregates.
func (d Date) MonthKey() string {
	return d.Format("2006-01")
}

// Within reports whether d falls in the inclusive [from, to] range.
func (d Date) Within(from, to Date) bool {
	return !d.Before(from.Time) && !d.After(to.Time)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == `null` || s == `""` {
		*d = Date{}
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	// Accept full timestamps too; goal target dates from clients often
	// arrive as RFC 3339.
	if parsed, err := ParseDate(s); err == nil {
		*d = parsed
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return ErrInvalidDate
	}
	*d = DateOf(t.UTC())
	return nil
}
