// Package recurrence calculates when a recurring transaction is due next.
package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Interval is the repetition cadence of a recurring transaction.
type Interval string

const (
	Daily   Interval = "DAILY"
	Weekly  Interval = "WEEKLY"
	Monthly Interval = "MONTHLY"
	Yearly  Interval = "YEARLY"
)

var ErrInvalidInterval = errors.New("invalid recurring interval")

// Valid reports if the interval is one of the supported interval classes.
func (i Interval) Valid() bool {
	switch i {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// ParseInterval parses an interval class case-insensitively.
func ParseInterval(s string) (Interval, error) {
	i := Interval(strings.ToUpper(strings.TrimSpace(s)))
	if !i.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidInterval, s)
	}
	return i, nil
}

// NextDueDate returns the next occurrence after anchor for the interval.
//
// Month and year steps keep the day of month where possible and clamp it to
// the last day of the target month otherwise, so Jan 31 is followed by the
// last day of February and Feb 29 by Feb 28 in non-leap years. The time of
// day and the location of anchor are kept.
func NextDueDate(anchor time.Time, interval Interval) (time.Time, error) {
	switch interval {
	case Daily:
		return anchor.AddDate(0, 0, 1), nil
	case Weekly:
		return anchor.AddDate(0, 0, 7), nil
	case Monthly:
		return addMonthsClamped(anchor, 1), nil
	case Yearly:
		return addMonthsClamped(anchor, 12), nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidInterval, interval)
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()

	// Day 1 of the target month never overflows
	target := time.Date(year, month+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(target.Year(), target.Month(), t.Location()); day > last {
		day = last
	}

	return time.Date(target.Year(), target.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
