package recurrence

import (
	"fmt"
	"strings"
	"time"
)

// AnchorPolicy decides from which instant the next occurrence is computed
// when a recurring transaction is applied.
type AnchorPolicy int

const (
	// AnchorNow computes the next occurrence from the time of application.
	// A delayed run shifts the cadence permanently.
	AnchorNow AnchorPolicy = iota

	// AnchorSchedule computes the next occurrence from the occurrence that
	// was due. A delayed run keeps the cadence and catches up one occurrence
	// per application while the result is still in the past.
	AnchorSchedule
)

func (p AnchorPolicy) String() string {
	if p == AnchorSchedule {
		return "schedule"
	}
	return "now"
}

// ParseAnchorPolicy parses "now" or "schedule".
func ParseAnchorPolicy(s string) (AnchorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "now":
		return AnchorNow, nil
	case "schedule":
		return AnchorSchedule, nil
	}
	return AnchorNow, fmt.Errorf("unknown anchor policy %q, must be one of [now schedule]", s)
}

// Next returns the next occurrence for a template that was due at scheduled
// and is applied at now.
func (p AnchorPolicy) Next(scheduled, now time.Time, interval Interval) (time.Time, error) {
	if p == AnchorSchedule {
		return NextDueDate(scheduled, interval)
	}
	return NextDueDate(now, interval)
}
