// Package alert holds the canonical vulnerability-alert model and the pure
// rules the lifecycle cache and analytics are built on: state and severity
// normalization, severity ranking, day arithmetic and SLA limits.
package alert

import (
	"encoding/json"
	"math"
	"time"
)

// State is an alert's remediation status.
type State string

const (
	StateOpen      State = "open"
	StateFixed     State = "fixed"
	StateDismissed State = "dismissed"
	StateUnknown   State = "unknown"
)

// Alert is the canonical view of one dependency-vulnerability finding,
// identified by (Repo, Number). RawJSON preserves the provider payload
// verbatim for replay and audit.
type Alert struct {
	Repo   string
	Number int

	State    State
	Severity Severity

	PackageName  *string
	Ecosystem    *string
	ManifestPath *string

	CreatedAt   *time.Time
	UpdatedAt   *time.Time
	DismissedAt *time.Time
	FixedAt     *time.Time

	AdvisoryID      *string
	CVEID           *string
	AdvisorySummary *string
	CVSSScore       *float64
	PatchedVersion  *string

	HTMLURL *string

	RawJSON json.RawMessage
}

// Resolved reports whether the alert has left the open state for good
// as far as the current snapshot is concerned.
func (a Alert) Resolved() bool {
	return a.State == StateFixed || a.State == StateDismissed
}

// NormalizeState maps a provider state string onto the canonical set,
// falling back to StateUnknown.
func NormalizeState(raw string) State {
	switch State(lowerTrim(raw)) {
	case StateOpen:
		return StateOpen
	case StateFixed:
		return StateFixed
	case StateDismissed:
		return StateDismissed
	default:
		return StateUnknown
	}
}

// DaysBetween returns the fractional number of days from one instant to a
// later one. Negative when to precedes from.
func DaysBetween(from time.Time, to time.Time) float64 {
	return to.Sub(from).Hours() / 24
}

// RoundDays rounds a day count to one decimal place.
func RoundDays(days float64) float64 {
	return math.Round(days*10) / 10
}
