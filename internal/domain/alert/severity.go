package alert

import "strings"

// Severity is stored normalized to lower case.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityUnknown  Severity = "unknown"
)

// Severities lists the canonical severities in rank order.
var Severities = []Severity{
	SeverityCritical,
	SeverityHigh,
	SeverityMedium,
	SeverityLow,
	SeverityUnknown,
}

var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
	SeverityUnknown:  4,
}

// NormalizeSeverity maps a provider severity string onto the canonical set,
// case-insensitively, falling back to SeverityUnknown.
func NormalizeSeverity(raw string) Severity {
	sev := Severity(lowerTrim(raw))
	if _, ok := severityRank[sev]; ok {
		return sev
	}
	return SeverityUnknown
}

// Rank orders severities critical < high < medium < low < unknown.
// Unrecognized values rank with unknown.
func Rank(sev Severity) int {
	if rank, ok := severityRank[sev]; ok {
		return rank
	}
	return severityRank[SeverityUnknown]
}

func lowerTrim(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
