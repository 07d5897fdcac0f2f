package alert

// SLALimits maps each severity to the maximum number of days an alert may
// stay open before being flagged overdue.
type SLALimits map[Severity]float64

// DefaultSLALimits returns the default per-severity limit table.
// Unknown-severity alerts share the medium limit.
func DefaultSLALimits() SLALimits {
	return SLALimits{
		SeverityCritical: 2,
		SeverityHigh:     7,
		SeverityMedium:   30,
		SeverityLow:      90,
		SeverityUnknown:  30,
	}
}

// LimitFor returns the limit for a severity, falling back to the unknown
// entry and then the package default.
func (l SLALimits) LimitFor(sev Severity) float64 {
	if limit, ok := l[NormalizeSeverity(string(sev))]; ok && limit > 0 {
		return limit
	}
	if limit, ok := l[SeverityUnknown]; ok && limit > 0 {
		return limit
	}
	return DefaultSLALimits()[NormalizeSeverity(string(sev))]
}

// Merge overlays non-zero entries from other onto a copy of l.
func (l SLALimits) Merge(other SLALimits) SLALimits {
	merged := make(SLALimits, len(l)+len(other))
	for sev, limit := range l {
		merged[sev] = limit
	}
	for sev, limit := range other {
		if limit > 0 {
			merged[NormalizeSeverity(string(sev))] = limit
		}
	}
	return merged
}

// Overdue applies the strict SLA comparison: exactly at the limit is still
// within SLA.
func (l SLALimits) Overdue(sev Severity, openDays float64) bool {
	return openDays > l.LimitFor(sev)
}
