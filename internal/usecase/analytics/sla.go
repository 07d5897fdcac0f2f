package analytics

import (
	"context"
	"errors"
	"sort"
	"strings"

	domainalert "depwatch/internal/domain/alert"
	"depwatch/internal/errs"
)

// SLAEntry reports one currently-open alert against its severity limit.
type SLAEntry struct {
	Repo        string  `json:"repo"`
	AlertNumber int     `json:"alert_number"`
	Severity    string  `json:"severity"`
	PackageName string  `json:"package_name,omitempty"`
	FirstSeen   string  `json:"first_seen"`
	OpenDays    float64 `json:"open_days"`
	LimitDays   float64 `json:"limit_days"`
	Overdue     bool    `json:"overdue"`
}

// SLA evaluates every currently-open alert against the per-severity limit
// table. An alert's clock starts at its very first history event. The
// comparison is strict: exactly at the limit is still within SLA. Results
// come worst-first, ordered by descending (openDays - limit).
// repo == "" spans all repositories.
func (s *Service) SLA(ctx context.Context, repo string, limits domainalert.SLALimits) ([]SLAEntry, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if limits == nil {
		limits = domainalert.DefaultSLALimits()
	}

	repo = strings.TrimSpace(repo)
	open, err := s.repo.ListOpenAlerts(ctx, repo)
	if err != nil {
		return nil, errs.Wrap(err, "load open alerts")
	}

	history, err := s.repo.ListHistory(ctx, repo)
	if err != nil {
		return nil, errs.Wrap(err, "load history")
	}

	firstSeen := make(map[alertKey]string, len(open))
	for _, event := range history {
		key := alertKey{repo: event.Repo, number: event.AlertNumber}
		if _, ok := firstSeen[key]; !ok {
			firstSeen[key] = event.RecordedAt
		}
	}

	now := s.now().UTC()
	entries := make([]SLAEntry, 0, len(open))
	for _, record := range open {
		seen, ok := firstSeen[alertKey{repo: record.Repo, number: record.AlertNumber}]
		if !ok {
			continue
		}
		seenAt, parsed := parseRecordedAt(seen)
		if !parsed {
			continue
		}

		severity := domainalert.NormalizeSeverity(record.Severity)
		openDays := domainalert.DaysBetween(seenAt, now)
		limit := limits.LimitFor(severity)

		entries = append(entries, SLAEntry{
			Repo:        record.Repo,
			AlertNumber: record.AlertNumber,
			Severity:    string(severity),
			PackageName: derefOr(record.PackageName, ""),
			FirstSeen:   seen,
			OpenDays:    openDays,
			LimitDays:   limit,
			Overdue:     limits.Overdue(severity, openDays),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].OpenDays-entries[i].LimitDays > entries[j].OpenDays-entries[j].LimitDays
	})
	return entries, nil
}
