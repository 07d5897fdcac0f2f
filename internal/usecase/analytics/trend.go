package analytics

import (
	"context"
	"errors"
	"sort"
	"strings"

	domainalert "depwatch/internal/domain/alert"
	"depwatch/internal/errs"
)

// TrendPoint is the reconstructed open-alert count for one calendar day,
// zero-filled per severity.
type TrendPoint struct {
	Date     string `json:"date"`
	Critical int    `json:"critical"`
	High     int    `json:"high"`
	Medium   int    `json:"medium"`
	Low      int    `json:"low"`
	Unknown  int    `json:"unknown"`
}

type openEvent struct {
	day      string
	severity domainalert.Severity
}

// Trend rebuilds a daily snapshot series from the change log. The day set is
// every calendar day carrying at least one open-state event; an alert counts
// on a day under the severity of its most recent open-state event recorded
// on or before that day. repo == "" spans all repositories.
func (s *Service) Trend(ctx context.Context, repo string) ([]TrendPoint, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	history, err := s.repo.ListHistory(ctx, strings.TrimSpace(repo))
	if err != nil {
		return nil, errs.Wrap(err, "load history")
	}

	daySet := make(map[string]struct{})
	eventsByAlert := make(map[alertKey][]openEvent)
	for _, event := range history {
		if domainalert.NormalizeState(event.State) != domainalert.StateOpen {
			continue
		}
		recordedAt, ok := parseRecordedAt(event.RecordedAt)
		if !ok {
			continue
		}

		day := dayOf(recordedAt)
		daySet[day] = struct{}{}

		key := alertKey{repo: event.Repo, number: event.AlertNumber}
		eventsByAlert[key] = append(eventsByAlert[key], openEvent{
			day:      day,
			severity: domainalert.NormalizeSeverity(event.Severity),
		})
	}

	days := make([]string, 0, len(daySet))
	for day := range daySet {
		days = append(days, day)
	}
	sort.Strings(days)

	points := make([]TrendPoint, 0, len(days))
	for _, day := range days {
		point := TrendPoint{Date: day}
		for _, events := range eventsByAlert {
			// Events are in insertion order; the last one on or before
			// this day is the alert's standing for the day.
			var severity domainalert.Severity
			counted := false
			for _, event := range events {
				if event.day > day {
					break
				}
				severity = event.severity
				counted = true
			}
			if !counted {
				continue
			}

			switch severity {
			case domainalert.SeverityCritical:
				point.Critical++
			case domainalert.SeverityHigh:
				point.High++
			case domainalert.SeverityMedium:
				point.Medium++
			case domainalert.SeverityLow:
				point.Low++
			default:
				point.Unknown++
			}
		}
		points = append(points, point)
	}

	return points, nil
}
