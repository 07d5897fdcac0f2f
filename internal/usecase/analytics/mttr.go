package analytics

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	domainalert "depwatch/internal/domain/alert"
	"depwatch/internal/errs"
)

// MTTREntry is the mean time to remediate for one (repo, severity) group.
type MTTREntry struct {
	Repo          string  `json:"repo"`
	Severity      string  `json:"severity"`
	AvgDays       float64 `json:"avg_days"`
	ResolvedCount int     `json:"resolved_count"`
}

type remediationSample struct {
	repo     string
	severity domainalert.Severity
	days     float64
}

// MTTR averages, per (repo, severity), the elapsed days between each
// alert's first open event and its first later resolution event. The first
// occurrence of each is used deliberately so reopen/reclose cycles neither
// inflate nor deflate the average; alerts never resolved contribute nothing.
// repo == "" spans all repositories.
func (s *Service) MTTR(ctx context.Context, repo string) ([]MTTREntry, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	history, err := s.repo.ListHistory(ctx, strings.TrimSpace(repo))
	if err != nil {
		return nil, errs.Wrap(err, "load history")
	}

	type lifecycleTrack struct {
		openAt       time.Time
		openSeverity domainalert.Severity
		opened       bool
		resolvedAt   time.Time
		resolved     bool
	}

	tracks := make(map[alertKey]*lifecycleTrack)
	order := make([]alertKey, 0)
	for _, event := range history {
		key := alertKey{repo: event.Repo, number: event.AlertNumber}
		track, ok := tracks[key]
		if !ok {
			track = &lifecycleTrack{}
			tracks[key] = track
			order = append(order, key)
		}
		if track.resolved {
			continue
		}

		recordedAt, parsed := parseRecordedAt(event.RecordedAt)
		if !parsed {
			continue
		}

		switch domainalert.NormalizeState(event.State) {
		case domainalert.StateOpen:
			if !track.opened {
				track.openAt = recordedAt
				track.openSeverity = domainalert.NormalizeSeverity(event.Severity)
				track.opened = true
			}
		case domainalert.StateFixed, domainalert.StateDismissed:
			if track.opened {
				track.resolvedAt = recordedAt
				track.resolved = true
			}
		}
	}

	type groupKey struct {
		repo     string
		severity domainalert.Severity
	}
	sums := make(map[groupKey]float64)
	counts := make(map[groupKey]int)
	for _, key := range order {
		track := tracks[key]
		if !track.opened || !track.resolved {
			continue
		}
		sample := remediationSample{
			repo:     key.repo,
			severity: track.openSeverity,
			days:     domainalert.DaysBetween(track.openAt, track.resolvedAt),
		}
		group := groupKey{repo: sample.repo, severity: sample.severity}
		sums[group] += sample.days
		counts[group]++
	}

	entries := make([]MTTREntry, 0, len(sums))
	for group, sum := range sums {
		entries = append(entries, MTTREntry{
			Repo:          group.repo,
			Severity:      string(group.severity),
			AvgDays:       domainalert.RoundDays(sum / float64(counts[group])),
			ResolvedCount: counts[group],
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Repo != entries[j].Repo {
			return entries[i].Repo < entries[j].Repo
		}
		return domainalert.Rank(domainalert.Severity(entries[i].Severity)) <
			domainalert.Rank(domainalert.Severity(entries[j].Severity))
	})
	return entries, nil
}
