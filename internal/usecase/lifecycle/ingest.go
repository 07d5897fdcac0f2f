package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"depwatch/internal/bootstrap/logging"
	domainalert "depwatch/internal/domain/alert"
	"depwatch/internal/errs"
	"depwatch/internal/ports"
)

type statePair struct {
	state    string
	severity string
}

// Ingest commits one provider snapshot for a repository.
//
// Inside a single transaction: every incoming alert whose (state, severity)
// differs from the cached pair, or which has no cached row, gets one history
// event at syncTime; every alert row is upserted unconditionally; the
// repo_sync row is set to syncTime. Either all of it commits or none of it.
func (s *Service) Ingest(ctx context.Context, repo string, alerts []domainalert.Alert, syncTime time.Time) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	repo = strings.TrimSpace(repo)
	if repo == "" {
		return errors.New("repo is required")
	}
	if syncTime.IsZero() {
		return errors.New("sync time is required")
	}

	recordedAt := formatTime(syncTime)
	logCtx := logging.WithAttrs(ctx, slog.String("component", "usecase.lifecycle"), slog.String("repo", repo))

	changed := 0
	err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.ListAlerts(txCtx, repo)
		if err != nil {
			return errs.Wrap(err, "load existing alerts")
		}

		known := make(map[int]statePair, len(existing))
		for _, record := range existing {
			known[record.AlertNumber] = statePair{state: record.State, severity: record.Severity}
		}

		for _, incoming := range alerts {
			record := toRecord(incoming)
			record.Repo = repo

			pair := statePair{state: record.State, severity: record.Severity}
			if prev, ok := known[record.AlertNumber]; !ok || prev != pair {
				if err := s.repo.AppendHistory(txCtx, ports.HistoryAppend{
					Repo:        repo,
					AlertNumber: record.AlertNumber,
					State:       record.State,
					Severity:    record.Severity,
					RecordedAt:  recordedAt,
					RawJSON:     record.RawJSON,
				}); err != nil {
					return errs.Wrap(err, "append history event")
				}
				changed++
			}
			known[record.AlertNumber] = pair

			if err := s.repo.UpsertAlert(txCtx, record); err != nil {
				return errs.Wrap(err, "upsert alert")
			}
		}

		if err := s.repo.UpsertRepoSync(txCtx, repo, recordedAt); err != nil {
			return errs.Wrap(err, "upsert repo sync")
		}
		return nil
	})
	if err != nil {
		return errs.Wrapf(err, "ingest alerts for %s", repo)
	}

	logging.Info(logCtx, "snapshot ingested",
		slog.Int("alerts", len(alerts)),
		slog.Int("transitions", changed),
		slog.String("sync_time", recordedAt),
	)
	return nil
}
