package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"depwatch/internal/bootstrap/logging"
	domainalert "depwatch/internal/domain/alert"
	"depwatch/internal/errs"
	"depwatch/internal/ports"
)

// State returns the cached alerts for one repository, ordered by severity
// rank ascending and creation time descending (newest first, unknown
// creation time last).
func (s *Service) State(ctx context.Context, repo string) (CurrentState, error) {
	if ctx == nil {
		return CurrentState{}, errors.New("context is required")
	}
	repo = strings.TrimSpace(repo)
	if repo == "" {
		return CurrentState{}, errors.New("repo is required")
	}

	sync, hasCache, err := s.repo.GetRepoSync(ctx, repo)
	if err != nil {
		return CurrentState{}, errs.Wrap(err, "read repo sync")
	}

	alerts, err := s.repo.ListAlerts(ctx, repo)
	if err != nil {
		return CurrentState{}, errs.Wrap(err, "read alerts")
	}
	sortAlerts(alerts)

	return CurrentState{
		Repo:     repo,
		Alerts:   alerts,
		LastSync: sync.LastSync,
		HasCache: hasCache,
	}, nil
}

// TrackedRepos lists every repository that has been ingested at least once.
func (s *Service) TrackedRepos(ctx context.Context) ([]RepoSyncItem, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	syncs, err := s.repo.ListRepoSyncs(ctx)
	if err != nil {
		return nil, errs.Wrap(err, "read repo syncs")
	}

	items := make([]RepoSyncItem, 0, len(syncs))
	for _, sync := range syncs {
		items = append(items, RepoSyncItem{Repo: sync.Repo, LastSync: sync.LastSync})
	}
	return items, nil
}

// RemoveRepo drops the alerts, history and sync record for one repository.
func (s *Service) RemoveRepo(ctx context.Context, repo string) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	repo = strings.TrimSpace(repo)
	if repo == "" {
		return errors.New("repo is required")
	}

	err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		return s.repo.DeleteRepoData(txCtx, repo)
	})
	if err != nil {
		return errs.Wrapf(err, "remove repo %s", repo)
	}

	logging.Info(ctx, "repo removed from cache",
		slog.String("component", "usecase.lifecycle"),
		slog.String("repo", repo),
	)
	return nil
}

// ResetAll clears the whole cache: alerts, history and sync records.
func (s *Service) ResetAll(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		return s.repo.DeleteAllData(txCtx)
	})
	if err != nil {
		return errs.Wrap(err, "reset cache")
	}

	logging.Info(ctx, "alert cache cleared", slog.String("component", "usecase.lifecycle"))
	return nil
}

func sortAlerts(alerts []ports.AlertRecord) {
	sort.SliceStable(alerts, func(i, j int) bool {
		ri := domainalert.Rank(domainalert.Severity(alerts[i].Severity))
		rj := domainalert.Rank(domainalert.Severity(alerts[j].Severity))
		if ri != rj {
			return ri < rj
		}

		// RFC3339 UTC strings order lexicographically; nil sorts last.
		ci, cj := alerts[i].CreatedAt, alerts[j].CreatedAt
		switch {
		case ci == nil && cj == nil:
			return alerts[i].AlertNumber < alerts[j].AlertNumber
		case ci == nil:
			return false
		case cj == nil:
			return true
		case *ci != *cj:
			return *ci > *cj
		default:
			return alerts[i].AlertNumber < alerts[j].AlertNumber
		}
	})
}
