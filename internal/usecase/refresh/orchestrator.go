// Package refresh drives ingestion across tracked repositories: one
// repository on demand, or all of them sequentially with a stagger delay and
// per-repository failure isolation.
package refresh

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"depwatch/internal/bootstrap/logging"
	domainalert "depwatch/internal/domain/alert"
	"depwatch/internal/errs"
	"depwatch/internal/ports"
	"depwatch/internal/usecase/lifecycle"
)

type Orchestrator struct {
	cache   *lifecycle.Service
	fetcher ports.AlertFetcher
	stagger time.Duration

	// running is the system's only concurrency control for ingestion:
	// set for the duration of a batch, checked by new invocations.
	running atomic.Bool

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

func NewOrchestrator(cache *lifecycle.Service, fetcher ports.AlertFetcher, stagger time.Duration) *Orchestrator {
	return &Orchestrator{
		cache:   cache,
		fetcher: fetcher,
		stagger: stagger,
		now:     time.Now,
		sleep:   sleepWithContext,
	}
}

// Outcome reports one repository's refresh.
type Outcome struct {
	Repo       string `json:"repo"`
	OK         bool   `json:"ok"`
	AlertCount int    `json:"alert_count"`
	Error      string `json:"error,omitempty"`
}

// BatchResult reports one RefreshAll/RefreshMany run. Skipped means another
// batch was already in progress and nothing was fetched.
type BatchResult struct {
	BatchID    string    `json:"batch_id"`
	Skipped    bool      `json:"skipped"`
	StartedAt  string    `json:"started_at,omitempty"`
	FinishedAt string    `json:"finished_at,omitempty"`
	Total      int       `json:"total"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Outcomes   []Outcome `json:"outcomes,omitempty"`
}

// Running reports whether a batch refresh is in progress.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// RefreshOne fetches, normalizes and ingests one repository's snapshot.
// A fetch failure is reported in the outcome and leaves cached state
// untouched; only a storage failure also returns an error, since that is
// infrastructure trouble rather than bad input.
func (o *Orchestrator) RefreshOne(ctx context.Context, repo string) (Outcome, error) {
	if ctx == nil {
		return Outcome{}, errors.New("context is required")
	}
	repo = strings.TrimSpace(repo)
	if repo == "" {
		return Outcome{}, errors.New("repo is required")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "usecase.refresh"), slog.String("repo", repo))

	raw, err := o.fetcher.FetchRawAlerts(ctx, repo)
	if err != nil {
		logging.Warn(logCtx, "alert fetch failed, keeping cached state", slog.Any("err", errs.Loggable(err)))
		return Outcome{Repo: repo, Error: err.Error()}, nil
	}

	alerts := make([]domainalert.Alert, 0, len(raw))
	for _, payload := range raw {
		alerts = append(alerts, domainalert.Normalize(repo, payload))
	}

	if err := o.cache.Ingest(ctx, repo, alerts, o.now().UTC()); err != nil {
		return Outcome{Repo: repo, Error: err.Error()}, errs.Wrapf(err, "ingest snapshot for %s", repo)
	}

	return Outcome{Repo: repo, OK: true, AlertCount: len(alerts)}, nil
}

// RefreshAll refreshes every tracked repository sequentially. Re-entrant
// invocation while a batch is active is a no-op reported as skipped.
func (o *Orchestrator) RefreshAll(ctx context.Context) (BatchResult, error) {
	if ctx == nil {
		return BatchResult{}, errors.New("context is required")
	}

	if !o.running.CompareAndSwap(false, true) {
		return BatchResult{Skipped: true}, nil
	}
	defer o.running.Store(false)

	tracked, err := o.cache.TrackedRepos(ctx)
	if err != nil {
		return BatchResult{}, errs.Wrap(err, "list tracked repos")
	}

	repos := make([]string, 0, len(tracked))
	for _, item := range tracked {
		repos = append(repos, item.Repo)
	}
	return o.runBatch(ctx, repos), nil
}

// RefreshMany refreshes an explicit repository list (onboarding new repos
// included) under the same exclusivity guard as RefreshAll.
func (o *Orchestrator) RefreshMany(ctx context.Context, repos []string) (BatchResult, error) {
	if ctx == nil {
		return BatchResult{}, errors.New("context is required")
	}

	if !o.running.CompareAndSwap(false, true) {
		return BatchResult{Skipped: true}, nil
	}
	defer o.running.Store(false)

	return o.runBatch(ctx, repos), nil
}

func (o *Orchestrator) runBatch(ctx context.Context, repos []string) BatchResult {
	result := BatchResult{
		BatchID:   uuid.NewString(),
		StartedAt: o.now().UTC().Format(time.RFC3339),
	}

	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "usecase.refresh"),
		slog.String("batch_id", result.BatchID),
	)
	logging.Info(logCtx, "batch refresh started", slog.Int("repos", len(repos)))

	for i, repo := range repos {
		if i > 0 && o.stagger > 0 {
			o.sleep(ctx, o.stagger)
		}

		outcome, err := o.RefreshOne(ctx, repo)
		if err != nil {
			// Failure already captured in the outcome; the batch goes on.
			logging.Error(logCtx, "repo refresh failed", slog.String("repo", repo), slog.Any("err", errs.Loggable(err)))
		}
		result.Outcomes = append(result.Outcomes, outcome)
		if outcome.OK {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	result.Total = len(result.Outcomes)
	result.FinishedAt = o.now().UTC().Format(time.RFC3339)

	logging.Info(logCtx, "batch refresh finished",
		slog.Int("total", result.Total),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
	)
	return result
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
