package ports

import (
	"context"
)

// AlertRecord mirrors one row of the alerts table. Timestamps travel as
// RFC3339 UTC strings at this boundary; parsing happens where the values are
// used.
type AlertRecord struct {
	Repo        string
	AlertNumber int

	State    string
	Severity string

	PackageName  *string
	ManifestPath *string
	Ecosystem    *string

	CreatedAt   *string
	UpdatedAt   *string
	DismissedAt *string
	FixedAt     *string

	HTMLURL         *string
	AdvisoryID      *string
	CVEID           *string
	AdvisorySummary *string
	CVSSScore       *float64
	PatchedVersion  *string

	RawJSON string
}

// RepoSync marks that a repository has been ingested at least once. Its
// presence is the cache-hit signal.
type RepoSync struct {
	Repo     string
	LastSync string
}

// HistoryRecord is one immutable row of the append-only change log,
// ordered by ID.
type HistoryRecord struct {
	ID          uint64
	Repo        string
	AlertNumber int
	State       string
	Severity    string
	RecordedAt  string
	RawJSON     string
}

// HistoryAppend carries the fields of a history row to be inserted.
type HistoryAppend struct {
	Repo        string
	AlertNumber int
	State       string
	Severity    string
	RecordedAt  string
	RawJSON     string
}

type AlertReadRepository interface {
	// ListAlerts returns current alert rows; repo == "" means all
	// repositories. Ordering is unspecified here; callers sort.
	ListAlerts(ctx context.Context, repo string) ([]AlertRecord, error)
	// ListOpenAlerts is ListAlerts restricted to state = open.
	ListOpenAlerts(ctx context.Context, repo string) ([]AlertRecord, error)
	GetRepoSync(ctx context.Context, repo string) (RepoSync, bool, error)
	ListRepoSyncs(ctx context.Context) ([]RepoSync, error)
	// ListHistory returns history rows ordered by ID ascending;
	// repo == "" means all repositories.
	ListHistory(ctx context.Context, repo string) ([]HistoryRecord, error)
}

type AlertRepository interface {
	AlertReadRepository
	UpsertAlert(ctx context.Context, record AlertRecord) error
	AppendHistory(ctx context.Context, input HistoryAppend) error
	UpsertRepoSync(ctx context.Context, repo string, lastSync string) error
	// DeleteRepoData removes alerts, history and the sync record for one
	// repository. Irreversible.
	DeleteRepoData(ctx context.Context, repo string) error
	// DeleteAllData clears all three tables. Irreversible.
	DeleteAllData(ctx context.Context) error
}
