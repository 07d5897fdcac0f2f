// Package lifecycle owns the alert cache: ingestion of provider snapshots
// into current state plus the append-only change history, and the read
// primitives the analytics and presentation layers build on.
package lifecycle

import (
	"time"

	domainalert "depwatch/internal/domain/alert"
	"depwatch/internal/ports"
)

type Service struct {
	repo ports.AlertRepository
	uow  ports.UnitOfWork
}

func NewService(repo ports.AlertRepository, uow ports.UnitOfWork) *Service {
	return &Service{
		repo: repo,
		uow:  uow,
	}
}

// CurrentState is the cached view of one repository. HasCache is the
// cache-hit signal: true iff the repository has been ingested at least once.
type CurrentState struct {
	Repo     string
	Alerts   []ports.AlertRecord
	LastSync string
	HasCache bool
}

// RepoSyncItem is one tracked repository with its last sync timestamp.
type RepoSyncItem struct {
	Repo     string
	LastSync string
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := formatTime(*t)
	return &formatted
}

func toRecord(a domainalert.Alert) ports.AlertRecord {
	return ports.AlertRecord{
		Repo:            a.Repo,
		AlertNumber:     a.Number,
		State:           string(a.State),
		Severity:        string(a.Severity),
		PackageName:     a.PackageName,
		ManifestPath:    a.ManifestPath,
		Ecosystem:       a.Ecosystem,
		CreatedAt:       formatTimePtr(a.CreatedAt),
		UpdatedAt:       formatTimePtr(a.UpdatedAt),
		DismissedAt:     formatTimePtr(a.DismissedAt),
		FixedAt:         formatTimePtr(a.FixedAt),
		HTMLURL:         a.HTMLURL,
		AdvisoryID:      a.AdvisoryID,
		CVEID:           a.CVEID,
		AdvisorySummary: a.AdvisorySummary,
		CVSSScore:       a.CVSSScore,
		PatchedVersion:  a.PatchedVersion,
		RawJSON:         string(a.RawJSON),
	}
}
