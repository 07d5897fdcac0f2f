// Package analytics derives read-only views from the alert cache: daily
// trend series, mean time to remediate, SLA compliance and cross-repository
// risk groupings. Everything here is reconstructed from the change history
// plus current state; nothing mutates.
package analytics

import (
	"strings"
	"time"

	"depwatch/internal/ports"
)

type Service struct {
	repo ports.AlertReadRepository
	now  func() time.Time
}

func NewService(repo ports.AlertReadRepository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

type alertKey struct {
	repo   string
	number int
}

func parseRecordedAt(value string) (time.Time, bool) {
	parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, false
	}
	return parsed.UTC(), true
}

func dayOf(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

func derefOr(value *string, fallback string) string {
	if value == nil {
		return fallback
	}
	return *value
}
