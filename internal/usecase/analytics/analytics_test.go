package analytics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	domainalert "depwatch/internal/domain/alert"
	"depwatch/internal/infrastructure/persistence/sqlite/model"
	sqliterepo "depwatch/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "depwatch/internal/infrastructure/persistence/sqlite/uow"
	"depwatch/internal/usecase/lifecycle"
)

func setupAnalytics(t *testing.T) (*Service, *lifecycle.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	if err := db.AutoMigrate(
		&model.Alert{},
		&model.RepoSync{},
		&model.AlertHistory{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	repo := sqliterepo.NewAlertRepository(db)
	uow := sqliteuow.NewUnitOfWork(db)
	return NewService(repo), lifecycle.NewService(repo, uow), db
}

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return parsed
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func simpleAlert(repo string, number int, state domainalert.State, sev domainalert.Severity) domainalert.Alert {
	return domainalert.Alert{
		Repo:     repo,
		Number:   number,
		State:    state,
		Severity: sev,
		RawJSON:  []byte(fmt.Sprintf(`{"number":%d,"state":%q}`, number, state)),
	}
}

func ingest(t *testing.T, svc *lifecycle.Service, repo string, at string, alerts ...domainalert.Alert) {
	t.Helper()
	if err := svc.Ingest(context.Background(), repo, alerts, mustTime(t, at)); err != nil {
		t.Fatalf("Ingest(%s @ %s) error = %v", repo, at, err)
	}
}

func TestMTTRSingleSampleEndToEnd(t *testing.T) {
	analytics, cache, db := setupAnalytics(t)
	ctx := context.Background()

	// One critical alert opened Jan 1, re-ingested as fixed Jan 10.
	ingest(t, cache, "acme/widget", "2024-01-01T00:00:00Z",
		simpleAlert("acme/widget", 1, domainalert.StateOpen, domainalert.SeverityCritical))
	ingest(t, cache, "acme/widget", "2024-01-10T00:00:00Z",
		simpleAlert("acme/widget", 1, domainalert.StateFixed, domainalert.SeverityCritical))

	var historyCount int64
	if err := db.Model(&model.AlertHistory{}).Count(&historyCount).Error; err != nil {
		t.Fatalf("count history: %v", err)
	}
	if historyCount != 2 {
		t.Fatalf("history rows = %d, want 2", historyCount)
	}

	state, err := cache.State(ctx, "acme/widget")
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if state.Alerts[0].State != "fixed" {
		t.Fatalf("current state = %q, want fixed", state.Alerts[0].State)
	}

	entries, err := analytics.MTTR(ctx, "")
	if err != nil {
		t.Fatalf("MTTR() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("MTTR entries = %d, want 1", len(entries))
	}
	got := entries[0]
	if got.Repo != "acme/widget" || got.Severity != "critical" {
		t.Fatalf("MTTR group = (%s, %s)", got.Repo, got.Severity)
	}
	if got.AvgDays != 9.0 {
		t.Fatalf("AvgDays = %v, want 9.0", got.AvgDays)
	}
	if got.ResolvedCount != 1 {
		t.Fatalf("ResolvedCount = %d, want 1", got.ResolvedCount)
	}
}

func TestMTTRUsesFirstOpenAndFirstResolution(t *testing.T) {
	analytics, cache, _ := setupAnalytics(t)

	// open -> fixed -> reopened -> fixed again: only the first pair counts.
	ingest(t, cache, "acme/widget", "2024-01-01T00:00:00Z",
		simpleAlert("acme/widget", 1, domainalert.StateOpen, domainalert.SeverityHigh))
	ingest(t, cache, "acme/widget", "2024-01-03T00:00:00Z",
		simpleAlert("acme/widget", 1, domainalert.StateFixed, domainalert.SeverityHigh))
	ingest(t, cache, "acme/widget", "2024-01-20T00:00:00Z",
		simpleAlert("acme/widget", 1, domainalert.StateOpen, domainalert.SeverityHigh))
	ingest(t, cache, "acme/widget", "2024-01-30T00:00:00Z",
		simpleAlert("acme/widget", 1, domainalert.StateFixed, domainalert.SeverityHigh))

	// A never-resolved alert must not contribute a zero sample.
	ingest(t, cache, "acme/widget", "2024-02-01T00:00:00Z",
		simpleAlert("acme/widget", 1, domainalert.StateFixed, domainalert.SeverityHigh),
		simpleAlert("acme/widget", 2, domainalert.StateOpen, domainalert.SeverityHigh))

	entries, err := analytics.MTTR(context.Background(), "acme/widget")
	if err != nil {
		t.Fatalf("MTTR() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %+v, want one group", entries)
	}
	if entries[0].AvgDays != 2.0 || entries[0].ResolvedCount != 1 {
		t.Fatalf("entry = %+v, want avg 2.0 from the first open/fixed pair", entries[0])
	}
}

func TestMTTRGroupsByRepoAndSeverity(t *testing.T) {
	analytics, cache, _ := setupAnalytics(t)

	ingest(t, cache, "acme/widget", "2024-01-01T00:00:00Z",
		simpleAlert("acme/widget", 1, domainalert.StateOpen, domainalert.SeverityCritical),
		simpleAlert("acme/widget", 2, domainalert.StateOpen, domainalert.SeverityLow))
	ingest(t, cache, "acme/widget", "2024-01-05T00:00:00Z",
		simpleAlert("acme/widget", 1, domainalert.StateFixed, domainalert.SeverityCritical),
		simpleAlert("acme/widget", 2, domainalert.StateDismissed, domainalert.SeverityLow))
	ingest(t, cache, "acme/gadget", "2024-02-01T00:00:00Z",
		simpleAlert("acme/gadget", 1, domainalert.StateOpen, domainalert.SeverityCritical))
	ingest(t, cache, "acme/gadget", "2024-02-02T00:00:00Z",
		simpleAlert("acme/gadget", 1, domainalert.StateFixed, domainalert.SeverityCritical))

	entries, err := analytics.MTTR(context.Background(), "")
	if err != nil {
		t.Fatalf("MTTR() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %+v, want 3 groups", entries)
	}
	// Sorted repo asc, severity rank asc.
	if entries[0].Repo != "acme/gadget" || entries[0].AvgDays != 1.0 {
		t.Fatalf("entry[0] = %+v", entries[0])
	}
	if entries[1].Repo != "acme/widget" || entries[1].Severity != "critical" || entries[1].AvgDays != 4.0 {
		t.Fatalf("entry[1] = %+v", entries[1])
	}
	if entries[2].Severity != "low" || entries[2].AvgDays != 4.0 {
		t.Fatalf("entry[2] = %+v", entries[2])
	}
}

func TestTrendReconstructsDailySnapshots(t *testing.T) {
	analytics, cache, _ := setupAnalytics(t)

	// Day 1: alert 1 opens medium, alert 2 opens critical.
	ingest(t, cache, "acme/widget", "2024-01-01T08:00:00Z",
		simpleAlert("acme/widget", 1, domainalert.StateOpen, domainalert.SeverityMedium),
		simpleAlert("acme/widget", 2, domainalert.StateOpen, domainalert.SeverityCritical))
	// Day 3: alert 1 escalates to high (still open), alert 3 opens low.
	ingest(t, cache, "acme/widget", "2024-01-03T08:00:00Z",
		simpleAlert("acme/widget", 1, domainalert.StateOpen, domainalert.SeverityHigh),
		simpleAlert("acme/widget", 2, domainalert.StateOpen, domainalert.SeverityCritical),
		simpleAlert("acme/widget", 3, domainalert.StateOpen, domainalert.SeverityLow))

	points, err := analytics.Trend(context.Background(), "acme/widget")
	if err != nil {
		t.Fatalf("Trend() error = %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("points = %+v, want 2 days", points)
	}

	day1 := points[0]
	if day1.Date != "2024-01-01" || day1.Medium != 1 || day1.Critical != 1 || day1.High != 0 || day1.Low != 0 {
		t.Fatalf("day1 = %+v", day1)
	}

	// On day 3 alert 1's most recent open event says high, not medium.
	day3 := points[1]
	if day3.Date != "2024-01-03" || day3.High != 1 || day3.Medium != 0 || day3.Critical != 1 || day3.Low != 1 {
		t.Fatalf("day3 = %+v", day3)
	}
}

func TestTrendIgnoresNonOpenEvents(t *testing.T) {
	analytics, cache, _ := setupAnalytics(t)

	ingest(t, cache, "acme/widget", "2024-01-01T00:00:00Z",
		simpleAlert("acme/widget", 1, domainalert.StateOpen, domainalert.SeverityHigh))
	// The fix on day 2 is a transition event but not an open-state day.
	ingest(t, cache, "acme/widget", "2024-01-02T00:00:00Z",
		simpleAlert("acme/widget", 1, domainalert.StateFixed, domainalert.SeverityHigh))

	points, err := analytics.Trend(context.Background(), "")
	if err != nil {
		t.Fatalf("Trend() error = %v", err)
	}
	if len(points) != 1 || points[0].Date != "2024-01-01" || points[0].High != 1 {
		t.Fatalf("points = %+v, want only the open day", points)
	}
}

func TestSLAStrictBoundaryAndOrdering(t *testing.T) {
	analytics, cache, _ := setupAnalytics(t)

	now := mustTime(t, "2024-06-30T00:00:00Z")
	analytics.now = func() time.Time { return now }

	// Critical opened exactly at its 2-day limit: not overdue.
	ingest(t, cache, "acme/widget", "2024-06-28T00:00:00Z",
		simpleAlert("acme/widget", 1, domainalert.StateOpen, domainalert.SeverityCritical))
	// High opened 10 days ago against a 7-day limit: overdue by 3.
	ingest(t, cache, "acme/gadget", "2024-06-20T00:00:00Z",
		simpleAlert("acme/gadget", 1, domainalert.StateOpen, domainalert.SeverityHigh))
	// Critical opened 2 days plus a bit ago: overdue by a hair.
	ingest(t, cache, "acme/gizmo", "2024-06-27T21:36:00Z",
		simpleAlert("acme/gizmo", 1, domainalert.StateOpen, domainalert.SeverityCritical))

	entries, err := analytics.SLA(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("SLA() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}

	// Worst first: high over by 3 days, then critical over by 0.1, then the
	// boundary case which is not overdue.
	if entries[0].Repo != "acme/gadget" || !entries[0].Overdue {
		t.Fatalf("entry[0] = %+v", entries[0])
	}
	if entries[1].Repo != "acme/gizmo" || !entries[1].Overdue {
		t.Fatalf("entry[1] = %+v", entries[1])
	}
	if entries[2].Repo != "acme/widget" || entries[2].Overdue {
		t.Fatalf("entry[2] = %+v (exactly at the limit must not be overdue)", entries[2])
	}
}

func TestSLAClockStartsAtFirstHistoryEvent(t *testing.T) {
	analytics, cache, _ := setupAnalytics(t)

	now := mustTime(t, "2024-06-30T00:00:00Z")
	analytics.now = func() time.Time { return now }

	// Severity changed later; the clock still runs from first sight.
	ingest(t, cache, "acme/widget", "2024-06-01T00:00:00Z",
		simpleAlert("acme/widget", 1, domainalert.StateOpen, domainalert.SeverityLow))
	ingest(t, cache, "acme/widget", "2024-06-25T00:00:00Z",
		simpleAlert("acme/widget", 1, domainalert.StateOpen, domainalert.SeverityCritical))

	entries, err := analytics.SLA(context.Background(), "acme/widget", nil)
	if err != nil {
		t.Fatalf("SLA() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].OpenDays != 29 {
		t.Fatalf("OpenDays = %v, want 29 (from first event)", entries[0].OpenDays)
	}
	if entries[0].Severity != "critical" || !entries[0].Overdue {
		t.Fatalf("entry = %+v", entries[0])
	}
}

func TestGroupingsCoverOpenAlertsOnly(t *testing.T) {
	analytics, cache, _ := setupAnalytics(t)
	ctx := context.Background()

	lodashWidget := simpleAlert("acme/widget", 1, domainalert.StateOpen, domainalert.SeverityCritical)
	lodashWidget.PackageName = strPtr("lodash")
	lodashWidget.Ecosystem = strPtr("npm")
	lodashWidget.AdvisoryID = strPtr("GHSA-aaaa")
	lodashWidget.CVSSScore = floatPtr(9.8)
	lodashWidget.PatchedVersion = strPtr("4.17.21")

	lodashGadget := simpleAlert("acme/gadget", 1, domainalert.StateOpen, domainalert.SeverityHigh)
	lodashGadget.PackageName = strPtr("lodash")
	lodashGadget.Ecosystem = strPtr("npm")
	lodashGadget.AdvisoryID = strPtr("GHSA-aaaa")

	requestsGadget := simpleAlert("acme/gadget", 2, domainalert.StateOpen, domainalert.SeverityMedium)
	requestsGadget.PackageName = strPtr("requests")
	requestsGadget.Ecosystem = strPtr("pip")
	requestsGadget.CVEID = strPtr("CVE-2024-9999")

	fixedAlert := simpleAlert("acme/widget", 2, domainalert.StateFixed, domainalert.SeverityCritical)
	fixedAlert.PackageName = strPtr("lodash")
	fixedAlert.Ecosystem = strPtr("npm")
	fixedAlert.AdvisoryID = strPtr("GHSA-aaaa")

	noKey := simpleAlert("acme/widget", 3, domainalert.StateOpen, domainalert.SeverityLow)

	ingest(t, cache, "acme/widget", "2024-01-01T00:00:00Z", lodashWidget, fixedAlert, noKey)
	ingest(t, cache, "acme/gadget", "2024-01-01T00:00:00Z", lodashGadget, requestsGadget)

	vulns, err := analytics.VulnerabilityGroups(ctx)
	if err != nil {
		t.Fatalf("VulnerabilityGroups() error = %v", err)
	}
	if len(vulns) != 2 {
		t.Fatalf("vulnerability groups = %+v, want 2", vulns)
	}
	ghsa := vulns[0]
	if ghsa.AdvisoryID != "GHSA-aaaa" || ghsa.TotalAlerts != 2 || ghsa.AffectedRepos != 2 {
		t.Fatalf("ghsa group = %+v", ghsa)
	}
	if ghsa.Severity != "critical" {
		t.Fatalf("representative severity = %q, want critical", ghsa.Severity)
	}
	if ghsa.CVSSScore == nil || *ghsa.CVSSScore != 9.8 || ghsa.PatchedVersion != "4.17.21" {
		t.Fatalf("ghsa representative fields = %+v", ghsa)
	}
	if vulns[1].AdvisoryID != "CVE-2024-9999" {
		t.Fatalf("cve fallback group = %+v", vulns[1])
	}

	deps, err := analytics.DependencyGroups(ctx)
	if err != nil {
		t.Fatalf("DependencyGroups() error = %v", err)
	}
	if len(deps) != 2 {
		t.Fatalf("dependency groups = %+v, want 2 (nil package omitted)", deps)
	}
	lodash := deps[0]
	if lodash.PackageName != "lodash" || lodash.TotalAlerts != 2 || lodash.AffectedRepos != 2 {
		t.Fatalf("lodash group = %+v", lodash)
	}
	if lodash.CriticalCount != 1 || lodash.HighCount != 1 {
		t.Fatalf("lodash counts = %+v", lodash)
	}

	ecosystems, err := analytics.EcosystemGroups(ctx)
	if err != nil {
		t.Fatalf("EcosystemGroups() error = %v", err)
	}
	if len(ecosystems) != 3 {
		t.Fatalf("ecosystem groups = %+v, want npm, pip, unknown", ecosystems)
	}
	if ecosystems[0].Ecosystem != "npm" || ecosystems[0].TotalAlerts != 2 || ecosystems[0].PackageCount != 1 {
		t.Fatalf("npm group = %+v", ecosystems[0])
	}
}

func TestLoadSLAPolicyOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sla_policy.toml")
	policy := []byte("critical_days = 1.0\nhigh_days = 3.0\n")
	if err := os.WriteFile(path, policy, 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	limits, err := LoadSLAPolicy(path)
	if err != nil {
		t.Fatalf("LoadSLAPolicy() error = %v", err)
	}
	if limits.LimitFor(domainalert.SeverityCritical) != 1 {
		t.Fatalf("critical = %v, want 1", limits.LimitFor(domainalert.SeverityCritical))
	}
	if limits.LimitFor(domainalert.SeverityHigh) != 3 {
		t.Fatalf("high = %v, want 3", limits.LimitFor(domainalert.SeverityHigh))
	}
	if limits.LimitFor(domainalert.SeverityMedium) != 30 {
		t.Fatalf("medium = %v, want default 30", limits.LimitFor(domainalert.SeverityMedium))
	}
}
