package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"depwatch/internal/infrastructure/persistence/sqlite/model"
	sqliterepo "depwatch/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "depwatch/internal/infrastructure/persistence/sqlite/uow"
	"depwatch/internal/usecase/lifecycle"
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	payload map[string][]json.RawMessage
	fail    map[string]error
	block   chan struct{}
	started chan struct{}
}

func (f *fakeFetcher) FetchRawAlerts(_ context.Context, repo string) ([]json.RawMessage, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if err, ok := f.fail[repo]; ok {
		return nil, err
	}
	return f.payload[repo], nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func openAlertPayload(number int, severity string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"number":%d,"state":"open","security_advisory":{"severity":%q}}`, number, severity))
}

func setupCache(t *testing.T) (*lifecycle.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.Alert{}, &model.RepoSync{}, &model.AlertHistory{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	repo := sqliterepo.NewAlertRepository(db)
	return lifecycle.NewService(repo, sqliteuow.NewUnitOfWork(db)), db
}

func TestRefreshOneIngestsNormalizedAlerts(t *testing.T) {
	cache, _ := setupCache(t)
	fetcher := &fakeFetcher{payload: map[string][]json.RawMessage{
		"acme/widget": {openAlertPayload(1, "critical"), openAlertPayload(2, "low")},
	}}
	orch := NewOrchestrator(cache, fetcher, 0)

	outcome, err := orch.RefreshOne(context.Background(), "acme/widget")
	if err != nil {
		t.Fatalf("RefreshOne() error = %v", err)
	}
	if !outcome.OK || outcome.AlertCount != 2 {
		t.Fatalf("outcome = %+v", outcome)
	}

	state, err := cache.State(context.Background(), "acme/widget")
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if !state.HasCache || len(state.Alerts) != 2 {
		t.Fatalf("state = %+v", state)
	}
	if state.Alerts[0].Severity != "critical" {
		t.Fatalf("first alert severity = %q", state.Alerts[0].Severity)
	}
}

func TestRefreshOneFetchFailureKeepsCachedState(t *testing.T) {
	cache, _ := setupCache(t)
	fetcher := &fakeFetcher{payload: map[string][]json.RawMessage{
		"acme/widget": {openAlertPayload(1, "high")},
	}}
	orch := NewOrchestrator(cache, fetcher, 0)

	if _, err := orch.RefreshOne(context.Background(), "acme/widget"); err != nil {
		t.Fatalf("seed refresh error = %v", err)
	}
	before, err := cache.State(context.Background(), "acme/widget")
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}

	fetcher.fail = map[string]error{"acme/widget": errors.New("rate limited")}
	outcome, err := orch.RefreshOne(context.Background(), "acme/widget")
	if err != nil {
		t.Fatalf("fetch failure must not escape as an error, got %v", err)
	}
	if outcome.OK || !strings.Contains(outcome.Error, "rate limited") {
		t.Fatalf("outcome = %+v", outcome)
	}

	after, err := cache.State(context.Background(), "acme/widget")
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if after.LastSync != before.LastSync || len(after.Alerts) != len(before.Alerts) {
		t.Fatalf("cached state changed after failed fetch: before=%+v after=%+v", before, after)
	}
}

func TestRefreshAllIsolatesPerRepoFailures(t *testing.T) {
	cache, _ := setupCache(t)

	fetcher := &fakeFetcher{
		payload: map[string][]json.RawMessage{
			"acme/widget": {openAlertPayload(1, "high")},
			"acme/gadget": {openAlertPayload(1, "low")},
		},
	}
	orch := NewOrchestrator(cache, fetcher, 0)

	// Track both repos first.
	for _, repo := range []string{"acme/widget", "acme/gadget"} {
		if _, err := orch.RefreshOne(context.Background(), repo); err != nil {
			t.Fatalf("seed %s: %v", repo, err)
		}
	}

	fetcher.fail = map[string]error{"acme/widget": errors.New("boom")}
	result, err := orch.RefreshAll(context.Background())
	if err != nil {
		t.Fatalf("RefreshAll() error = %v", err)
	}
	if result.Skipped {
		t.Fatalf("batch skipped unexpectedly")
	}
	if result.Total != 2 || result.Succeeded != 1 || result.Failed != 1 {
		t.Fatalf("result = %+v", result)
	}
	if result.BatchID == "" || result.StartedAt == "" || result.FinishedAt == "" {
		t.Fatalf("batch metadata missing: %+v", result)
	}

	byRepo := map[string]Outcome{}
	for _, outcome := range result.Outcomes {
		byRepo[outcome.Repo] = outcome
	}
	if byRepo["acme/widget"].OK {
		t.Fatalf("widget should have failed: %+v", byRepo["acme/widget"])
	}
	if !byRepo["acme/gadget"].OK {
		t.Fatalf("gadget should have succeeded: %+v", byRepo["acme/gadget"])
	}
}

func TestRefreshAllRejectsConcurrentRun(t *testing.T) {
	cache, _ := setupCache(t)
	fetcher := &fakeFetcher{
		payload: map[string][]json.RawMessage{"acme/widget": {openAlertPayload(1, "high")}},
	}
	orch := NewOrchestrator(cache, fetcher, 0)
	if _, err := orch.RefreshOne(context.Background(), "acme/widget"); err != nil {
		t.Fatalf("seed refresh error = %v", err)
	}

	fetcher.block = make(chan struct{})
	fetcher.started = make(chan struct{}, 1)

	done := make(chan BatchResult, 1)
	go func() {
		result, _ := orch.RefreshAll(context.Background())
		done <- result
	}()

	// Wait until the batch is mid-fetch, then try again.
	<-fetcher.started
	callsBefore := fetcher.callCount()

	second, err := orch.RefreshAll(context.Background())
	if err != nil {
		t.Fatalf("concurrent RefreshAll() error = %v", err)
	}
	if !second.Skipped {
		t.Fatalf("concurrent batch must be skipped, got %+v", second)
	}
	if fetcher.callCount() != callsBefore {
		t.Fatalf("skipped batch performed fetches")
	}
	if !orch.Running() {
		t.Fatalf("Running() = false while a batch is active")
	}

	close(fetcher.block)
	first := <-done
	if first.Skipped || first.Total != 1 {
		t.Fatalf("first batch = %+v", first)
	}
	if orch.Running() {
		t.Fatalf("Running() = true after batch finished")
	}
}

func TestRefreshManyOnboardsNewRepos(t *testing.T) {
	cache, _ := setupCache(t)
	fetcher := &fakeFetcher{
		payload: map[string][]json.RawMessage{
			"acme/widget": {openAlertPayload(1, "medium")},
			"acme/gadget": {},
		},
	}
	orch := NewOrchestrator(cache, fetcher, 0)

	result, err := orch.RefreshMany(context.Background(), []string{"acme/widget", "acme/gadget"})
	if err != nil {
		t.Fatalf("RefreshMany() error = %v", err)
	}
	if result.Succeeded != 2 {
		t.Fatalf("result = %+v", result)
	}

	repos, err := cache.TrackedRepos(context.Background())
	if err != nil {
		t.Fatalf("TrackedRepos() error = %v", err)
	}
	if len(repos) != 2 {
		t.Fatalf("tracked repos = %+v, want both onboarded", repos)
	}
}

func TestStaggerWaitsBetweenRepos(t *testing.T) {
	cache, _ := setupCache(t)
	fetcher := &fakeFetcher{payload: map[string][]json.RawMessage{}}
	orch := NewOrchestrator(cache, fetcher, 25*time.Millisecond)

	var slept []time.Duration
	orch.sleep = func(_ context.Context, d time.Duration) { slept = append(slept, d) }

	if _, err := orch.RefreshMany(context.Background(), []string{"a/b", "c/d", "e/f"}); err != nil {
		t.Fatalf("RefreshMany() error = %v", err)
	}
	if len(slept) != 2 {
		t.Fatalf("sleep calls = %d, want 2 (between repos only)", len(slept))
	}
	for _, d := range slept {
		if d != 25*time.Millisecond {
			t.Fatalf("stagger = %v", d)
		}
	}
}
