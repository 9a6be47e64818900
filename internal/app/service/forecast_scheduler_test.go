package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/linkpulse/linkpulse/config"
	"github.com/linkpulse/linkpulse/internal/app/model"
	"github.com/linkpulse/linkpulse/internal/app/repository"
)

type mockClickStatRepository struct {
	seriesFn    func(ctx context.Context, code string) ([]model.HourlyClickStat, error)
	windowFn    func(ctx context.Context, code string, since time.Time) ([]model.HourlyClickStat, error)
	incrementFn func(ctx context.Context, code, date string, hour int) error
}

func (m *mockClickStatRepository) Series(ctx context.Context, code string) ([]model.HourlyClickStat, error) {
	if m.seriesFn != nil {
		return m.seriesFn(ctx, code)
	}
	return nil, nil
}

func (m *mockClickStatRepository) Window(ctx context.Context, code string, since time.Time) ([]model.HourlyClickStat, error) {
	if m.windowFn != nil {
		return m.windowFn(ctx, code, since)
	}
	return nil, nil
}

func (m *mockClickStatRepository) IncrementBucket(ctx context.Context, code, date string, hour int) error {
	if m.incrementFn != nil {
		return m.incrementFn(ctx, code, date, hour)
	}
	return nil
}

type mockUserRepository struct {
	getFn func(ctx context.Context, id uint) (*model.User, error)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id uint) (*model.User, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, repository.ErrUserNotFound
}

type mockForecaster struct {
	forecastFn func(ctx context.Context, series []int64) ([]model.ForecastPoint, error)
}

func (m *mockForecaster) Forecast(ctx context.Context, series []int64) ([]model.ForecastPoint, error) {
	if m.forecastFn != nil {
		return m.forecastFn(ctx, series)
	}
	return nil, nil
}

type mockAlerter struct {
	mu     sync.Mutex
	calls  []string
	failFn func(code string) error
}

func (m *mockAlerter) Alert(ctx context.Context, owner *model.User, link *model.Link, point *model.ForecastPoint, baseline float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFn != nil {
		if err := m.failFn(link.ShortCode); err != nil {
			return err
		}
	}
	m.calls = append(m.calls, link.ShortCode)
	return nil
}

// memoryForecastRepo records created forecasts append-only, like the store.
type memoryForecastRepo struct {
	mu        sync.Mutex
	forecasts []model.Forecast
}

func (m *memoryForecastRepo) Create(ctx context.Context, forecast *model.Forecast) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forecasts = append(m.forecasts, *forecast)
	return nil
}

func (m *memoryForecastRepo) LatestByLinkCode(ctx context.Context, code string) (*model.Forecast, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *model.Forecast
	for i := range m.forecasts {
		f := &m.forecasts[i]
		if f.LinkCode != code {
			continue
		}
		if latest == nil || f.GeneratedAt.After(latest.GeneratedAt) {
			latest = f
		}
	}
	if latest == nil {
		return nil, repository.ErrForecastNotFound
	}
	out := *latest
	return &out, nil
}

func historyOf(clicks ...int64) []model.HourlyClickStat {
	out := make([]model.HourlyClickStat, len(clicks))
	for i, c := range clicks {
		out[i] = model.HourlyClickStat{StatDate: "2026-08-29", Hour: i, Clicks: c}
	}
	return out
}

func activeLinks(n int, ownerID *uint) []model.Link {
	links := make([]model.Link, n)
	for i := range links {
		links[i] = model.Link{
			ShortCode:      fmt.Sprintf("link%02d", i+1),
			DestinationURL: "https://example.com",
			OwnerID:        ownerID,
			Active:         true,
		}
	}
	return links
}

type schedulerFixture struct {
	links     *mockLinkRepository
	stats     *mockClickStatRepository
	forecasts *memoryForecastRepo
	users     *mockUserRepository
	oracle    *mockForecaster
	alerter   *mockAlerter
}

func newSchedulerFixture() *schedulerFixture {
	return &schedulerFixture{
		links:     &mockLinkRepository{},
		stats:     &mockClickStatRepository{},
		forecasts: &memoryForecastRepo{},
		users:     &mockUserRepository{},
		oracle:    &mockForecaster{},
		alerter:   &mockAlerter{},
	}
}

func (f *schedulerFixture) build() *ForecastScheduler {
	return NewForecastScheduler(SchedulerDeps{
		Links:      f.links,
		Stats:      f.stats,
		Forecasts:  f.forecasts,
		Users:      f.users,
		Forecaster: f.oracle,
		Evaluator:  NewSpikeEvaluator(50, 2.0),
		Alerter:    f.alerter,
		Forecast:   config.ForecastConfig{},
	})
}

func TestRunCycle_IsolatesPerLinkFailures(t *testing.T) {
	f := newSchedulerFixture()
	f.links.listActiveFn = func(ctx context.Context) ([]model.Link, error) {
		return activeLinks(10, nil), nil
	}
	f.stats.seriesFn = func(ctx context.Context, code string) ([]model.HourlyClickStat, error) {
		return historyOf(5, 5, 5, 5), nil
	}
	// Only link04's oracle call fails; everyone else gets a quiet forecast.
	calls := 0
	f.oracle.forecastFn = func(ctx context.Context, series []int64) ([]model.ForecastPoint, error) {
		calls++
		if calls == 4 {
			return nil, errors.New("oracle timeout")
		}
		return points(1, 2, 3), nil
	}

	report := f.build().RunCycle(context.Background())

	if report.Err != nil {
		t.Fatalf("per-link failure must not fail the cycle: %v", report.Err)
	}
	if len(report.Outcomes) != 10 {
		t.Fatalf("expected 10 outcomes, got %d", len(report.Outcomes))
	}
	if got := report.Count(OutcomeFailed); got != 1 {
		t.Fatalf("expected 1 failed link, got %d", got)
	}
	if got := report.Count(OutcomeNoSpike); got != 9 {
		t.Fatalf("expected 9 processed links, got %d", got)
	}
	if report.Outcomes[3].Kind != OutcomeFailed || report.Outcomes[3].Err == nil {
		t.Fatalf("expected link04 to fail, got %+v", report.Outcomes[3])
	}
	if len(f.forecasts.forecasts) != 9 {
		t.Fatalf("expected 9 persisted forecasts, got %d", len(f.forecasts.forecasts))
	}
}

func TestRunCycle_PersistsForecastWhenOwnerMissing(t *testing.T) {
	f := newSchedulerFixture()
	f.links.listActiveFn = func(ctx context.Context) ([]model.Link, error) {
		return activeLinks(1, nil), nil
	}
	f.stats.seriesFn = func(ctx context.Context, code string) ([]model.HourlyClickStat, error) {
		return historyOf(5, 5, 5), nil
	}
	f.oracle.forecastFn = func(ctx context.Context, series []int64) ([]model.ForecastPoint, error) {
		return points(200), nil
	}

	report := f.build().RunCycle(context.Background())

	if got := report.Count(OutcomeSkipNoContact); got != 1 {
		t.Fatalf("expected 1 no_contact skip, got %+v", report.Outcomes)
	}
	if len(f.forecasts.forecasts) != 1 {
		t.Fatal("forecast must be persisted even without an owner contact")
	}
	if len(f.alerter.calls) != 0 {
		t.Fatal("no alert must be sent without an owner contact")
	}
}

func TestRunCycle_AlertsOncePerSpikingLink(t *testing.T) {
	owner := uint(7)
	f := newSchedulerFixture()
	f.links.listActiveFn = func(ctx context.Context) ([]model.Link, error) {
		return activeLinks(1, &owner), nil
	}
	f.stats.seriesFn = func(ctx context.Context, code string) ([]model.HourlyClickStat, error) {
		return historyOf(10, 10, 10), nil
	}
	f.stats.windowFn = func(ctx context.Context, code string, since time.Time) ([]model.HourlyClickStat, error) {
		return historyOf(10, 10, 10), nil
	}
	f.users.getFn = func(ctx context.Context, id uint) (*model.User, error) {
		return &model.User{ID: id, Email: "owner@example.com"}, nil
	}
	// Two qualifying points; only the earliest should trigger one alert.
	f.oracle.forecastFn = func(ctx context.Context, series []int64) ([]model.ForecastPoint, error) {
		return points(5, 80, 200), nil
	}

	report := f.build().RunCycle(context.Background())

	if got := report.Count(OutcomeAlerted); got != 1 {
		t.Fatalf("expected 1 alerted link, got %+v", report.Outcomes)
	}
	if len(f.alerter.calls) != 1 {
		t.Fatalf("expected exactly one alert, got %d", len(f.alerter.calls))
	}
}

func TestRunCycle_AlertFailureIsIsolated(t *testing.T) {
	owner := uint(7)
	f := newSchedulerFixture()
	f.links.listActiveFn = func(ctx context.Context) ([]model.Link, error) {
		return activeLinks(2, &owner), nil
	}
	f.stats.seriesFn = func(ctx context.Context, code string) ([]model.HourlyClickStat, error) {
		return historyOf(10, 10, 10), nil
	}
	f.users.getFn = func(ctx context.Context, id uint) (*model.User, error) {
		return &model.User{ID: id, Email: "owner@example.com"}, nil
	}
	f.oracle.forecastFn = func(ctx context.Context, series []int64) ([]model.ForecastPoint, error) {
		return points(500), nil
	}
	f.alerter.failFn = func(code string) error {
		if code == "link01" {
			return errors.New("smtp rejected")
		}
		return nil
	}

	report := f.build().RunCycle(context.Background())

	if got := report.Count(OutcomeFailed); got != 1 {
		t.Fatalf("expected 1 failed link, got %+v", report.Outcomes)
	}
	if got := report.Count(OutcomeAlerted); got != 1 {
		t.Fatalf("a failed alert must not block the next link, got %+v", report.Outcomes)
	}
	if len(f.forecasts.forecasts) != 2 {
		t.Fatalf("both forecasts must persist, got %d", len(f.forecasts.forecasts))
	}
}

func TestRunCycle_SkipsInsufficientHistory(t *testing.T) {
	f := newSchedulerFixture()
	f.links.listActiveFn = func(ctx context.Context) ([]model.Link, error) {
		return activeLinks(1, nil), nil
	}
	f.stats.seriesFn = func(ctx context.Context, code string) ([]model.HourlyClickStat, error) {
		return historyOf(5), nil
	}
	called := false
	f.oracle.forecastFn = func(ctx context.Context, series []int64) ([]model.ForecastPoint, error) {
		called = true
		return points(100), nil
	}

	report := f.build().RunCycle(context.Background())

	if got := report.Count(OutcomeSkipNoHistory); got != 1 {
		t.Fatalf("expected 1 no_history skip, got %+v", report.Outcomes)
	}
	if called {
		t.Fatal("oracle must not be consulted for a single-bucket history")
	}
	if len(f.forecasts.forecasts) != 0 {
		t.Fatal("nothing must be persisted for a skipped link")
	}
}

func TestRunCycle_EnumerationFailureIsCycleFatal(t *testing.T) {
	f := newSchedulerFixture()
	f.links.listActiveFn = func(ctx context.Context) ([]model.Link, error) {
		return nil, errors.New("store unreachable")
	}

	s := f.build()
	report := s.RunCycle(context.Background())

	if report.Err == nil {
		t.Fatal("expected a cycle-fatal error")
	}
	if len(report.Outcomes) != 0 {
		t.Fatalf("expected no outcomes, got %d", len(report.Outcomes))
	}
	if s.Running() {
		t.Fatal("scheduler must not report running after the cycle")
	}
	if s.LastRun().IsZero() {
		t.Fatal("last run must be recorded even for a failed cycle")
	}
}

func TestRunCycle_LatestForecastSupersedes(t *testing.T) {
	f := newSchedulerFixture()
	f.links.listActiveFn = func(ctx context.Context) ([]model.Link, error) {
		return activeLinks(1, nil), nil
	}
	f.stats.seriesFn = func(ctx context.Context, code string) ([]model.HourlyClickStat, error) {
		return historyOf(5, 5, 5), nil
	}

	runs := 0
	f.oracle.forecastFn = func(ctx context.Context, series []int64) ([]model.ForecastPoint, error) {
		runs++
		return points(int64(runs)), nil
	}

	s := f.build()
	s.RunCycle(context.Background())
	time.Sleep(5 * time.Millisecond) // distinct GeneratedAt stamps
	s.RunCycle(context.Background())

	if len(f.forecasts.forecasts) != 2 {
		t.Fatalf("a new forecast must not replace the old row, got %d rows", len(f.forecasts.forecasts))
	}
	if f.forecasts.forecasts[0].Points[0].PredictedClicks != 1 {
		t.Fatal("first forecast must remain unmodified")
	}

	latest, err := f.forecasts.LatestByLinkCode(context.Background(), "link01")
	if err != nil {
		t.Fatalf("LatestByLinkCode error: %v", err)
	}
	if latest.Points[0].PredictedClicks != 2 {
		t.Fatalf("latest forecast must be the second run's, got %d", latest.Points[0].PredictedClicks)
	}
}
