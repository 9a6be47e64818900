package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linkpulse/linkpulse/config"
	"github.com/linkpulse/linkpulse/internal/app/model"
	"github.com/linkpulse/linkpulse/internal/app/repository"
	infraprometheus "github.com/linkpulse/linkpulse/internal/infra/prometheus"
	"go.uber.org/zap"
)

// Forecaster produces a validated forecast from an hourly click series.
// A nil slice with a nil error means no forecast is available this cycle.
type Forecaster interface {
	Forecast(ctx context.Context, series []int64) ([]model.ForecastPoint, error)
}

// Alerter delivers one spike notification to a link owner.
type Alerter interface {
	Alert(ctx context.Context, owner *model.User, link *model.Link, point *model.ForecastPoint, baseline float64) error
}

// OutcomeKind classifies how a link fared in one cycle.
type OutcomeKind string

const (
	// OutcomeSkipNoHistory: fewer than two hourly buckets exist.
	OutcomeSkipNoHistory OutcomeKind = "skip_no_history"
	// OutcomeSkipNoForecast: the oracle produced nothing usable.
	OutcomeSkipNoForecast OutcomeKind = "skip_no_forecast"
	// OutcomeSkipNoContact: spike found but the owner is missing or has no
	// address. The forecast is persisted regardless.
	OutcomeSkipNoContact OutcomeKind = "skip_no_contact"
	// OutcomeNoSpike: forecast persisted, no point qualified.
	OutcomeNoSpike OutcomeKind = "no_spike"
	// OutcomeAlerted: forecast persisted and one alert sent.
	OutcomeAlerted OutcomeKind = "alerted"
	// OutcomeFailed: an isolated error; the cycle moved on.
	OutcomeFailed OutcomeKind = "failed"
)

// LinkOutcome is the per-link result collected into the cycle report.
type LinkOutcome struct {
	Code string
	Kind OutcomeKind
	Err  error
}

// CycleReport summarizes one pipeline cycle. Err is set only when the
// cycle itself failed (active-link enumeration), never for per-link
// problems.
type CycleReport struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []LinkOutcome
	Err        error
}

// Count returns how many links ended the cycle with the given outcome.
func (r *CycleReport) Count(kind OutcomeKind) int {
	n := 0
	for i := range r.Outcomes {
		if r.Outcomes[i].Kind == kind {
			n++
		}
	}
	return n
}

// ForecastScheduler drives the forecast-and-alert batch on a fixed
// interval. Run state lives on the struct, owned by the trigger goroutine
// and guarded for readers.
type ForecastScheduler struct {
	logger     *zap.Logger
	links      repository.LinkRepository
	stats      repository.ClickStatRepository
	forecasts  repository.ForecastRepository
	users      repository.UserRepository
	forecaster Forecaster
	evaluator  *SpikeEvaluator
	alerter    Alerter

	interval time.Duration
	lookback time.Duration
	horizon  int

	stopOnce sync.Once
	stopChan chan struct{}

	mu      sync.Mutex
	running bool
	lastRun time.Time
}

// SchedulerDeps bundles the collaborators of the forecast scheduler.
type SchedulerDeps struct {
	Logger     *zap.Logger
	Links      repository.LinkRepository
	Stats      repository.ClickStatRepository
	Forecasts  repository.ForecastRepository
	Users      repository.UserRepository
	Forecaster Forecaster
	Evaluator  *SpikeEvaluator
	Alerter    Alerter
	Forecast   config.ForecastConfig
}

// NewForecastScheduler builds the scheduler from its dependencies.
func NewForecastScheduler(deps SchedulerDeps) *ForecastScheduler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ForecastScheduler{
		logger:     logger,
		links:      deps.Links,
		stats:      deps.Stats,
		forecasts:  deps.Forecasts,
		users:      deps.Users,
		forecaster: deps.Forecaster,
		evaluator:  deps.Evaluator,
		alerter:    deps.Alerter,
		interval:   deps.Forecast.IntervalDuration(),
		lookback:   deps.Forecast.Lookback(),
		horizon:    deps.Forecast.Horizon(),
		stopChan:   make(chan struct{}),
	}
}

// Start launches the periodic trigger in a background goroutine.
func (s *ForecastScheduler) Start() {
	go s.run()
}

// Stop ends the periodic trigger. Safe to call more than once.
func (s *ForecastScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// Running reports whether a cycle is currently executing.
func (s *ForecastScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastRun returns when the most recent cycle started (zero before the
// first cycle).
func (s *ForecastScheduler) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

func (s *ForecastScheduler) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("forecast scheduler started", zap.Duration("interval", s.interval))
	s.RunCycle(context.Background())

	for {
		select {
		case <-ticker.C:
			s.RunCycle(context.Background())
		case <-s.stopChan:
			s.logger.Info("forecast scheduler stopped")
			return
		}
	}
}

// RunCycle executes one full cycle over all active links and returns its
// report. Exported so operators and tests can trigger a cycle directly.
func (s *ForecastScheduler) RunCycle(ctx context.Context) *CycleReport {
	report := &CycleReport{StartedAt: time.Now()}

	s.mu.Lock()
	s.running = true
	s.lastRun = report.StartedAt
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	links, err := s.links.ListActive(ctx)
	if err != nil {
		// Cycle-fatal: nothing to iterate. The next trigger retries from
		// scratch.
		report.Err = fmt.Errorf("enumerate active links: %w", err)
		report.FinishedAt = time.Now()
		s.logger.Error("forecast cycle aborted", zap.Error(report.Err))
		infraprometheus.ForecastCycles.WithLabelValues("failed").Inc()
		return report
	}

	s.logger.Info("forecast cycle started", zap.Int("active_links", len(links)))

	for i := range links {
		outcome := s.processLink(ctx, &links[i])
		report.Outcomes = append(report.Outcomes, outcome)
	}

	report.FinishedAt = time.Now()
	infraprometheus.ForecastCycles.WithLabelValues("ok").Inc()
	s.logger.Info("forecast cycle finished",
		zap.Int("links", len(report.Outcomes)),
		zap.Int("alerted", report.Count(OutcomeAlerted)),
		zap.Int("no_spike", report.Count(OutcomeNoSpike)),
		zap.Int("skipped_no_history", report.Count(OutcomeSkipNoHistory)),
		zap.Int("skipped_no_forecast", report.Count(OutcomeSkipNoForecast)),
		zap.Int("skipped_no_contact", report.Count(OutcomeSkipNoContact)),
		zap.Int("failed", report.Count(OutcomeFailed)),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report
}

// processLink runs the fetch -> forecast -> persist -> evaluate -> notify
// steps for one link. Every failure is contained here; a bad link never
// aborts the batch.
func (s *ForecastScheduler) processLink(ctx context.Context, link *model.Link) (outcome LinkOutcome) {
	outcome = LinkOutcome{Code: link.ShortCode}

	defer func() {
		if r := recover(); r != nil {
			outcome.Kind = OutcomeFailed
			outcome.Err = fmt.Errorf("panic processing link: %v", r)
			s.logger.Error("panic while processing link",
				zap.String("code", link.ShortCode), zap.Any("panic", r))
		}
	}()

	stats, err := s.stats.Series(ctx, link.ShortCode)
	if err != nil {
		return s.failed(outcome, fmt.Errorf("fetch click history: %w", err))
	}
	if len(stats) < minSeriesPoints {
		outcome.Kind = OutcomeSkipNoHistory
		return outcome
	}

	series := make([]int64, len(stats))
	for i := range stats {
		series[i] = stats[i].Clicks
	}

	points, err := s.forecaster.Forecast(ctx, series)
	if err != nil {
		return s.failed(outcome, fmt.Errorf("request forecast: %w", err))
	}
	if len(points) == 0 {
		outcome.Kind = OutcomeSkipNoForecast
		return outcome
	}

	// The forecast is persisted before spike evaluation: forecasts are
	// retained even when no alert fires.
	forecast := &model.Forecast{
		LinkCode:     link.ShortCode,
		GeneratedAt:  time.Now(),
		HorizonHours: s.horizon,
		Points:       points,
	}
	if err := s.forecasts.Create(ctx, forecast); err != nil {
		return s.failed(outcome, fmt.Errorf("persist forecast: %w", err))
	}
	infraprometheus.ForecastsStored.Inc()

	window, err := s.stats.Window(ctx, link.ShortCode, time.Now().Add(-s.lookback))
	if err != nil {
		return s.failed(outcome, fmt.Errorf("fetch baseline window: %w", err))
	}
	baseline := s.evaluator.Baseline(window)

	point, spiking := s.evaluator.Evaluate(forecast.Points, baseline)
	if !spiking {
		outcome.Kind = OutcomeNoSpike
		return outcome
	}

	owner, err := s.resolveOwner(ctx, link)
	if err != nil {
		return s.failed(outcome, fmt.Errorf("resolve owner: %w", err))
	}
	if owner == nil || owner.Email == "" {
		// Data-completeness condition, not a failure.
		outcome.Kind = OutcomeSkipNoContact
		return outcome
	}

	if err := s.alerter.Alert(ctx, owner, link, point, baseline); err != nil {
		return s.failed(outcome, err)
	}
	infraprometheus.SpikeAlerts.Inc()

	outcome.Kind = OutcomeAlerted
	return outcome
}

func (s *ForecastScheduler) resolveOwner(ctx context.Context, link *model.Link) (*model.User, error) {
	if link.OwnerID == nil {
		return nil, nil
	}
	owner, err := s.users.GetByID(ctx, *link.OwnerID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return owner, nil
}

func (s *ForecastScheduler) failed(outcome LinkOutcome, err error) LinkOutcome {
	outcome.Kind = OutcomeFailed
	outcome.Err = err
	s.logger.Error("link processing failed",
		zap.String("code", outcome.Code), zap.Error(err))
	return outcome
}
