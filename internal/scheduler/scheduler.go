// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package scheduler triggers pipeline runs on a cron schedule under the
// single-run lease. A run that finds the lease held is skipped, not queued.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pdiddy/arxiv-digest/internal/lease"
	"github.com/pdiddy/arxiv-digest/internal/observability"
	"github.com/pdiddy/arxiv-digest/internal/pipeline"
	"github.com/pdiddy/arxiv-digest/pkg/types"
)

const (
	defaultPollInterval = time.Minute
	defaultInterval     = 12 * time.Hour
)

// State is the scheduler's run state.
type State int32

const (
	Idle State = iota
	Running
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrInvalidCron is returned by New for an unparseable cron expression.
var ErrInvalidCron = errors.New("invalid cron expression")

// Runner executes one pipeline pass. *pipeline.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, opts pipeline.Options) (pipeline.Result, error)
}

// Recorder persists finished runs. *history.Store implements it.
type Recorder interface {
	Record(ctx context.Context, sum types.RunSummary, entries []types.ReportEntry) error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithHistory records every run summary on r.
func WithHistory(r Recorder) Option {
	return func(s *Scheduler) { s.history = r }
}

// WithMetrics reports runs on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithStateHook calls fn on every state transition.
func WithStateHook(fn func(from, to State)) Option {
	return func(s *Scheduler) { s.onState = fn }
}

// cronChecker evaluates cron expressions. *gronx.Gronx implements it.
type cronChecker interface {
	IsDue(expr string, ref ...time.Time) (bool, error)
}

// Scheduler runs the pipeline periodically.
type Scheduler struct {
	runner  Runner
	lease   *lease.File
	opts    pipeline.Options
	cfg     types.ScheduleConfig
	cron    cronChecker
	history Recorder
	metrics *observability.Metrics
	logger  zerolog.Logger
	onState func(from, to State)
	now     func() time.Time

	state atomic.Int32

	mu        sync.Mutex
	lastStart time.Time
	lastTick  time.Time
}

// New returns a Scheduler running runner with opts under lf.
func New(runner Runner, lf *lease.File, cfg types.ScheduleConfig, opts pipeline.Options, logger zerolog.Logger, options ...Option) (*Scheduler, error) {
	g := gronx.New()
	if cfg.Cron != "" && !g.IsValid(cfg.Cron) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCron, cfg.Cron)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Cron == "" && cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}

	s := &Scheduler{
		runner: runner,
		lease:  lf,
		opts:   opts,
		cfg:    cfg,
		cron:   g,
		logger: logger.With().Str("component", "scheduler").Logger(),
		now:    time.Now,
	}
	for _, o := range options {
		o(s)
	}
	return s, nil
}

// State returns the current state. Safe for concurrent use.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Start runs the pipeline once immediately, then whenever the schedule is
// due, checking every PollInterval. It blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info().
		Str("cron", s.cfg.Cron).
		Dur("interval", s.cfg.Interval).
		Dur("poll", s.cfg.PollInterval).
		Msg("scheduler started")

	s.markTick(s.now())
	s.TriggerOnce(ctx)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return nil
		case <-ticker.C:
			if s.due(s.now()) {
				s.TriggerOnce(ctx)
			}
		}
	}
}

// due reports whether a run should start at t. A cron schedule fires at
// most once per matching minute; the interval schedule fires once Interval
// has passed since the last run started.
func (s *Scheduler) due(t time.Time) bool {
	minute := t.Truncate(time.Minute)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Cron == "" {
		return !s.lastStart.IsZero() && t.Sub(s.lastStart) >= s.cfg.Interval
	}
	if minute.Equal(s.lastTick) {
		return false
	}
	ok, err := s.cron.IsDue(s.cfg.Cron, minute)
	if err != nil {
		s.logger.Error().Err(err).Msg("evaluating cron expression")
		return false
	}
	if ok {
		s.lastTick = minute
	}
	return ok
}

func (s *Scheduler) markTick(t time.Time) {
	s.mu.Lock()
	s.lastTick = t.Truncate(time.Minute)
	s.mu.Unlock()
}

// TriggerOnce runs the pipeline now unless a run is already in progress in
// this process or the lease is held elsewhere; either case yields a skipped
// summary without calling the pipeline. The lease is always released.
func (s *Scheduler) TriggerOnce(ctx context.Context) types.RunSummary {
	start := s.now()

	if !s.state.CompareAndSwap(int32(Idle), int32(Running)) {
		s.logger.Warn().Msg("run already in progress, skipping")
		return s.skipped(ctx, start, "run already in progress")
	}
	s.transition(Idle, Running)
	s.metrics.SetRunning(true)
	defer s.metrics.SetRunning(false)

	s.mu.Lock()
	s.lastStart = start
	s.mu.Unlock()

	l, err := s.lease.Acquire(ctx)
	if err != nil {
		s.setState(Running, Idle)
		if errors.Is(err, lease.ErrHeld) {
			s.logger.Info().Err(err).Msg("lease held, skipping run")
			return s.skipped(ctx, start, err.Error())
		}
		s.logger.Error().Err(err).Msg("acquiring lease")
		sum := types.RunSummary{
			RunID:      uuid.NewString(),
			StartedAt:  start,
			FinishedAt: s.now(),
			Status:     types.RunFailed,
			Error:      err.Error(),
		}
		s.record(ctx, sum, nil)
		return sum
	}
	defer func() {
		if err := l.Release(); err != nil {
			s.logger.Error().Err(err).Msg("releasing lease")
		}
	}()

	log := observability.WithRun(s.logger, l.RunID())
	opts := s.opts
	opts.RunID = l.RunID()

	res, err := s.run(ctx, opts)
	sum := res.Summary
	if sum.RunID == "" {
		sum.RunID = l.RunID()
	}
	if sum.StartedAt.IsZero() {
		sum.StartedAt = start
	}
	if sum.FinishedAt.IsZero() {
		sum.FinishedAt = s.now()
	}

	if err != nil {
		sum.Status = types.RunFailed
		sum.Error = err.Error()
		log.Error().Err(err).Dur("duration", sum.Duration()).Msg("run failed")
		s.setState(Running, Failed)
		s.setState(Failed, Idle)
	} else {
		log.Info().
			Str("status", string(sum.Status)).
			Int("candidates", sum.Candidates).
			Int("selected", sum.Selected).
			Dur("duration", sum.Duration()).
			Msg("run finished")
		s.setState(Running, Idle)
	}

	s.record(ctx, sum, res.Selection.Entries)
	return sum
}

// run calls the runner, turning a panic into an error.
func (s *Scheduler) run(ctx context.Context, opts pipeline.Options) (res pipeline.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("stack", string(debug.Stack())).Msg("pipeline panicked")
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()
	return s.runner.Run(ctx, opts)
}

func (s *Scheduler) skipped(ctx context.Context, start time.Time, reason string) types.RunSummary {
	sum := types.RunSummary{
		RunID:      uuid.NewString(),
		StartedAt:  start,
		FinishedAt: s.now(),
		Status:     types.RunSkipped,
		Error:      reason,
	}
	s.record(ctx, sum, nil)
	return sum
}

func (s *Scheduler) record(ctx context.Context, sum types.RunSummary, entries []types.ReportEntry) {
	s.metrics.RecordRun(sum)
	if s.history == nil {
		return
	}
	if err := s.history.Record(context.WithoutCancel(ctx), sum, entries); err != nil {
		s.logger.Error().Err(err).Str("run_id", sum.RunID).Msg("recording run history")
	}
}

func (s *Scheduler) setState(from, to State) {
	s.state.Store(int32(to))
	s.transition(from, to)
}

func (s *Scheduler) transition(from, to State) {
	if s.onState != nil {
		s.onState(from, to)
	}
}
