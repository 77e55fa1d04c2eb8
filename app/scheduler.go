package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ErrCheckInProgress is returned by Trigger while another check runs.
var ErrCheckInProgress = errors.New("recurring check already in progress")

// CheckRunner runs one recurring billing pass.
type CheckRunner interface {
	RunCheck(ctx context.Context) (CheckReport, error)
}

// SchedulerConfig contains configuration for Scheduler.
type SchedulerConfig struct {
	Interval time.Duration
	Timeout  time.Duration
	Logger   zerolog.Logger
}

// Scheduler runs the recurring check once at start and then at a fixed
// interval. At most one check runs at a time.
type Scheduler struct {
	runner CheckRunner
	logger zerolog.Logger

	mu       sync.Mutex
	cron     *cron.Cron
	job      cron.Job
	entry    cron.EntryID
	interval time.Duration
	timeout  time.Duration
	stopped  bool
	base     context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	busy atomic.Bool
	last atomic.Pointer[CheckReport]
}

// NewScheduler creates a scheduler for runner.
func NewScheduler(runner CheckRunner, cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}
	return &Scheduler{
		runner:   runner,
		logger:   cfg.Logger,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
	}
}

// Start runs one check immediately in the background and arms the timer.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errors.New("scheduler already started")
	}

	s.base, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.stopped = false

	logger := cronLogger{log: s.logger}
	s.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	s.job = cron.FuncJob(s.tick)
	s.entry = s.cron.Schedule(cron.Every(s.interval), s.job)
	s.cron.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.tick()
	}()

	s.logger.Info().Dur("interval", s.interval).Msg("recurring billing scheduler started")
	return nil
}

// Stop halts the timer and waits for an in-flight check. If ctx expires
// first, the in-flight check is cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	if c == nil || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	cronDone := c.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		s.logger.Info().Msg("recurring billing scheduler stopped")
	case <-ctx.Done():
		cancel()
		<-done
		err = ctx.Err()
	}
	cancel()

	// A stopped scheduler can be started again.
	s.mu.Lock()
	if s.cron == c {
		s.cron = nil
	}
	s.mu.Unlock()
	return err
}

// Reschedule changes the interval between checks.
func (s *Scheduler) Reschedule(interval time.Duration) {
	if interval <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if interval == s.interval {
		return
	}
	s.interval = interval
	if s.cron == nil || s.stopped {
		return
	}
	s.cron.Remove(s.entry)
	s.entry = s.cron.Schedule(cron.Every(interval), s.job)
	s.logger.Info().Dur("interval", interval).Msg("recurring billing scheduler rescheduled")
}

// SetTimeout changes the deadline applied to each check.
func (s *Scheduler) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	s.mu.Lock()
	s.timeout = timeout
	s.mu.Unlock()
}

// Interval returns the current interval.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Running reports whether a check is executing right now.
func (s *Scheduler) Running() bool {
	return s.busy.Load()
}

// LastReport returns the report of the most recent completed check.
func (s *Scheduler) LastReport() (CheckReport, bool) {
	r := s.last.Load()
	if r == nil {
		return CheckReport{}, false
	}
	return *r, true
}

// Trigger runs a check now, outside the timer. It fails with
// ErrCheckInProgress instead of waiting for a running check.
func (s *Scheduler) Trigger(ctx context.Context) (CheckReport, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return CheckReport{}, ErrCheckInProgress
	}
	defer s.busy.Store(false)

	s.mu.Lock()
	timeout := s.timeout
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.run(ctx)
}

func (s *Scheduler) tick() {
	if !s.busy.CompareAndSwap(false, true) {
		s.logger.Debug().Msg("recurring check still running, skipping tick")
		return
	}
	defer s.busy.Store(false)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	base, timeout := s.base, s.timeout
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(base, timeout)
	defer cancel()

	if _, err := s.run(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("recurring check tick skipped")
	}
}

func (s *Scheduler) run(ctx context.Context) (CheckReport, error) {
	report, err := s.runner.RunCheck(ctx)
	if err == nil {
		s.last.Store(&report)
	}
	return report, err
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
