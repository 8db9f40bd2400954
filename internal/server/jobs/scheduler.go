// Package jobs runs the reminder jobs on a cron schedule. Every tick is
// gated to the configured local send hour and guarded by a per-day lock,
// so the schedule itself can be as coarse as hourly.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dmitrijs2005/lfras/internal/logging"
	"github.com/dmitrijs2005/lfras/internal/server/lock"
	"github.com/dmitrijs2005/lfras/internal/server/reminders"
	"github.com/dmitrijs2005/lfras/internal/server/services"
	"github.com/dmitrijs2005/lfras/internal/timex"
)

// DefaultSchedule fires at the top of every hour.
const DefaultSchedule = "0 * * * *"

// Runner executes one reminder job for a calendar date.
type Runner interface {
	Run(ctx context.Context, job string, runDate time.Time) (services.RunSummary, error)
}

type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	locker  lock.Locker
	cfg     reminders.Config
	logger  logging.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewScheduler builds a scheduler in cfg.Location. timeout bounds a single
// run; zero means no bound.
func NewScheduler(runner Runner, locker lock.Locker, cfg reminders.Config, logger logging.Logger, timeout time.Duration) *Scheduler {
	logger = logger.With("module", "scheduler")
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner:  runner,
		locker:  locker,
		cfg:     cfg,
		logger:  logger,
		timeout: timeout,
		now:     time.Now,
	}
}

// Add registers job on a standard five-field cron spec.
func (s *Scheduler) Add(job, spec string) error {
	if spec == "" {
		spec = DefaultSchedule
	}
	_, err := s.cron.AddFunc(spec, func() {
		ctx := context.Background()
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		if _, err := s.Tick(ctx, job); err != nil {
			s.logger.Error(ctx, "scheduled run failed", "job", job, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, job, err)
	}
	return nil
}

// Tick runs job if the current local hour is the send hour and no other
// instance holds today's lock. It reports whether the job ran.
func (s *Scheduler) Tick(ctx context.Context, job string) (bool, error) {
	now := s.now()
	if now.In(s.cfg.Location).Hour() != s.cfg.SendHourLocal {
		s.logger.Debug(ctx, "outside send hour", "job", job, "local_time", now.In(s.cfg.Location).Format(time.Kitchen))
		return false, nil
	}

	runDate := timex.LocalDate(now, s.cfg.Location)
	_, ran, err := RunLocked(ctx, s.locker, s.runner, job, runDate, s.logger)
	return ran, err
}

// RunLocked runs job for runDate while holding the job's lock for that
// date. ran is false when another holder has the lock.
func RunLocked(ctx context.Context, locker lock.Locker, runner Runner, job string, runDate time.Time, logger logging.Logger) (services.RunSummary, bool, error) {
	key := lock.JobKey(job, runDate)
	ctx = logging.ContextWith(ctx, "job", job, "run_date", runDate.Format(time.DateOnly))

	unlock, acquired, err := locker.TryLock(ctx, key)
	if err != nil {
		return services.RunSummary{}, false, fmt.Errorf("error acquiring %s: %w", key, err)
	}
	if !acquired {
		logger.Info(ctx, "run already in progress elsewhere", "lock", key)
		return services.RunSummary{}, false, nil
	}
	defer func() {
		if err := unlock(context.Background()); err != nil {
			logger.Warn(ctx, "lock release failed", "lock", key, "error", err)
		}
	}()

	sum, err := runner.Run(ctx, job, runDate)
	return sum, true, err
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts logging.Logger to cron.Logger.
type cronLogger struct {
	logger logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(context.Background(), msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(context.Background(), msg, append(keysAndValues, "error", err)...)
}
