package scheduler

import (
	"context"
	"time"

	"github.com/condobill/condobill/internal/config"
	"github.com/condobill/condobill/internal/domain/schedulerrun"
	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/integration/rates"
	"github.com/condobill/condobill/internal/logger"
	"github.com/condobill/condobill/internal/s3"
	"github.com/condobill/condobill/internal/service"
	"github.com/condobill/condobill/internal/types"
)

// leaseTTL must outlast the worst-case run (sum of task timeouts plus
// store round trips) so a live lease reliably means "a run is active".
const leaseTTL = 15 * time.Minute

// Options toggles individual tasks off for one invocation.
type Options struct {
	SkipBackup  bool
	SkipPenalty bool
	SkipRates   bool
}

// Scheduler executes the nightly maintenance pipeline: backup, penalty
// refresh, exchange-rate fetch, strictly in that order, one task at a
// time. A lease document serializes instances; the run log records
// per-task outcomes.
type Scheduler struct {
	params    service.ServiceParams
	backup    s3.Service
	penalty   service.PenaltyService
	rates     rates.Service
	cfg       *config.SchedulerConfig
	clientIDs []string
	logger    *logger.Logger
}

func New(params service.ServiceParams, backup s3.Service, ratesSvc rates.Service, clientIDs []string) *Scheduler {
	return &Scheduler{
		params:    params,
		backup:    backup,
		penalty:   service.NewPenaltyService(params),
		rates:     ratesSvc,
		cfg:       &params.Config.Scheduler,
		clientIDs: clientIDs,
		logger:    params.Logger,
	}
}

// Run executes one nightly pipeline. It returns the run log and an error
// carrying ErrPartialFailure when at least one task failed, or a plain
// error when the run could not start at all.
func (s *Scheduler) Run(ctx context.Context, opts Options) (*schedulerrun.RunLog, error) {
	now := s.params.Clock.Now()
	// Runs are keyed to the night they serve: an instance that fires
	// before the configured start hour belongs to the previous night.
	date := types.FormatISODate(now.Add(-time.Duration(s.cfg.LocalHour) * time.Hour))

	prior, acquired, err := s.acquireLease(ctx, date, now)
	if err != nil {
		return nil, err
	}
	if !acquired {
		s.logger.Infow("nightly run already completed for today", "date", date)
		return prior, nil
	}

	// Re-entry after a crash re-runs only the tasks that did not succeed.
	var previousTasks map[string]schedulerrun.TaskResult
	if existing, err := s.params.SchedulerRunRepo.GetRun(ctx, date); err == nil {
		previousTasks = existing.Tasks
	} else if !ierr.IsNotFound(err) {
		return nil, err
	}

	run := &schedulerrun.RunLog{
		Date:      date,
		Status:    types.RunStatusRunning,
		StartedAt: now,
		Tasks:     map[string]schedulerrun.TaskResult{},
	}
	if err := s.params.SchedulerRunRepo.SetRun(ctx, run); err != nil {
		return nil, err
	}

	tasks := []struct {
		name    string
		skip    bool
		timeout time.Duration
		fn      func(context.Context) error
	}{
		{schedulerrun.TaskBackup, opts.SkipBackup || s.backup == nil, s.cfg.BackupTimeout, s.runBackup},
		{schedulerrun.TaskPenalty, opts.SkipPenalty, s.cfg.PenaltyTimeout, s.runPenaltyRefresh},
		{schedulerrun.TaskExchangeRate, opts.SkipRates || s.rates == nil, s.cfg.RatesTimeout, s.runRates},
	}

	failed := 0
	for _, t := range tasks {
		if prev, ok := previousTasks[t.name]; ok && prev.Status == types.TaskStatusSuccess {
			run.Tasks[t.name] = prev
			continue
		}
		if t.skip {
			run.Tasks[t.name] = schedulerrun.TaskResult{Status: types.TaskStatusSkipped}
			continue
		}
		result := s.runTask(ctx, t.name, t.timeout, t.fn)
		run.Tasks[t.name] = result
		if result.Status == types.TaskStatusFailed {
			failed++
		}
	}

	finished := s.params.Clock.Now()
	run.FinishedAt = finished
	run.DurationMs = finished.Sub(now).Milliseconds()
	run.Status = types.RunStatusSuccess
	if failed > 0 {
		run.Status = types.RunStatusPartialFailure
	}
	run.OverallStatus = run.Status

	if err := s.params.SchedulerRunRepo.SetRun(ctx, run); err != nil {
		return run, err
	}
	if err := s.completeLease(ctx, date, finished); err != nil {
		s.logger.Errorw("failed to mark scheduler lease completed", "error", err)
	}

	if failed > 0 {
		return run, ierr.NewErrorf("%d of %d tasks failed", failed, len(tasks)).
			WithHint("See the run log for per-task errors").
			Mark(ierr.ErrPartialFailure)
	}
	return run, nil
}

// runTask runs one task under its own timeout. A task failure is
// recorded, never propagated; subsequent tasks still run.
func (s *Scheduler) runTask(ctx context.Context, name string, timeout time.Duration, fn func(context.Context) error) schedulerrun.TaskResult {
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := s.params.Clock.Now()
	err := fn(taskCtx)
	result := schedulerrun.TaskResult{
		Status:     types.TaskStatusSuccess,
		DurationMs: s.params.Clock.Now().Sub(started).Milliseconds(),
	}
	if err != nil {
		result.Status = types.TaskStatusFailed
		result.Error = err.Error()
		s.logger.Errorw("nightly task failed",
			"task", name,
			"error", err)
	} else {
		s.logger.Infow("nightly task finished",
			"task", name,
			"duration_ms", result.DurationMs)
	}
	return result
}

func (s *Scheduler) runBackup(ctx context.Context) error {
	_, err := s.backup.Run(ctx)
	return err
}

func (s *Scheduler) runPenaltyRefresh(ctx context.Context) error {
	asOf := s.params.Clock.Now()
	for _, clientID := range s.clientIDs {
		clientCtx := types.SetClientID(ctx, clientID)
		if _, err := s.penalty.RefreshAll(clientCtx, asOf); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) runRates(ctx context.Context) error {
	_, err := s.rates.FetchDaily(ctx)
	return err
}

// acquireLease claims the singleton lease. Returns the stored run log
// and acquired=false when today's run already completed.
func (s *Scheduler) acquireLease(ctx context.Context, date string, now time.Time) (*schedulerrun.RunLog, bool, error) {
	lease, rev, err := s.params.SchedulerRunRepo.GetLease(ctx)
	if err != nil {
		return nil, false, err
	}

	fresh := &schedulerrun.Lease{
		Token:      types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SCHEDULER_RUN),
		Date:       date,
		AcquiredAt: now,
		ExpiresAt:  now.Add(leaseTTL),
	}

	if lease == nil {
		if err := s.params.SchedulerRunRepo.CreateLease(ctx, fresh); err != nil {
			if ierr.IsConflict(err) {
				return nil, false, ierr.WithError(err).
					WithHint("Another scheduler instance just started").
					Mark(ierr.ErrVersionConflict)
			}
			return nil, false, err
		}
		return nil, true, nil
	}

	if lease.Date == date && lease.Completed {
		run, err := s.params.SchedulerRunRepo.GetRun(ctx, date)
		if err != nil {
			return nil, false, err
		}
		return run, false, nil
	}
	if !lease.Completed && now.Before(lease.ExpiresAt) {
		return nil, false, ierr.NewErrorf("scheduler lease held by %s until %s", lease.Token, lease.ExpiresAt.Format(time.RFC3339)).
			WithHint("Another scheduler instance is running").
			Mark(ierr.ErrVersionConflict)
	}

	if err := s.params.SchedulerRunRepo.ReplaceLease(ctx, fresh, rev); err != nil {
		if ierr.IsConflict(err) {
			return nil, false, ierr.WithError(err).
				WithHint("Another scheduler instance just took the lease").
				Mark(ierr.ErrVersionConflict)
		}
		return nil, false, err
	}
	return nil, true, nil
}

func (s *Scheduler) completeLease(ctx context.Context, date string, now time.Time) error {
	lease, rev, err := s.params.SchedulerRunRepo.GetLease(ctx)
	if err != nil {
		return err
	}
	if lease == nil {
		return nil
	}
	lease.Date = date
	lease.Completed = true
	lease.ExpiresAt = now
	return s.params.SchedulerRunRepo.ReplaceLease(ctx, lease, rev)
}
