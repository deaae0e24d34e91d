package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/condobill/condobill/internal/domain/schedulerrun"
	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/integration/rates"
	"github.com/condobill/condobill/internal/s3"
	"github.com/condobill/condobill/internal/service"
	"github.com/condobill/condobill/internal/testutil"
	"github.com/condobill/condobill/internal/types"
)

type fakeBackup struct {
	calls int
	err   error
}

func (f *fakeBackup) Run(ctx context.Context) (*s3.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &s3.Result{Bucket: "test", Key: "backup.tar.gz", Documents: 1}, nil
}

type fakeRates struct {
	calls int
	err   error
}

func (f *fakeRates) FetchDaily(ctx context.Context) (*rates.Document, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &rates.Document{Source: "test"}, nil
}

func (f *fakeRates) Get(ctx context.Context, date string) (*rates.Document, error) {
	return nil, ierr.NewError("not implemented").Mark(ierr.ErrNotFound)
}

type SchedulerSuite struct {
	testutil.BaseServiceTestSuite
	params service.ServiceParams
	backup *fakeBackup
	rates  *fakeRates
}

func TestScheduler(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}

func (s *SchedulerSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.params = service.NewServiceParams(s.GetLogger(), s.GetConfig(), s.GetClock(), s.GetStore(), s.GetRepos(), nil)
	s.backup = &fakeBackup{}
	s.rates = &fakeRates{}
}

func (s *SchedulerSuite) newScheduler() *Scheduler {
	return New(s.params, s.backup, s.rates, []string{types.DefaultClientID})
}

func (s *SchedulerSuite) today() string {
	return types.FormatISODate(s.GetClock().Now())
}

func (s *SchedulerSuite) TestRunExecutesAllTasksInOrder() {
	run, err := s.newScheduler().Run(s.GetContext(), Options{})
	s.Require().NoError(err)

	s.Equal(types.RunStatusSuccess, run.Status)
	s.Equal(types.TaskStatusSuccess, run.Tasks[schedulerrun.TaskBackup].Status)
	s.Equal(types.TaskStatusSuccess, run.Tasks[schedulerrun.TaskPenalty].Status)
	s.Equal(types.TaskStatusSuccess, run.Tasks[schedulerrun.TaskExchangeRate].Status)
	s.Equal(1, s.backup.calls)
	s.Equal(1, s.rates.calls)

	stored, err := s.GetRepos().SchedulerRun.GetRun(s.GetContext(), s.today())
	s.Require().NoError(err)
	s.Equal(types.RunStatusSuccess, stored.OverallStatus)

	lease, _, err := s.GetRepos().SchedulerRun.GetLease(s.GetContext())
	s.Require().NoError(err)
	s.Require().NotNil(lease)
	s.True(lease.Completed)
	s.Equal(s.today(), lease.Date)
}

func (s *SchedulerSuite) TestRunBeforeStartHourBelongsToPreviousNight() {
	// 06:00 UTC is 01:00 in Cancun, two hours before the configured start
	// hour; the run still serves the night of the 14th
	s.GetClock().SetNow(time.Date(2026, time.March, 15, 6, 0, 0, 0, time.UTC))

	run, err := s.newScheduler().Run(s.GetContext(), Options{})
	s.Require().NoError(err)
	s.Equal("2026-03-14", run.Date)

	lease, _, err := s.GetRepos().SchedulerRun.GetLease(s.GetContext())
	s.Require().NoError(err)
	s.Equal("2026-03-14", lease.Date)

	stored, err := s.GetRepos().SchedulerRun.GetRun(s.GetContext(), "2026-03-14")
	s.Require().NoError(err)
	s.Equal(types.RunStatusSuccess, stored.OverallStatus)
}

func (s *SchedulerSuite) TestNilBackupServiceIsSkipped() {
	sched := New(s.params, nil, s.rates, []string{types.DefaultClientID})
	run, err := sched.Run(s.GetContext(), Options{})
	s.Require().NoError(err)

	s.Equal(types.RunStatusSuccess, run.Status)
	s.Equal(types.TaskStatusSkipped, run.Tasks[schedulerrun.TaskBackup].Status)
	s.Equal(types.TaskStatusSuccess, run.Tasks[schedulerrun.TaskExchangeRate].Status)
}

func (s *SchedulerSuite) TestSkipOptionsDisableTasks() {
	run, err := s.newScheduler().Run(s.GetContext(), Options{SkipPenalty: true, SkipRates: true})
	s.Require().NoError(err)

	s.Equal(types.TaskStatusSkipped, run.Tasks[schedulerrun.TaskPenalty].Status)
	s.Equal(types.TaskStatusSkipped, run.Tasks[schedulerrun.TaskExchangeRate].Status)
	s.Equal(0, s.rates.calls)
	s.Equal(1, s.backup.calls)
}

func (s *SchedulerSuite) TestFailedTaskYieldsPartialFailure() {
	s.backup.err = ierr.NewError("bucket unreachable").Mark(ierr.ErrTransient)

	run, err := s.newScheduler().Run(s.GetContext(), Options{})
	s.Require().Error(err)
	s.True(ierr.IsPartialFailure(err))

	s.Equal(types.RunStatusPartialFailure, run.Status)
	s.Equal(types.TaskStatusFailed, run.Tasks[schedulerrun.TaskBackup].Status)
	s.Contains(run.Tasks[schedulerrun.TaskBackup].Error, "bucket unreachable")
	// later tasks still ran
	s.Equal(types.TaskStatusSuccess, run.Tasks[schedulerrun.TaskExchangeRate].Status)

	// a partial failure still counts as today's run
	lease, _, err := s.GetRepos().SchedulerRun.GetLease(s.GetContext())
	s.Require().NoError(err)
	s.True(lease.Completed)
}

func (s *SchedulerSuite) TestSecondInvocationSameDayReturnsStoredRun() {
	first, err := s.newScheduler().Run(s.GetContext(), Options{})
	s.Require().NoError(err)

	second, err := s.newScheduler().Run(s.GetContext(), Options{})
	s.Require().NoError(err)

	s.True(first.StartedAt.Equal(second.StartedAt))
	s.Equal(1, s.backup.calls)
	s.Equal(1, s.rates.calls)
}

func (s *SchedulerSuite) TestLiveLeaseBlocksNewInstance() {
	now := s.GetClock().Now()
	s.Require().NoError(s.GetRepos().SchedulerRun.CreateLease(s.GetContext(), &schedulerrun.Lease{
		Token:      "sr_other",
		Date:       s.today(),
		AcquiredAt: now,
		ExpiresAt:  now.Add(10 * time.Minute),
	}))

	_, err := s.newScheduler().Run(s.GetContext(), Options{})
	s.Require().Error(err)
	s.True(ierr.IsConflict(err))
	s.Equal(0, s.backup.calls)
}

func (s *SchedulerSuite) TestExpiredLeaseReentryRerunsOnlyUnfinishedTasks() {
	now := s.GetClock().Now()
	date := s.today()

	// a prior instance crashed after backup failed but rates succeeded
	s.Require().NoError(s.GetRepos().SchedulerRun.SetRun(s.GetContext(), &schedulerrun.RunLog{
		Date:      date,
		Status:    types.RunStatusRunning,
		StartedAt: now.Add(-time.Hour),
		Tasks: map[string]schedulerrun.TaskResult{
			schedulerrun.TaskBackup:       {Status: types.TaskStatusFailed, Error: "timeout"},
			schedulerrun.TaskPenalty:      {Status: types.TaskStatusSuccess},
			schedulerrun.TaskExchangeRate: {Status: types.TaskStatusSuccess},
		},
	}))
	s.Require().NoError(s.GetRepos().SchedulerRun.CreateLease(s.GetContext(), &schedulerrun.Lease{
		Token:      "sr_crashed",
		Date:       date,
		AcquiredAt: now.Add(-time.Hour),
		ExpiresAt:  now.Add(-45 * time.Minute),
	}))

	run, err := s.newScheduler().Run(s.GetContext(), Options{})
	s.Require().NoError(err)

	s.Equal(types.RunStatusSuccess, run.Status)
	s.Equal(1, s.backup.calls)
	s.Equal(0, s.rates.calls)
	s.Equal(types.TaskStatusSuccess, run.Tasks[schedulerrun.TaskBackup].Status)
	s.Equal(types.TaskStatusSuccess, run.Tasks[schedulerrun.TaskExchangeRate].Status)
}
