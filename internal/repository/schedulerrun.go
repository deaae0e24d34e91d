package repository

import (
	"context"

	"github.com/condobill/condobill/internal/docstore"
	"github.com/condobill/condobill/internal/domain/schedulerrun"
	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/logger"
)

type schedulerRunRepository struct {
	store  docstore.Store
	logger *logger.Logger
}

func NewSchedulerRunRepository(store docstore.Store, logger *logger.Logger) schedulerrun.Repository {
	return &schedulerRunRepository{store: store, logger: logger}
}

func (r *schedulerRunRepository) GetRun(ctx context.Context, date string) (*schedulerrun.RunLog, error) {
	path := docstore.SchedulerRunPath(date)
	var run schedulerrun.RunLog
	_, exists, err := r.store.Get(ctx, path, &run)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ierr.NewErrorf("no scheduler run for %s", date).
			Mark(ierr.ErrNotFound)
	}
	return &run, nil
}

func (r *schedulerRunRepository) SetRun(ctx context.Context, run *schedulerrun.RunLog) error {
	path := docstore.SchedulerRunPath(run.Date)
	return r.store.Set(ctx, path, run, docstore.SetOptions{})
}

func (r *schedulerRunRepository) GetLease(ctx context.Context) (*schedulerrun.Lease, docstore.Revision, error) {
	path := docstore.SchedulerLeasePath()
	var lease schedulerrun.Lease
	rev, exists, err := r.store.Get(ctx, path, &lease)
	if err != nil {
		return nil, "", err
	}
	if !exists {
		return nil, "", nil
	}
	return &lease, rev, nil
}

func (r *schedulerRunRepository) CreateLease(ctx context.Context, lease *schedulerrun.Lease) error {
	path := docstore.SchedulerLeasePath()
	return r.store.Set(ctx, path, lease, docstore.SetOptions{CreateOnly: true})
}

func (r *schedulerRunRepository) ReplaceLease(ctx context.Context, lease *schedulerrun.Lease, rev docstore.Revision) error {
	path := docstore.SchedulerLeasePath()
	return r.store.Set(ctx, path, lease, docstore.SetOptions{IfRev: rev})
}
