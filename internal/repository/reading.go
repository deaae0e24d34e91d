package repository

import (
	"context"

	"github.com/condobill/condobill/internal/docstore"
	"github.com/condobill/condobill/internal/domain/reading"
	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/logger"
	"github.com/condobill/condobill/internal/types"
)

type readingRepository struct {
	store  docstore.Store
	logger *logger.Logger
}

func NewReadingRepository(store docstore.Store, logger *logger.Logger) reading.Repository {
	return &readingRepository{store: store, logger: logger}
}

func (r *readingRepository) Create(ctx context.Context, module types.BillingModule, p *reading.Period) error {
	if err := p.Validate(); err != nil {
		return err
	}
	path := docstore.ReadingsPath(types.GetClientID(ctx), module, p.PeriodID)
	err := r.store.Set(ctx, path, p, docstore.SetOptions{CreateOnly: true})
	if ierr.IsAlreadyExists(err) {
		return ierr.WithError(err).
			WithHintf("Readings for period %s were already submitted", p.PeriodID).
			Mark(ierr.ErrAlreadyExists)
	}
	return err
}

func (r *readingRepository) Get(ctx context.Context, module types.BillingModule, periodID string) (*reading.Period, error) {
	path := docstore.ReadingsPath(types.GetClientID(ctx), module, periodID)
	var p reading.Period
	_, exists, err := r.store.Get(ctx, path, &p)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return &p, nil
}
