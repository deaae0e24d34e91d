package service

import (
	"context"

	"github.com/condobill/condobill/internal/api/dto"
	"github.com/condobill/condobill/internal/domain/reading"
	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/types"
)

// ReadingService ingests meter readings ahead of bill generation.
type ReadingService interface {
	SubmitReadings(ctx context.Context, req *dto.SubmitReadingsRequest) (*dto.SubmitReadingsResponse, error)
	GetReadings(ctx context.Context, module types.BillingModule, periodID string) (*reading.Period, error)
}

type readingService struct {
	ServiceParams
}

func NewReadingService(params ServiceParams) ReadingService {
	return &readingService{ServiceParams: params}
}

func (s *readingService) SubmitReadings(ctx context.Context, req *dto.SubmitReadingsRequest) (*dto.SubmitReadingsResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Readings are immutable once the period is billed; corrections go
	// through forced regeneration instead.
	billed, err := s.BillRepo.PeriodExists(ctx, req.Module, req.PeriodID)
	if err != nil {
		return nil, err
	}
	if billed {
		return nil, ierr.NewErrorf("period %s is already billed", req.PeriodID).
			WithHint("Bills for this period exist; readings can no longer change").
			Mark(ierr.ErrAlreadyExists)
	}

	p := req.ToPeriod(ctx, s.Clock.Now())
	if err := s.ReadingRepo.Create(ctx, req.Module, p); err != nil {
		return nil, err
	}

	s.Logger.Infow("stored meter readings",
		"module", req.Module,
		"period_id", req.PeriodID,
		"units", len(p.Units))
	return &dto.SubmitReadingsResponse{
		PeriodID:    p.PeriodID,
		ReadingDate: p.ReadingDate,
		UnitCount:   len(p.Units),
	}, nil
}

func (s *readingService) GetReadings(ctx context.Context, module types.BillingModule, periodID string) (*reading.Period, error) {
	p, err := s.ReadingRepo.Get(ctx, module, periodID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ierr.NewErrorf("no readings for period %s", periodID).
			Mark(ierr.ErrNotFound)
	}
	return p, nil
}
