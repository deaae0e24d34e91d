package service

import (
	"context"
	"fmt"
	"time"

	"github.com/condobill/condobill/internal/api/dto"
	"github.com/condobill/condobill/internal/domain/bill"
	"github.com/condobill/condobill/internal/domain/projection"
	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/types"
)

// ProjectionService maintains the read-optimized fiscal-year view. The
// projection is a cache over the bill period documents: it can be deleted
// at any time and rebuilt from scratch.
type ProjectionService interface {
	GetAggregatedData(ctx context.Context, req *dto.GetAggregatedDataRequest) (*dto.AggregatedDataResponse, error)
	Rebuild(ctx context.Context, module types.BillingModule, fiscalYear int) (*projection.YearDocument, error)
	// RefreshForPeriod rewrites only the month slot a period maps onto.
	RefreshForPeriod(ctx context.Context, p *bill.Period) error
}

type projectionService struct {
	ServiceParams
}

func NewProjectionService(params ServiceParams) ProjectionService {
	return &projectionService{ServiceParams: params}
}

func (s *projectionService) GetAggregatedData(ctx context.Context, req *dto.GetAggregatedDataRequest) (*dto.AggregatedDataResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.ForceRefresh {
		doc, err := s.Rebuild(ctx, req.Module, req.FiscalYear)
		if err != nil {
			return nil, err
		}
		return &dto.AggregatedDataResponse{YearDocument: doc}, nil
	}

	doc, err := s.ProjectionRepo.Get(ctx, req.Module, req.FiscalYear)
	if ierr.IsNotFound(err) {
		doc, err = s.Rebuild(ctx, req.Module, req.FiscalYear)
	}
	if err != nil {
		return nil, err
	}
	return &dto.AggregatedDataResponse{YearDocument: doc}, nil
}

func (s *projectionService) Rebuild(ctx context.Context, module types.BillingModule, fiscalYear int) (*projection.YearDocument, error) {
	periods, _, err := s.BillRepo.ListPeriods(ctx, module)
	if err != nil {
		return nil, err
	}

	doc := &projection.YearDocument{
		FiscalYear:  fiscalYear,
		Module:      module,
		GeneratedAt: s.Clock.Now(),
	}
	for i := range doc.Months {
		doc.Months[i] = projection.MonthEntry{MonthIndex: i}
	}

	now := s.Clock.Now()
	for _, p := range periods {
		year, idx, ok := periodSlot(p)
		if !ok || year != fiscalYear {
			continue
		}
		entry, err := buildMonthEntry(p, idx, now)
		if err != nil {
			return nil, err
		}
		doc.Months[idx] = entry
	}

	if err := s.ProjectionRepo.Set(ctx, doc); err != nil {
		return nil, err
	}
	s.Logger.Infow("rebuilt aggregated view",
		"module", module,
		"fiscal_year", fiscalYear)
	return doc, nil
}

func (s *projectionService) RefreshForPeriod(ctx context.Context, p *bill.Period) error {
	year, idx, ok := periodSlot(p)
	if !ok {
		return ierr.NewErrorf("period %s does not map to a fiscal month", p.PeriodID).
			Mark(ierr.ErrValidation)
	}

	entry, err := buildMonthEntry(p, idx, s.Clock.Now())
	if err != nil {
		return err
	}
	err = s.ProjectionRepo.SetMonth(ctx, p.Module, year, idx, entry)
	if ierr.IsNotFound(err) {
		_, err = s.Rebuild(ctx, p.Module, year)
	}
	return err
}

// periodSlot maps a period id onto its fiscal year and month slot. HOA
// quarters land on the first month of each quarter.
func periodSlot(p *bill.Period) (int, int, bool) {
	switch p.Module {
	case types.ModuleWaterBills:
		year, idx, err := types.ParseMonthPeriod(p.PeriodID)
		if err != nil {
			return 0, 0, false
		}
		return year, idx, true
	case types.ModuleHOADues:
		year, q, err := types.ParseQuarterPeriod(p.PeriodID)
		if err != nil {
			return 0, 0, false
		}
		return year, (q - 1) * 3, true
	}
	return 0, 0, false
}

func buildMonthEntry(p *bill.Period, monthIndex int, now time.Time) (projection.MonthEntry, error) {
	due, err := p.DueDateTime()
	if err != nil {
		return projection.MonthEntry{}, err
	}

	units := make(map[string]projection.UnitSummary, len(p.Units))
	for unitID, u := range p.Units {
		daysPastDue := 0
		if u.Status != types.BillStatusPaid {
			if d := types.DaysBetween(due, now); d > 0 {
				daysPastDue = d
			}
		}
		units[unitID] = projection.UnitSummary{
			Status:        u.Status,
			CurrentCharge: u.CurrentCharge,
			PenaltyAmount: u.PenaltyAmount,
			TotalAmount:   u.TotalAmount,
			PaidAmount:    u.PaidAmount,
			UnpaidAmount:  u.TotalAmount - u.PaidAmount,
			DaysPastDue:   daysPastDue,
		}
	}

	billingMonth := ""
	if billDate, err := types.ParseISODate(p.BillDate); err == nil {
		billingMonth = fmt.Sprintf("%04d-%02d", billDate.Year(), int(billDate.Month()))
	}

	return projection.MonthEntry{
		MonthIndex:   monthIndex,
		Period:       p.PeriodID,
		BillingMonth: billingMonth,
		ReadingDate:  p.ReadingDate,
		Units:        units,
	}, nil
}
