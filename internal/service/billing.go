package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/condobill/condobill/internal/api/dto"
	"github.com/condobill/condobill/internal/domain/bill"
	"github.com/condobill/condobill/internal/domain/billingconfig"
	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/types"
)

// BillingService materializes bill period documents. Generation freezes
// the live configuration into the period's snapshot; nothing downstream
// ever reads the live config for an existing bill.
type BillingService interface {
	GenerateBills(ctx context.Context, req *dto.GenerateBillsRequest) (*dto.GenerateBillsResponse, error)
	GetPeriod(ctx context.Context, module types.BillingModule, periodID string) (*bill.Period, error)
}

type billingService struct {
	ServiceParams
}

func NewBillingService(params ServiceParams) BillingService {
	return &billingService{ServiceParams: params}
}

func (s *billingService) GetPeriod(ctx context.Context, module types.BillingModule, periodID string) (*bill.Period, error) {
	p, _, err := s.BillRepo.GetPeriod(ctx, module, periodID)
	return p, err
}

func (s *billingService) GenerateBills(ctx context.Context, req *dto.GenerateBillsRequest) (*dto.GenerateBillsResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cfg, err := s.BillingConfigRepo.Get(ctx, req.Module)
	if err != nil {
		return nil, err
	}

	billDate, err := types.ParseISODate(req.BillDate)
	if err != nil {
		return nil, err
	}
	dueDate := billDate.AddDate(0, 0, cfg.GraceDays)

	p := &bill.Period{
		SchemaVersion: bill.SchemaVersion,
		PeriodID:      req.PeriodID,
		Module:        req.Module,
		BillDate:      req.BillDate,
		DueDate:       types.FormatISODate(dueDate),
		ConfigSnapshot: bill.ConfigSnapshot{
			RatePerM3:        cfg.RatePerM3,
			CarWashRate:      cfg.CarWashRate,
			PenaltyRate:      cfg.PenaltyRate,
			GraceDays:        cfg.GraceDays,
			Currency:         cfg.Currency,
			FiscalStartMonth: cfg.FiscalStartMonth,
			MeterOrder:       cfg.MeterOrder,
			QuarterlyDues:    cfg.QuarterlyDues,
		},
		Units:     make(map[string]*bill.UnitBill, len(cfg.Units)),
		CreatedAt: s.Clock.Now(),
		CreatedBy: types.GetUserID(ctx),
	}

	var skipped []string
	switch req.Module {
	case types.ModuleWaterBills:
		skipped, err = s.buildWaterUnits(ctx, req, cfg, p)
	case types.ModuleHOADues:
		err = s.buildDuesUnits(cfg, p)
	}
	if err != nil {
		return nil, err
	}

	if err := s.writePeriod(ctx, req, p); err != nil {
		return nil, err
	}

	// Best effort; the projection is rebuildable from the bill documents.
	if err := NewProjectionService(s.ServiceParams).RefreshForPeriod(ctx, p); err != nil {
		s.Logger.Errorw("failed to refresh aggregated view after generation",
			"module", req.Module,
			"period_id", req.PeriodID,
			"error", err)
	}

	return s.buildResponse(p, skipped, req.Force), nil
}

// buildWaterUnits computes consumption charges from the period's meter
// readings. Prior readings come from the previous period document; the
// first period of a client starts every meter at zero.
func (s *billingService) buildWaterUnits(ctx context.Context, req *dto.GenerateBillsRequest, cfg *billingconfig.Config, p *bill.Period) ([]string, error) {
	readings, err := s.ReadingRepo.Get(ctx, req.Module, req.PeriodID)
	if err != nil {
		return nil, err
	}
	if readings == nil {
		return nil, ierr.NewErrorf("no readings submitted for period %s", req.PeriodID).
			WithHint("Submit meter readings before generating bills").
			Mark(ierr.ErrValidation)
	}
	p.ReadingDate = readings.ReadingDate

	prior, err := s.priorReadings(ctx, req.Module, req.PeriodID)
	if err != nil {
		return nil, err
	}

	var skipped []string
	for _, unitID := range cfg.Units {
		entry, ok := readings.Units[unitID]
		if !ok {
			skipped = append(skipped, unitID)
			continue
		}

		u := &bill.UnitBill{
			PriorReading:   prior[unitID],
			CurrentReading: entry.Reading,
			CarWashCount:   entry.CarWashCount,
			Status:         types.BillStatusUnpaid,
		}
		u.Consumption = u.CurrentReading - u.PriorReading
		if u.Consumption < 0 {
			// Meter rollover or a miskeyed reading; the operator corrects
			// the reading and regenerates with force.
			u.NeedsReview = true
			u.Consumption = 0
			s.audit(ctx, string(req.Module), AuditActionNegativeReading, req.PeriodID,
				fmt.Sprintf("unit %s: reading %d below prior %d", unitID, u.CurrentReading, u.PriorReading))
		} else {
			u.CurrentCharge = u.Consumption*cfg.RatePerM3 + entry.CarWashCount*cfg.CarWashRate
		}
		u.Recalculate()
		p.Units[unitID] = u
	}
	return skipped, nil
}

func (s *billingService) buildDuesUnits(cfg *billingconfig.Config, p *bill.Period) error {
	for _, unitID := range cfg.Units {
		dues, ok := cfg.QuarterlyDues[unitID]
		if !ok {
			return ierr.NewErrorf("unit %s has no quarterly dues configured", unitID).
				Mark(ierr.ErrValidation)
		}
		u := &bill.UnitBill{
			CurrentCharge: dues,
			Status:        types.BillStatusUnpaid,
		}
		u.Recalculate()
		p.Units[unitID] = u
	}
	return nil
}

// priorReadings resolves each unit's prior meter reading from the
// previous period document, when one exists.
func (s *billingService) priorReadings(ctx context.Context, module types.BillingModule, periodID string) (map[string]int64, error) {
	prevID, ok := previousMonthPeriod(periodID)
	if !ok {
		return map[string]int64{}, nil
	}

	prev, _, err := s.BillRepo.GetPeriod(ctx, module, prevID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return map[string]int64{}, nil
		}
		return nil, err
	}

	prior := make(map[string]int64, len(prev.Units))
	for unitID, u := range prev.Units {
		prior[unitID] = u.CurrentReading
	}
	return prior, nil
}

func previousMonthPeriod(periodID string) (string, bool) {
	year, idx, err := types.ParseMonthPeriod(periodID)
	if err != nil {
		return "", false
	}
	if idx == 0 {
		return types.FormatMonthPeriod(year-1, 11), true
	}
	return types.FormatMonthPeriod(year, idx-1), true
}

func (s *billingService) writePeriod(ctx context.Context, req *dto.GenerateBillsRequest, p *bill.Period) error {
	err := s.BillRepo.CreatePeriod(ctx, p)
	if err == nil {
		return nil
	}
	if !ierr.IsAlreadyExists(err) {
		return err
	}
	if !req.Force {
		return ierr.WithError(err).
			WithHintf("Period %s was already generated; pass force to overwrite", req.PeriodID).
			Mark(ierr.ErrAlreadyExists)
	}

	if err := s.BillRepo.ForceSetPeriod(ctx, p); err != nil {
		return err
	}
	s.audit(ctx, string(req.Module), AuditActionForceRegenerate, req.PeriodID,
		"forced regeneration discarded prior payment state")
	s.Logger.Warnw("forced bill regeneration",
		"module", req.Module,
		"period_id", req.PeriodID,
		"user_id", types.GetUserID(ctx))
	return nil
}

func (s *billingService) buildResponse(p *bill.Period, skipped []string, forced bool) *dto.GenerateBillsResponse {
	units := make([]dto.GeneratedUnit, 0, len(p.Units))
	var total int64
	for unitID, u := range p.Units {
		units = append(units, dto.GeneratedUnit{
			UnitID:        unitID,
			Consumption:   u.Consumption,
			CurrentCharge: u.CurrentCharge,
			NeedsReview:   u.NeedsReview,
		})
		total += u.CurrentCharge
	}
	sort.Slice(units, func(i, j int) bool { return units[i].UnitID < units[j].UnitID })
	sort.Strings(skipped)

	return &dto.GenerateBillsResponse{
		PeriodID:     p.PeriodID,
		Module:       p.Module,
		BillDate:     p.BillDate,
		DueDate:      p.DueDate,
		UnitsBilled:  units,
		UnitsSkipped: skipped,
		TotalBilled:  total,
		TotalDisplay: types.FormatPesos(total),
		Forced:       forced,
	}
}
