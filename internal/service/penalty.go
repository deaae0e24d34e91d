package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/condobill/condobill/internal/docstore"
	"github.com/condobill/condobill/internal/domain/bill"
	"github.com/condobill/condobill/internal/types"
)

// PenaltyService recomputes accrued late penalties. The accrual is a pure
// function of the stored base charge, the due date and the frozen config
// snapshot, so a refresh never depends on the previously stored penalty.
type PenaltyService interface {
	// Accrual computes the penalty accrued on one unit bill as of a date.
	Accrual(u *bill.UnitBill, snapshot bill.ConfigSnapshot, dueDate, asOf time.Time) int64

	// RefreshPeriod recomputes every unit's penalty in one period document
	// and commits the changed units in a single atomic batch. Returns the
	// number of units updated.
	RefreshPeriod(ctx context.Context, p *bill.Period, rev docstore.Revision, asOf time.Time) (int, error)

	// RefreshModule refreshes every period of one module.
	RefreshModule(ctx context.Context, module types.BillingModule, asOf time.Time) (int, error)

	// RefreshAll refreshes both billing modules.
	RefreshAll(ctx context.Context, asOf time.Time) (int, error)
}

type penaltyService struct {
	ServiceParams
}

func NewPenaltyService(params ServiceParams) PenaltyService {
	return &penaltyService{ServiceParams: params}
}

// computeAccrual is the penalty formula: unpaidBase grows by the monthly
// rate, compounded per full 30-day month past due. Accrual freezes once
// the base is fully paid, and never reports less than what was already
// paid toward the penalty.
func computeAccrual(currentCharge, basePaid, storedPenalty, penaltyPaid int64, rate decimal.Decimal, dueDate, asOf time.Time) int64 {
	if basePaid >= currentCharge {
		return storedPenalty
	}

	months := types.FullMonthsBetween(dueDate, asOf)
	if months == 0 {
		return penaltyPaid
	}

	unpaidBase := currentCharge - basePaid
	factor := decimal.NewFromInt(1).
		Add(rate).
		Pow(decimal.NewFromInt(int64(months))).
		Sub(decimal.NewFromInt(1))
	penalty := types.MulBank(unpaidBase, factor)
	if penalty < penaltyPaid {
		return penaltyPaid
	}
	return penalty
}

func (s *penaltyService) Accrual(u *bill.UnitBill, snapshot bill.ConfigSnapshot, dueDate, asOf time.Time) int64 {
	return computeAccrual(u.CurrentCharge, u.BasePaid, u.PenaltyAmount, u.PenaltyPaid, snapshot.PenaltyRate, dueDate, asOf)
}

// refreshedUnits computes the unit bills whose stored penalty no longer
// matches the accrual as of the given date.
func (s *penaltyService) refreshedUnits(p *bill.Period, asOf time.Time) (map[string]*bill.UnitBill, error) {
	due, err := p.DueDateTime()
	if err != nil {
		return nil, err
	}

	changed := make(map[string]*bill.UnitBill)
	for unitID, u := range p.Units {
		accrued := computeAccrual(u.CurrentCharge, u.BasePaid, u.PenaltyAmount, u.PenaltyPaid, p.ConfigSnapshot.PenaltyRate, due, asOf)
		if accrued == u.PenaltyAmount {
			continue
		}

		refreshed := *u
		refreshed.PenaltyAmount = accrued
		refreshed.Recalculate()
		t := asOf
		refreshed.LastPenaltyUpdate = &t
		changed[unitID] = &refreshed
	}
	return changed, nil
}

func (s *penaltyService) RefreshPeriod(ctx context.Context, p *bill.Period, rev docstore.Revision, asOf time.Time) (int, error) {
	changed, err := s.refreshedUnits(p, asOf)
	if err != nil {
		return 0, err
	}
	if len(changed) == 0 {
		return 0, nil
	}
	b := s.Store.Batch()
	s.BillRepo.QueuePenaltyUpdates(ctx, b, p.Module, p.PeriodID, changed, rev)
	if err := b.Commit(ctx); err != nil {
		return 0, err
	}
	updated := len(changed)
	s.Logger.Infow("refreshed penalties",
		"module", p.Module,
		"period_id", p.PeriodID,
		"units_updated", updated,
		"as_of", types.FormatISODate(asOf))
	return updated, nil
}

// RefreshModule fans the refresh out across all period documents of one
// module through the chunked batch processor. Each period is a single
// conditional write; a failed chunk leaves its periods stale for the
// next nightly pass without aborting the other chunks.
func (s *penaltyService) RefreshModule(ctx context.Context, module types.BillingModule, asOf time.Time) (int, error) {
	periods, revs, err := s.BillRepo.ListPeriods(ctx, module)
	if err != nil {
		return 0, err
	}

	var ops []docstore.BatchOp
	var unitCounts []int
	for i, p := range periods {
		changed, err := s.refreshedUnits(p, asOf)
		if err != nil {
			return 0, err
		}
		if len(changed) == 0 {
			continue
		}
		ops = append(ops, s.BillRepo.PenaltyUpdateOp(ctx, module, p.PeriodID, changed, revs[i]))
		unitCounts = append(unitCounts, len(changed))
	}
	if len(ops) == 0 {
		return 0, nil
	}

	concurrency := s.Config.DynamoDB.BatchConcurrency
	if concurrency <= 0 {
		concurrency = s.Config.DynamoDB.PoolSize / 2
	}
	summary := docstore.NewBatchProcessor(s.Store, concurrency).Run(ctx, ops)

	total := 0
	var firstErr error
	for i, r := range summary.Results {
		if r.Err != nil {
			if firstErr == nil {
				firstErr = r.Err
			}
			continue
		}
		total += unitCounts[i]
	}
	if firstErr != nil {
		s.Logger.Errorw("penalty refresh left periods stale",
			"module", module,
			"periods_failed", summary.Failed,
			"error", firstErr)
		return total, firstErr
	}
	s.Logger.Infow("refreshed penalties",
		"module", module,
		"periods_updated", len(ops),
		"units_updated", total,
		"as_of", types.FormatISODate(asOf))
	return total, nil
}

func (s *penaltyService) RefreshAll(ctx context.Context, asOf time.Time) (int, error) {
	total := 0
	for _, module := range []types.BillingModule{types.ModuleWaterBills, types.ModuleHOADues} {
		n, err := s.RefreshModule(ctx, module, asOf)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
