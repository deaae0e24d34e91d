package repository

import (
	"context"

	"github.com/condobill/condobill/internal/docstore"
	"github.com/condobill/condobill/internal/domain/bill"
	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/logger"
	"github.com/condobill/condobill/internal/types"
)

type billRepository struct {
	store  docstore.Store
	logger *logger.Logger
}

func NewBillRepository(store docstore.Store, logger *logger.Logger) bill.Repository {
	return &billRepository{store: store, logger: logger}
}

func (r *billRepository) CreatePeriod(ctx context.Context, p *bill.Period) error {
	if err := p.Validate(); err != nil {
		return err
	}
	path := docstore.BillsPath(types.GetClientID(ctx), p.Module, p.PeriodID)
	err := r.store.Set(ctx, path, p, docstore.SetOptions{CreateOnly: true})
	if ierr.IsAlreadyExists(err) {
		return ierr.WithError(err).
			WithHintf("Bills for period %s were already generated", p.PeriodID).
			Mark(ierr.ErrAlreadyExists)
	}
	return err
}

func (r *billRepository) ForceSetPeriod(ctx context.Context, p *bill.Period) error {
	if err := p.Validate(); err != nil {
		return err
	}
	path := docstore.BillsPath(types.GetClientID(ctx), p.Module, p.PeriodID)
	return r.store.Set(ctx, path, p, docstore.SetOptions{})
}

func (r *billRepository) GetPeriod(ctx context.Context, module types.BillingModule, periodID string) (*bill.Period, docstore.Revision, error) {
	path := docstore.BillsPath(types.GetClientID(ctx), module, periodID)
	var p bill.Period
	rev, exists, err := r.store.Get(ctx, path, &p)
	if err != nil {
		return nil, "", err
	}
	if !exists {
		return nil, "", ierr.NewErrorf("bill period %s not found", periodID).
			Mark(ierr.ErrNotFound)
	}
	if err := p.Validate(); err != nil {
		return nil, "", err
	}
	return &p, rev, nil
}

func (r *billRepository) ListPeriods(ctx context.Context, module types.BillingModule) ([]*bill.Period, []docstore.Revision, error) {
	prefix := docstore.BillsPrefix(types.GetClientID(ctx), module)
	entries, err := r.store.List(ctx, prefix, docstore.ListOptions{})
	if err != nil {
		return nil, nil, err
	}

	periods := make([]*bill.Period, 0, len(entries))
	revs := make([]docstore.Revision, 0, len(entries))
	for _, e := range entries {
		var p bill.Period
		if err := e.Decode(&p); err != nil {
			return nil, nil, ierr.WithError(err).
				WithHintf("Bill document %s is malformed", e.Path).
				Mark(ierr.ErrValidation)
		}
		if err := p.Validate(); err != nil {
			return nil, nil, err
		}
		periods = append(periods, &p)
		revs = append(revs, e.Rev)
	}
	return periods, revs, nil
}

func (r *billRepository) PeriodExists(ctx context.Context, module types.BillingModule, periodID string) (bool, error) {
	path := docstore.BillsPath(types.GetClientID(ctx), module, periodID)
	_, exists, err := r.store.Get(ctx, path, nil)
	return exists, err
}

func (r *billRepository) QueueUnitUpdate(ctx context.Context, b docstore.Batch, module types.BillingModule, periodID, unitID string, unit *bill.UnitBill, rev docstore.Revision) {
	// merge only the unit's sub-record; configSnapshot and sibling units
	// stay byte-identical
	b.Update(
		docstore.BillsPath(types.GetClientID(ctx), module, periodID),
		map[string]any{"units." + unitID: unit},
		docstore.UpdateOptions{IfRev: rev},
	)
}

func penaltyFields(units map[string]*bill.UnitBill) map[string]any {
	fields := make(map[string]any, len(units)*4)
	for unitID, unit := range units {
		fields["units."+unitID+".penaltyAmount"] = unit.PenaltyAmount
		fields["units."+unitID+".totalAmount"] = unit.TotalAmount
		fields["units."+unitID+".status"] = unit.Status
		fields["units."+unitID+".lastPenaltyUpdate"] = unit.LastPenaltyUpdate
	}
	return fields
}

func (r *billRepository) QueuePenaltyUpdates(ctx context.Context, b docstore.Batch, module types.BillingModule, periodID string, units map[string]*bill.UnitBill, rev docstore.Revision) {
	b.Update(
		docstore.BillsPath(types.GetClientID(ctx), module, periodID),
		penaltyFields(units),
		docstore.UpdateOptions{IfRev: rev},
	)
}

func (r *billRepository) PenaltyUpdateOp(ctx context.Context, module types.BillingModule, periodID string, units map[string]*bill.UnitBill, rev docstore.Revision) docstore.BatchOp {
	return docstore.UpdateOp(
		docstore.BillsPath(types.GetClientID(ctx), module, periodID),
		penaltyFields(units),
		docstore.UpdateOptions{IfRev: rev},
	)
}
