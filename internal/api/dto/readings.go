package dto

import (
	"context"
	"time"

	"github.com/condobill/condobill/internal/domain/reading"
	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/types"
	"github.com/condobill/condobill/internal/validator"
)

// ReadingEntryRequest is one unit's submitted meter reading.
type ReadingEntryRequest struct {
	Reading      int64 `json:"reading" validate:"gte=0"`
	CarWashCount int64 `json:"carWashCount,omitempty" validate:"gte=0"`
}

// SubmitReadingsRequest stores a full period of meter readings ahead of
// bill generation.
type SubmitReadingsRequest struct {
	Module      types.BillingModule            `json:"module" validate:"required"`
	PeriodID    string                         `json:"periodId" validate:"required"`
	ReadingDate string                         `json:"readingDate" validate:"required"`
	Units       map[string]ReadingEntryRequest `json:"units" validate:"required,min=1"`
}

func (r *SubmitReadingsRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.Module != types.ModuleWaterBills {
		return ierr.NewErrorf("module %q does not take meter readings", r.Module).
			WithHint("Only water billing is metered").
			Mark(ierr.ErrValidation)
	}
	if _, _, err := types.ParseMonthPeriod(r.PeriodID); err != nil {
		return err
	}
	if _, err := types.ParseISODate(r.ReadingDate); err != nil {
		return err
	}
	return nil
}

func (r *SubmitReadingsRequest) ToPeriod(ctx context.Context, now time.Time) *reading.Period {
	units := make(map[string]*reading.Entry, len(r.Units))
	for unitID, e := range r.Units {
		units[unitID] = &reading.Entry{Reading: e.Reading, CarWashCount: e.CarWashCount}
	}
	return &reading.Period{
		PeriodID:    r.PeriodID,
		ReadingDate: r.ReadingDate,
		Units:       units,
		CreatedAt:   now,
		CreatedBy:   types.GetUserID(ctx),
	}
}

// SubmitReadingsResponse acknowledges a stored readings document.
type SubmitReadingsResponse struct {
	PeriodID    string `json:"periodId"`
	ReadingDate string `json:"readingDate"`
	UnitCount   int    `json:"unitCount"`
}
