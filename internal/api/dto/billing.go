package dto

import (
	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/types"
	"github.com/condobill/condobill/internal/validator"
)

// GenerateBillsRequest asks the generator to create one bill period.
// Force overwrites an already generated period, discarding its payment
// state; every forced overwrite is audited.
type GenerateBillsRequest struct {
	Module   types.BillingModule `json:"module" validate:"required"`
	PeriodID string              `json:"periodId" validate:"required"`
	BillDate string              `json:"billDate" validate:"required"`
	Force    bool                `json:"force,omitempty"`
}

func (r *GenerateBillsRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if !r.Module.Validate() {
		return ierr.NewErrorf("unknown billing module %q", r.Module).
			Mark(ierr.ErrValidation)
	}
	switch r.Module {
	case types.ModuleWaterBills:
		if _, _, err := types.ParseMonthPeriod(r.PeriodID); err != nil {
			return err
		}
	case types.ModuleHOADues:
		if _, _, err := types.ParseQuarterPeriod(r.PeriodID); err != nil {
			return err
		}
	}
	if _, err := types.ParseISODate(r.BillDate); err != nil {
		return err
	}
	return nil
}

// GeneratedUnit is one unit's line in the generation response.
type GeneratedUnit struct {
	UnitID        string `json:"unitId"`
	Consumption   int64  `json:"consumption,omitempty"`
	CurrentCharge int64  `json:"currentCharge"`
	NeedsReview   bool   `json:"needsReview,omitempty"`
}

// GenerateBillsResponse summarizes one generated period.
type GenerateBillsResponse struct {
	PeriodID     string              `json:"periodId"`
	Module       types.BillingModule `json:"module"`
	BillDate     string              `json:"billDate"`
	DueDate      string              `json:"dueDate"`
	UnitsBilled  []GeneratedUnit     `json:"unitsBilled"`
	UnitsSkipped []string            `json:"unitsSkipped,omitempty"`
	TotalBilled  int64               `json:"totalBilled"`
	TotalDisplay string              `json:"totalDisplay"`
	Forced       bool                `json:"forced,omitempty"`
}
