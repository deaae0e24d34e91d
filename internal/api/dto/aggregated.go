package dto

import (
	"github.com/condobill/condobill/internal/domain/credit"
	"github.com/condobill/condobill/internal/domain/projection"
	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/types"
	"github.com/condobill/condobill/internal/validator"
)

// GetAggregatedDataRequest fetches the read-optimized fiscal-year view.
// ForceRefresh rebuilds the projection from the bill documents first.
type GetAggregatedDataRequest struct {
	Module       types.BillingModule `json:"module" validate:"required"`
	FiscalYear   int                 `json:"fiscalYear" validate:"required,gt=2000"`
	ForceRefresh bool                `json:"forceRefresh,omitempty"`
}

func (r *GetAggregatedDataRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if !r.Module.Validate() {
		return ierr.NewErrorf("unknown billing module %q", r.Module).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// AggregatedDataResponse wraps the projection document.
type AggregatedDataResponse struct {
	*projection.YearDocument
}

// GetCreditBalanceRequest reads one unit's credit state.
type GetCreditBalanceRequest struct {
	UnitID string `json:"unitId" validate:"required"`
}

func (r *GetCreditBalanceRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// CreditBalanceResponse is one unit's balance plus full history.
type CreditBalanceResponse struct {
	UnitID         string                `json:"unitId"`
	Balance        int64                 `json:"balance"`
	BalanceDisplay string                `json:"balanceDisplay"`
	History        []credit.HistoryEntry `json:"history"`
}

func FromUnitCredit(unitID string, u *credit.UnitCredit) *CreditBalanceResponse {
	return &CreditBalanceResponse{
		UnitID:         unitID,
		Balance:        u.CreditBalance,
		BalanceDisplay: types.FormatPesos(u.CreditBalance),
		History:        u.History,
	}
}
