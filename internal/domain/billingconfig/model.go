package billingconfig

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/types"
)

// Config is a client's live billing configuration for one module. The
// bill generator freezes a snapshot of it into every period document;
// nothing downstream reads the live config for an existing bill.
type Config struct {
	RatePerM3        int64           `json:"ratePerM3"`
	CarWashRate      int64           `json:"carWashRate"`
	PenaltyRate      decimal.Decimal `json:"penaltyRate"`
	GraceDays        int             `json:"graceDays"`
	Currency         string          `json:"currency"`
	FiscalStartMonth int             `json:"fiscalStartMonth"`

	// Units is the roster of billable units.
	Units []string `json:"units"`
	// MeterOrder is the operator's reading walk order.
	MeterOrder []string `json:"meterOrder,omitempty"`
	// QuarterlyDues holds per-unit HOA dues in centavos.
	QuarterlyDues map[string]int64 `json:"quarterlyDues,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

func (c *Config) Validate(module types.BillingModule) error {
	if c.PenaltyRate.IsNegative() {
		return ierr.NewError("penalty rate must not be negative").
			Mark(ierr.ErrValidation)
	}
	if c.GraceDays < 0 {
		return ierr.NewError("grace period must not be negative").
			Mark(ierr.ErrValidation)
	}
	if c.FiscalStartMonth < 1 || c.FiscalStartMonth > 12 {
		return ierr.NewErrorf("fiscal start month %d out of range", c.FiscalStartMonth).
			Mark(ierr.ErrValidation)
	}
	if module == types.ModuleWaterBills && c.RatePerM3 < 0 {
		return ierr.NewError("water rate must not be negative").
			Mark(ierr.ErrValidation)
	}
	if len(c.Units) == 0 {
		return ierr.NewError("unit roster is empty").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Repository reads client billing configuration. Config documents are
// externally sourced and read-only to the billing core.
type Repository interface {
	Get(ctx context.Context, module types.BillingModule) (*Config, error)
}
