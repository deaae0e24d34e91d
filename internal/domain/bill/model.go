package bill

import (
	"time"

	"github.com/shopspring/decimal"

	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/types"
)

// SchemaVersion is carried on every period document; reads reject
// unexpected versions instead of coercing legacy shapes.
const SchemaVersion = 2

// ConfigSnapshot is the frozen copy of the billing configuration taken at
// generation time. Every downstream calculation for this period uses the
// snapshot, never the live config. Once written it is never mutated.
type ConfigSnapshot struct {
	RatePerM3        int64           `json:"ratePerM3"`
	CarWashRate      int64           `json:"carWashRate"`
	PenaltyRate      decimal.Decimal `json:"penaltyRate"`
	GraceDays        int             `json:"graceDays"`
	Currency         string          `json:"currency"`
	FiscalStartMonth int             `json:"fiscalStartMonth"`
	MeterOrder       []string        `json:"meterOrder,omitempty"`
	QuarterlyDues    map[string]int64 `json:"quarterlyDues,omitempty"`
}

// PaymentRecord is one allocation applied to a unit bill.
type PaymentRecord struct {
	TransactionID string    `json:"transactionId"`
	Base          int64     `json:"base"`
	Penalty       int64     `json:"penalty"`
	Timestamp     time.Time `json:"timestamp"`
}

// UnitBill is the per-unit entry inside a bill period document.
// CurrentCharge is frozen at generation; the payment sub-fields are the
// only parts the distributor mutates, and the penalty fields the only
// parts the penalty engine mutates.
type UnitBill struct {
	PriorReading   int64 `json:"priorReading,omitempty"`
	CurrentReading int64 `json:"currentReading,omitempty"`
	Consumption    int64 `json:"consumption,omitempty"`
	CarWashCount   int64 `json:"carWashCount,omitempty"`

	CurrentCharge int64 `json:"currentCharge"`
	PenaltyAmount int64 `json:"penaltyAmount"`
	TotalAmount   int64 `json:"totalAmount"`

	PaidAmount  int64 `json:"paidAmount"`
	BasePaid    int64 `json:"basePaid"`
	PenaltyPaid int64 `json:"penaltyPaid"`

	Status   types.BillStatus `json:"status"`
	Payments []PaymentRecord  `json:"payments,omitempty"`

	NeedsReview       bool       `json:"needsReview,omitempty"`
	LastPenaltyUpdate *time.Time `json:"lastPenaltyUpdate,omitempty"`
}

// BaseOwed is the unpaid portion of the period's base charge.
func (u *UnitBill) BaseOwed() int64 {
	return u.CurrentCharge - u.BasePaid
}

// PenaltyOwed is the unpaid portion of the accrued penalty.
func (u *UnitBill) PenaltyOwed() int64 {
	return u.PenaltyAmount - u.PenaltyPaid
}

// Recalculate refreshes the derived fields after a mutation.
func (u *UnitBill) Recalculate() {
	u.TotalAmount = u.CurrentCharge + u.PenaltyAmount
	u.PaidAmount = u.BasePaid + u.PenaltyPaid
	u.Status = types.DeriveBillStatus(u.PaidAmount, u.TotalAmount)
}

// CheckInvariants verifies the paid-split consistency rules.
func (u *UnitBill) CheckInvariants() error {
	if u.BasePaid > u.CurrentCharge {
		return ierr.NewErrorf("basePaid %d exceeds currentCharge %d", u.BasePaid, u.CurrentCharge).
			Mark(ierr.ErrPermanent)
	}
	if u.PenaltyPaid > u.PenaltyAmount {
		return ierr.NewErrorf("penaltyPaid %d exceeds penaltyAmount %d", u.PenaltyPaid, u.PenaltyAmount).
			Mark(ierr.ErrPermanent)
	}
	if u.PaidAmount != u.BasePaid+u.PenaltyPaid {
		return ierr.NewErrorf("paidAmount %d does not equal basePaid %d + penaltyPaid %d",
			u.PaidAmount, u.BasePaid, u.PenaltyPaid).
			Mark(ierr.ErrPermanent)
	}
	if u.Status != types.DeriveBillStatus(u.PaidAmount, u.TotalAmount) {
		return ierr.NewErrorf("status %s does not match paid %d of %d", u.Status, u.PaidAmount, u.TotalAmount).
			Mark(ierr.ErrPermanent)
	}
	return nil
}

// Period is one bill period document: (client, fiscal year, fiscal month)
// for water, (client, fiscal year, quarter) for dues. Created once by the
// generator and never deleted.
type Period struct {
	SchemaVersion  int                  `json:"schemaVersion"`
	PeriodID       string               `json:"periodId"`
	Module         types.BillingModule  `json:"module"`
	BillDate       string               `json:"billDate"`
	DueDate        string               `json:"dueDate"`
	ConfigSnapshot ConfigSnapshot       `json:"configSnapshot"`
	Units          map[string]*UnitBill `json:"units"`
	ReadingDate    string               `json:"readingDate,omitempty"`
	CreatedAt      time.Time            `json:"createdAt"`
	CreatedBy      string               `json:"createdBy"`
}

// Validate rejects documents whose shape this code does not understand.
func (p *Period) Validate() error {
	if p.SchemaVersion != SchemaVersion {
		return ierr.NewErrorf("unsupported bill schema version %d", p.SchemaVersion).
			WithHint("This document was written by an incompatible version").
			Mark(ierr.ErrValidation)
	}
	if p.PeriodID == "" {
		return ierr.NewError("periodId is required").Mark(ierr.ErrValidation)
	}
	if !p.Module.Validate() {
		return ierr.NewErrorf("unknown billing module %q", p.Module).Mark(ierr.ErrValidation)
	}
	for unitID, u := range p.Units {
		if err := u.CheckInvariants(); err != nil {
			return ierr.WithError(err).
				WithHintf("Unit %s fails bill invariants", unitID).
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}

// DueDateTime parses the due date in the client timezone.
func (p *Period) DueDateTime() (time.Time, error) {
	return types.ParseISODate(p.DueDate)
}
