package dto

import (
	"github.com/condobill/condobill/internal/domain/transaction"
	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/types"
	"github.com/condobill/condobill/internal/validator"
)

// RecordPaymentRequest records one incoming payment for a unit. Amount is
// a peso string ("1,500.00" and "$1500" both parse); it is converted to
// centavos before any arithmetic happens.
type RecordPaymentRequest struct {
	Module        types.BillingModule `json:"module" validate:"required"`
	UnitID        string              `json:"unitId" validate:"required"`
	Amount        string              `json:"amount" validate:"required"`
	Date          string              `json:"date,omitempty"`
	PaymentMethod string              `json:"paymentMethod,omitempty"`
	AccountID     string              `json:"accountId,omitempty"`
	AccountType   string              `json:"accountType,omitempty"`
	Notes         string              `json:"notes,omitempty"`
}

func (r *RecordPaymentRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if !r.Module.Validate() {
		return ierr.NewErrorf("unknown billing module %q", r.Module).
			Mark(ierr.ErrValidation)
	}
	amount, err := types.ParsePesosNonNegative(r.Amount)
	if err != nil {
		return err
	}
	if amount == 0 {
		return ierr.NewError("payment amount must be positive").
			Mark(ierr.ErrValidation)
	}
	if r.Date != "" {
		if _, err := types.ParseISODate(r.Date); err != nil {
			return err
		}
	}
	return nil
}

// AmountCentavos returns the parsed amount. Call Validate first.
func (r *RecordPaymentRequest) AmountCentavos() int64 {
	amount, _ := types.ParsePesosNonNegative(r.Amount)
	return amount
}

// AllocationResponse is one slice of a recorded payment.
type AllocationResponse struct {
	TargetModule types.BillingModule    `json:"targetModule,omitempty"`
	BillPeriodID string                 `json:"billPeriodId,omitempty"`
	CategoryID   string                 `json:"categoryId,omitempty"`
	Target       types.AllocationTarget `json:"target"`
	Amount       int64                  `json:"amount"`
}

// RecordPaymentResponse reports where the payment went.
type RecordPaymentResponse struct {
	TransactionID string               `json:"transactionId"`
	ReceiptNumber string               `json:"receiptNumber"`
	Date          string               `json:"date"`
	Amount        int64                `json:"amount"`
	AmountDisplay string               `json:"amountDisplay"`
	CreditUsed    int64                `json:"creditUsed,omitempty"`
	CreditAdded   int64                `json:"creditAdded,omitempty"`
	NewBalance    int64                `json:"newBalance"`
	Allocations   []AllocationResponse `json:"allocations"`
}

func FromTransaction(t *transaction.Transaction, creditUsed, creditAdded, newBalance int64) *RecordPaymentResponse {
	allocations := make([]AllocationResponse, 0, len(t.Allocations))
	for _, a := range t.Allocations {
		allocations = append(allocations, AllocationResponse{
			TargetModule: a.TargetModule,
			BillPeriodID: a.BillPeriodID,
			CategoryID:   a.CategoryID,
			Target:       a.Target,
			Amount:       a.Amount,
		})
	}
	return &RecordPaymentResponse{
		TransactionID: t.ID,
		ReceiptNumber: t.ReceiptNumber,
		Date:          t.Date,
		Amount:        t.Amount,
		AmountDisplay: types.FormatPesos(t.Amount),
		CreditUsed:    creditUsed,
		CreditAdded:   creditAdded,
		NewBalance:    newBalance,
		Allocations:   allocations,
	}
}

// DeletePaymentRequest reverses a recorded payment.
type DeletePaymentRequest struct {
	TransactionID string `json:"transactionId" validate:"required"`
}

func (r *DeletePaymentRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// DeletePaymentResponse reports the reversal outcome. Reversing an
// already reversed transaction returns the stored prior result.
type DeletePaymentResponse struct {
	TransactionID   string   `json:"transactionId"`
	AlreadyReversed bool     `json:"alreadyReversed,omitempty"`
	EntriesDeleted  int      `json:"entriesDeleted"`
	PreviousBalance int64    `json:"previousBalance"`
	NewBalance      int64    `json:"newBalance"`
	BillsReset      []string `json:"billsReset,omitempty"`
}

func FromReversal(res *transaction.ReversalResult, alreadyReversed bool) *DeletePaymentResponse {
	return &DeletePaymentResponse{
		TransactionID:   res.TransactionID,
		AlreadyReversed: alreadyReversed,
		EntriesDeleted:  res.EntriesDeleted,
		PreviousBalance: res.PreviousBalance,
		NewBalance:      res.NewBalance,
		BillsReset:      res.BillsReset,
	}
}
