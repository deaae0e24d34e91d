package transaction

import (
	"time"

	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/types"
)

// Allocation records where one slice of a transaction's amount went.
// Overpayment captured as credit carries CategoryID "account-credit" and
// no bill period.
type Allocation struct {
	TargetModule types.BillingModule    `json:"targetModule,omitempty"`
	BillPeriodID string                 `json:"billPeriodId,omitempty"`
	CategoryID   string                 `json:"categoryId,omitempty"`
	Target       types.AllocationTarget `json:"target"`
	Amount       int64                  `json:"amount"`
	Data         map[string]any         `json:"data,omitempty"`
}

// Transaction is one payment event. Immutable after creation except for
// controlled reversal.
type Transaction struct {
	ID            string                `json:"id"`
	ReceiptNumber string                `json:"receiptNumber,omitempty"`
	Date          string                `json:"date"`
	Amount        int64                 `json:"amount"`
	Type          types.TransactionType `json:"type"`
	UnitID        string                `json:"unitId"`
	AccountID     string                `json:"accountId,omitempty"`
	AccountType   string                `json:"accountType,omitempty"`
	PaymentMethod string                `json:"paymentMethod,omitempty"`
	Notes         string                `json:"notes,omitempty"`
	Allocations   []Allocation          `json:"allocations"`
	Metadata      map[string]string     `json:"metadata,omitempty"`
	CreatedAt     time.Time             `json:"createdAt"`
	CreatedBy     string                `json:"createdBy"`
}

// CheckAllocationSum verifies allocation conservation: the allocations
// must sum exactly to the transaction amount. A violation is permanent;
// it is checked before the commit ever reaches the store.
func (t *Transaction) CheckAllocationSum() error {
	var sum int64
	for _, a := range t.Allocations {
		sum += a.Amount
	}
	if sum != t.Amount {
		return ierr.NewErrorf("allocation sum %d does not equal transaction amount %d", sum, t.Amount).
			Mark(ierr.ErrPermanent)
	}
	return nil
}

// ReversalResult is the stored outcome of a reversal, keyed by
// transactionID + "_reversal" so re-invoking a reversal is a no-op that
// returns the prior result.
type ReversalResult struct {
	TransactionID   string    `json:"transactionId"`
	ReversedAt      time.Time `json:"reversedAt"`
	ReversedBy      string    `json:"reversedBy"`
	EntriesDeleted  int       `json:"entriesDeleted"`
	PreviousBalance int64     `json:"previousBalance"`
	NewBalance      int64     `json:"newBalance"`
	BillsReset      []string  `json:"billsReset"`
}
