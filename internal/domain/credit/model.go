package credit

import (
	"time"

	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/types"
)

// HistoryEntry is one append-only credit-balance movement. Amount is
// signed centavos; BalanceAfter is the unit's balance once the entry
// applied.
type HistoryEntry struct {
	ID            string                `json:"id"`
	Timestamp     time.Time             `json:"timestamp"`
	Amount        int64                 `json:"amount"`
	Type          types.CreditEntryType `json:"type"`
	TransactionID string                `json:"transactionId,omitempty"`
	Notes         string                `json:"notes,omitempty"`
	BalanceAfter  int64                 `json:"balanceAfter"`
}

// LastChange points at the most recent history entry for a unit.
type LastChange struct {
	Year         int       `json:"year"`
	HistoryIndex int       `json:"historyIndex"`
	Timestamp    time.Time `json:"timestamp"`
}

// UnitCredit holds one unit's balance and full history.
type UnitCredit struct {
	CreditBalance int64          `json:"creditBalance"`
	LastChange    *LastChange    `json:"lastChange,omitempty"`
	History       []HistoryEntry `json:"history"`
}

// HistorySum re-derives the balance from the history.
func (u *UnitCredit) HistorySum() int64 {
	var sum int64
	for _, h := range u.History {
		sum += h.Amount
	}
	return sum
}

// CheckInvariants verifies the credit-history balance rules for one unit.
func (u *UnitCredit) CheckInvariants() error {
	if u.CreditBalance < 0 {
		return ierr.NewErrorf("credit balance %d is negative", u.CreditBalance).
			Mark(ierr.ErrPermanent)
	}
	if sum := u.HistorySum(); sum != u.CreditBalance {
		return ierr.NewErrorf("history sum %d does not equal balance %d", sum, u.CreditBalance).
			Mark(ierr.ErrPermanent)
	}
	for _, h := range u.History {
		if h.Type != types.CreditEntryStartingBalance && h.TransactionID == "" {
			return ierr.NewErrorf("history entry %s has no transaction id", h.ID).
				Mark(ierr.ErrPermanent)
		}
	}
	return nil
}

// Document is the single per-client credit-balance record holding all
// units. Owned exclusively by the credit balance service.
type Document struct {
	Units     map[string]*UnitCredit `json:"units"`
	UpdatedAt time.Time              `json:"updatedAt"`
	UpdatedBy string                 `json:"updatedBy"`
}

// Unit returns the entry for a unit, creating an empty one when absent.
func (d *Document) Unit(unitID string) *UnitCredit {
	if d.Units == nil {
		d.Units = make(map[string]*UnitCredit)
	}
	u, ok := d.Units[unitID]
	if !ok {
		u = &UnitCredit{History: []HistoryEntry{}}
		d.Units[unitID] = u
	}
	return u
}
