package service

import (
	"context"
	"time"

	"github.com/condobill/condobill/internal/api/dto"
	"github.com/condobill/condobill/internal/domain/credit"
	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/types"
)

// CreditService reads unit credit balances. All mutations happen inside
// the payment distributor's atomic batch; this service never writes.
type CreditService interface {
	GetBalance(ctx context.Context, req *dto.GetCreditBalanceRequest) (*dto.CreditBalanceResponse, error)
	ListBalances(ctx context.Context) ([]*dto.CreditBalanceResponse, error)
	// CheckInvariants re-derives every unit balance from its history and
	// reports mismatches without correcting them.
	CheckInvariants(ctx context.Context) ([]InvariantMismatch, error)
}

type creditService struct {
	ServiceParams
}

func NewCreditService(params ServiceParams) CreditService {
	return &creditService{ServiceParams: params}
}

func (s *creditService) GetBalance(ctx context.Context, req *dto.GetCreditBalanceRequest) (*dto.CreditBalanceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	doc, _, err := s.CreditRepo.Get(ctx)
	if err != nil {
		return nil, err
	}
	u, ok := doc.Units[req.UnitID]
	if !ok {
		u = &credit.UnitCredit{History: []credit.HistoryEntry{}}
	}
	if err := u.CheckInvariants(); err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Credit record for unit %s is inconsistent", req.UnitID).
			Mark(ierr.ErrPermanent)
	}
	return dto.FromUnitCredit(req.UnitID, u), nil
}

func (s *creditService) ListBalances(ctx context.Context) ([]*dto.CreditBalanceResponse, error) {
	doc, _, err := s.CreditRepo.Get(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*dto.CreditBalanceResponse, 0, len(doc.Units))
	for unitID, u := range doc.Units {
		out = append(out, dto.FromUnitCredit(unitID, u))
	}
	return out, nil
}

// applyCreditChange appends one history entry and moves the unit balance.
// The balance can never go negative; the distributor computes creditUsed
// as min(due, balance) so a violation here is a programming error.
func applyCreditChange(doc *credit.Document, unitID string, amount int64, entryType types.CreditEntryType, transactionID, notes string, now time.Time) error {
	u := doc.Unit(unitID)
	newBalance := u.CreditBalance + amount
	if newBalance < 0 {
		return ierr.NewErrorf("credit change %d would drive unit %s balance to %d", amount, unitID, newBalance).
			Mark(ierr.ErrPermanent)
	}

	u.History = append(u.History, credit.HistoryEntry{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CREDIT_ENTRY),
		Timestamp:     now,
		Amount:        amount,
		Type:          entryType,
		TransactionID: transactionID,
		Notes:         notes,
		BalanceAfter:  newBalance,
	})
	u.CreditBalance = newBalance
	u.LastChange = &credit.LastChange{
		Year:         now.In(types.ClientLocation()).Year(),
		HistoryIndex: len(u.History) - 1,
		Timestamp:    now,
	}
	return nil
}

// InvariantMismatch reports one unit whose credit history no longer sums
// to its balance. Mismatches are reported for remediation, never
// auto-corrected.
type InvariantMismatch struct {
	UnitID     string `json:"unitId"`
	Balance    int64  `json:"balance"`
	HistorySum int64  `json:"historySum"`
	Detail     string `json:"detail"`
}

func (s *creditService) CheckInvariants(ctx context.Context) ([]InvariantMismatch, error) {
	doc, _, err := s.CreditRepo.Get(ctx)
	if err != nil {
		return nil, err
	}

	var mismatches []InvariantMismatch
	for unitID, u := range doc.Units {
		if err := u.CheckInvariants(); err != nil {
			mismatches = append(mismatches, InvariantMismatch{
				UnitID:     unitID,
				Balance:    u.CreditBalance,
				HistorySum: u.HistorySum(),
				Detail:     err.Error(),
			})
		}
	}
	if len(mismatches) > 0 {
		s.Logger.Errorw("credit invariant check found mismatches",
			"count", len(mismatches))
	}
	return mismatches, nil
}
