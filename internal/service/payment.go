package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/condobill/condobill/internal/api/dto"
	"github.com/condobill/condobill/internal/docstore"
	"github.com/condobill/condobill/internal/domain/bill"
	"github.com/condobill/condobill/internal/domain/credit"
	"github.com/condobill/condobill/internal/domain/transaction"
	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/types"
)

// maxCommitAttempts bounds the reload-and-retry loop on version conflicts.
const maxCommitAttempts = 3

// PaymentService applies payments to outstanding bills and reverses them.
// Allocation is strictly oldest period first, base before penalty; pooled
// funds are the payment plus any usable credit balance.
type PaymentService interface {
	RecordPayment(ctx context.Context, req *dto.RecordPaymentRequest) (*dto.RecordPaymentResponse, error)
	DeletePayment(ctx context.Context, req *dto.DeletePaymentRequest) (*dto.DeletePaymentResponse, error)
	GetTransaction(ctx context.Context, transactionID string) (*transaction.Transaction, error)
	ListTransactions(ctx context.Context, unitID string) ([]*transaction.Transaction, error)
}

type paymentService struct {
	ServiceParams
}

func NewPaymentService(params ServiceParams) PaymentService {
	return &paymentService{ServiceParams: params}
}

func (s *paymentService) GetTransaction(ctx context.Context, transactionID string) (*transaction.Transaction, error) {
	return s.TransactionRepo.Get(ctx, transactionID)
}

func (s *paymentService) ListTransactions(ctx context.Context, unitID string) ([]*transaction.Transaction, error) {
	return s.TransactionRepo.ListByUnit(ctx, unitID)
}

// billView is one unpaid bill loaded for planning, with the penalty owed
// as of the payment date. For backdated payments the virtual owed amount
// may be lower than the stored one; stored fields are never rewritten to
// the backdated view.
type billView struct {
	period *bill.Period
	rev    docstore.Revision
	unit   *bill.UnitBill

	baseOwed    int64
	penaltyOwed int64

	// accrued is the penalty as of the payment date; when it exceeds the
	// stored amount the mutation also brings the stored penalty current.
	accrued int64
}

// paymentPlan is the fully computed outcome of one distribution attempt.
// It is committed in a single atomic batch or not at all.
type paymentPlan struct {
	txn            *transaction.Transaction
	mutations      []*billView
	creditDoc      *credit.Document
	creditRev      docstore.Revision
	creditTouched  bool
	creditUsed     int64
	newOverpayment int64
	newBalance     int64
}

func (s *paymentService) RecordPayment(ctx context.Context, req *dto.RecordPaymentRequest) (*dto.RecordPaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	amount := req.AmountCentavos()
	now := s.Clock.Now()
	dateStr := req.Date
	if dateStr == "" {
		dateStr = types.FormatISODate(now)
	}
	paymentDate, err := types.ParseISODate(dateStr)
	if err != nil {
		return nil, err
	}
	paymentInstant := types.NoonAnchored(paymentDate)
	if types.DaysBetween(paymentDate, now) < 0 {
		return nil, ierr.NewErrorf("payment date %s is in the future", dateStr).
			Mark(ierr.ErrValidation)
	}

	var lastErr error
	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		plan, err := s.buildPlan(ctx, req, amount, dateStr, paymentInstant, now)
		if err != nil {
			s.audit(ctx, string(req.Module), AuditActionPaymentFailed, req.UnitID,
				fmt.Sprintf("payment of %s could not be planned: %s", types.FormatPesos(amount), err.Error()))
			return nil, err
		}

		err = s.commitPlan(ctx, plan)
		if err == nil {
			s.refreshProjections(ctx, touchedPeriods(req.UnitID, plan.mutations))
			resp := dto.FromTransaction(plan.txn, plan.creditUsed, plan.newOverpayment, plan.newBalance)
			s.notifyPayment(ctx, resp)
			s.Logger.Infow("recorded payment",
				"transaction_id", plan.txn.ID,
				"unit_id", req.UnitID,
				"amount", amount,
				"credit_used", plan.creditUsed,
				"overpayment", plan.newOverpayment)
			return resp, nil
		}
		if !ierr.IsConflict(err) {
			s.audit(ctx, string(req.Module), AuditActionPaymentFailed, req.UnitID,
				fmt.Sprintf("payment of %s failed to commit: %s", types.FormatPesos(amount), err.Error()))
			return nil, err
		}
		lastErr = err
		s.Logger.Warnw("payment commit conflicted, retrying",
			"unit_id", req.UnitID,
			"attempt", attempt)
	}

	s.audit(ctx, string(req.Module), AuditActionPaymentConflict, req.UnitID,
		fmt.Sprintf("payment of %s abandoned after %d conflicting attempts", types.FormatPesos(amount), maxCommitAttempts))
	return nil, ierr.WithError(lastErr).
		WithHintf("Payment for unit %s kept conflicting with concurrent writes", req.UnitID).
		Mark(ierr.ErrPaymentConflict)
}

// buildPlan loads fresh state and computes the full distribution.
func (s *paymentService) buildPlan(ctx context.Context, req *dto.RecordPaymentRequest, amount int64, dateStr string, paymentInstant, now time.Time) (*paymentPlan, error) {
	bills, err := s.loadUnpaidBills(ctx, req.Module, req.UnitID, paymentInstant)
	if err != nil {
		return nil, err
	}
	creditDoc, creditRev, err := s.CreditRepo.Get(ctx)
	if err != nil {
		return nil, err
	}
	creditBalance := creditDoc.Unit(req.UnitID).CreditBalance

	totalDue := lo.SumBy(bills, func(b *billView) int64 { return b.baseOwed + b.penaltyOwed })

	// Credit usage vs overpayment split.
	var creditUsed, newOverpayment int64
	if amount >= totalDue {
		newOverpayment = amount - totalDue
	} else {
		creditUsed = min64(totalDue-amount, creditBalance)
	}

	txnID := types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TRANSACTION)
	pool := amount + creditUsed
	var allocations []transaction.Allocation
	var mutations []*billView
	var periodsTouched []string

	for _, b := range bills {
		if pool <= 0 {
			break
		}

		applyBase := min64(b.baseOwed, pool)
		pool -= applyBase
		applyPenalty := min64(b.penaltyOwed, pool)
		pool -= applyPenalty
		if applyBase == 0 && applyPenalty == 0 {
			continue
		}

		if applyBase > 0 {
			allocations = append(allocations, transaction.Allocation{
				TargetModule: b.period.Module,
				BillPeriodID: b.period.PeriodID,
				Target:       types.AllocationTargetBase,
				Amount:       applyBase,
			})
		}
		if applyPenalty > 0 {
			allocations = append(allocations, transaction.Allocation{
				TargetModule: b.period.Module,
				BillPeriodID: b.period.PeriodID,
				Target:       types.AllocationTargetPenalty,
				Amount:       applyPenalty,
			})
		}

		b.unit.BasePaid += applyBase
		b.unit.PenaltyPaid += applyPenalty
		b.unit.Payments = append(b.unit.Payments, bill.PaymentRecord{
			TransactionID: txnID,
			Base:          applyBase,
			Penalty:       applyPenalty,
			Timestamp:     paymentInstant,
		})
		// Once the base is settled accrual stops as of the payment date;
		// penalty that only accumulated after that date is not owed.
		if b.unit.BasePaid >= b.unit.CurrentCharge && b.unit.PenaltyAmount != b.accrued {
			b.unit.PenaltyAmount = b.accrued
			t := paymentInstant
			b.unit.LastPenaltyUpdate = &t
		}
		b.unit.Recalculate()
		if err := b.unit.CheckInvariants(); err != nil {
			return nil, err
		}
		mutations = append(mutations, b)
		periodsTouched = append(periodsTouched, b.period.PeriodID)
	}

	// The credit entries keep the transaction allocation sum equal to the
	// payment amount: credit use enters the pool as a negative allocation,
	// overpayment leaves it as a positive one.
	if creditUsed > 0 {
		allocations = append(allocations, transaction.Allocation{
			CategoryID: types.CategoryAccountCredit,
			Target:     types.AllocationTargetCredit,
			Amount:     -creditUsed,
		})
		err := applyCreditChange(creditDoc, req.UnitID, -creditUsed, types.CreditEntryUsed, txnID,
			fmt.Sprintf("credit applied to %s", strings.Join(periodsTouched, ", ")), now)
		if err != nil {
			return nil, err
		}
	}
	if newOverpayment > 0 {
		allocations = append(allocations, transaction.Allocation{
			CategoryID: types.CategoryAccountCredit,
			Target:     types.AllocationTargetCredit,
			Amount:     newOverpayment,
		})
		err := applyCreditChange(creditDoc, req.UnitID, newOverpayment, types.CreditEntryAdded, txnID,
			"overpayment captured as account credit", now)
		if err != nil {
			return nil, err
		}
	}

	txn := &transaction.Transaction{
		ID:            txnID,
		ReceiptNumber: types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_RECEIPT),
		Date:          dateStr,
		Amount:        amount,
		Type:          types.TransactionTypeIncome,
		UnitID:        req.UnitID,
		AccountID:     req.AccountID,
		AccountType:   req.AccountType,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
		Allocations:   allocations,
		CreatedAt:     now,
		CreatedBy:     types.GetUserID(ctx),
	}
	if err := txn.CheckAllocationSum(); err != nil {
		return nil, err
	}

	return &paymentPlan{
		txn:            txn,
		mutations:      mutations,
		creditDoc:      creditDoc,
		creditRev:      creditRev,
		creditTouched:  creditUsed > 0 || newOverpayment > 0,
		creditUsed:     creditUsed,
		newOverpayment: newOverpayment,
		newBalance:     creditDoc.Unit(req.UnitID).CreditBalance,
	}, nil
}

// touchedPeriods folds the committed unit states back into their period
// documents so the view refresh sees post-commit data.
func touchedPeriods(unitID string, mutations []*billView) []*bill.Period {
	periods := make([]*bill.Period, 0, len(mutations))
	for _, m := range mutations {
		m.period.Units[unitID] = m.unit
		periods = append(periods, m.period)
	}
	return periods
}

// refreshProjections rewrites the aggregated-view slots of the periods a
// commit touched. Best effort; the view is rebuildable from the bills.
func (s *paymentService) refreshProjections(ctx context.Context, periods []*bill.Period) {
	if len(periods) == 0 {
		return
	}
	proj := NewProjectionService(s.ServiceParams)
	for _, p := range periods {
		if err := proj.RefreshForPeriod(ctx, p); err != nil {
			s.Logger.Errorw("failed to refresh aggregated view after distribution",
				"module", p.Module,
				"period_id", p.PeriodID,
				"error", err)
		}
	}
}

func (s *paymentService) commitPlan(ctx context.Context, plan *paymentPlan) error {
	b := s.Store.Batch()
	s.TransactionRepo.QueueCreate(ctx, b, plan.txn)
	for _, m := range plan.mutations {
		s.BillRepo.QueueUnitUpdate(ctx, b, m.period.Module, m.period.PeriodID, plan.txn.UnitID, m.unit, m.rev)
	}
	if plan.creditTouched {
		plan.creditDoc.UpdatedAt = s.Clock.Now()
		plan.creditDoc.UpdatedBy = types.GetUserID(ctx)
		s.CreditRepo.QueueSet(ctx, b, plan.creditDoc, plan.creditRev)
	}
	return b.Commit(ctx)
}

// loadUnpaidBills returns the unit's open bills oldest first, with the
// penalty owed recomputed as of the payment date.
func (s *paymentService) loadUnpaidBills(ctx context.Context, module types.BillingModule, unitID string, asOf time.Time) ([]*billView, error) {
	periods, revs, err := s.BillRepo.ListPeriods(ctx, module)
	if err != nil {
		return nil, err
	}

	var views []*billView
	for i, p := range periods {
		u, ok := p.Units[unitID]
		if !ok {
			continue
		}

		due, err := p.DueDateTime()
		if err != nil {
			return nil, err
		}
		accrued := computeAccrual(u.CurrentCharge, u.BasePaid, u.PenaltyAmount, u.PenaltyPaid, p.ConfigSnapshot.PenaltyRate, due, asOf)

		v := &billView{
			period:  p,
			rev:     revs[i],
			unit:    cloneUnit(u),
			accrued: accrued,
		}
		// A stale stored penalty is brought current as part of the same
		// mutation; a backdated view never lowers the stored amount.
		if accrued > v.unit.PenaltyAmount {
			v.unit.PenaltyAmount = accrued
			t := asOf
			v.unit.LastPenaltyUpdate = &t
			v.unit.Recalculate()
		}
		v.baseOwed = v.unit.BaseOwed()
		v.penaltyOwed = accrued - v.unit.PenaltyPaid
		if v.baseOwed <= 0 && v.penaltyOwed <= 0 {
			continue
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *paymentService) DeletePayment(ctx context.Context, req *dto.DeletePaymentRequest) (*dto.DeletePaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Idempotence: a second reversal returns the stored prior result.
	if prior, err := s.TransactionRepo.GetReversal(ctx, req.TransactionID); err != nil {
		return nil, err
	} else if prior != nil {
		return dto.FromReversal(prior, true), nil
	}

	txn, err := s.TransactionRepo.Get(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		result, err := s.reverseOnce(ctx, txn)
		if err == nil {
			resp := dto.FromReversal(result, false)
			s.notifyReversal(ctx, resp)
			s.audit(ctx, "payments", AuditActionPaymentReversal, txn.ID,
				fmt.Sprintf("reversed payment of %s for unit %s", types.FormatPesos(txn.Amount), txn.UnitID))
			return resp, nil
		}
		if !ierr.IsConflict(err) {
			s.audit(ctx, "payments", AuditActionReversalFailed, txn.ID,
				fmt.Sprintf("reversal of %s failed: %s", txn.ID, err.Error()))
			return nil, err
		}
		lastErr = err
		s.Logger.Warnw("reversal commit conflicted, retrying",
			"transaction_id", txn.ID,
			"attempt", attempt)
	}

	s.audit(ctx, "payments", AuditActionReversalFailed, txn.ID,
		fmt.Sprintf("reversal of %s abandoned after %d conflicting attempts", txn.ID, maxCommitAttempts))
	return nil, ierr.WithError(lastErr).
		WithHintf("Reversal of %s kept conflicting with concurrent writes", txn.ID).
		Mark(ierr.ErrPaymentConflict)
}

func (s *paymentService) reverseOnce(ctx context.Context, txn *transaction.Transaction) (*transaction.ReversalResult, error) {
	now := s.Clock.Now()

	// Group bill allocations by period.
	type periodKey struct {
		module   types.BillingModule
		periodID string
	}
	undo := map[periodKey]struct{ base, penalty int64 }{}
	var creditUsed, newOverpayment int64
	for _, a := range txn.Allocations {
		switch a.Target {
		case types.AllocationTargetBase, types.AllocationTargetPenalty:
			k := periodKey{a.TargetModule, a.BillPeriodID}
			e := undo[k]
			if a.Target == types.AllocationTargetBase {
				e.base += a.Amount
			} else {
				e.penalty += a.Amount
			}
			undo[k] = e
		case types.AllocationTargetCredit:
			if a.Amount < 0 {
				creditUsed += -a.Amount
			} else {
				newOverpayment += a.Amount
			}
		}
	}

	b := s.Store.Batch()
	var billsReset []string
	var touched []*bill.Period
	entriesDeleted := 0
	for k, e := range undo {
		p, rev, err := s.BillRepo.GetPeriod(ctx, k.module, k.periodID)
		if err != nil {
			return nil, err
		}
		u, ok := p.Units[txn.UnitID]
		if !ok {
			return nil, ierr.NewErrorf("unit %s missing from period %s", txn.UnitID, k.periodID).
				Mark(ierr.ErrPermanent)
		}

		unit := cloneUnit(u)
		unit.BasePaid -= e.base
		unit.PenaltyPaid -= e.penalty
		if unit.BasePaid < 0 || unit.PenaltyPaid < 0 {
			return nil, ierr.NewErrorf("reversal would drive paid amounts negative on period %s", k.periodID).
				Mark(ierr.ErrPermanent)
		}
		kept := unit.Payments[:0]
		for _, rec := range unit.Payments {
			if rec.TransactionID == txn.ID {
				entriesDeleted++
				continue
			}
			kept = append(kept, rec)
		}
		unit.Payments = kept
		unit.Recalculate()
		if err := unit.CheckInvariants(); err != nil {
			return nil, err
		}

		s.BillRepo.QueueUnitUpdate(ctx, b, k.module, k.periodID, txn.UnitID, unit, rev)
		billsReset = append(billsReset, k.periodID)
		p.Units[txn.UnitID] = unit
		touched = append(touched, p)
	}
	sort.Strings(billsReset)

	creditDoc, creditRev, err := s.CreditRepo.Get(ctx)
	if err != nil {
		return nil, err
	}
	previousBalance := creditDoc.Unit(txn.UnitID).CreditBalance
	newBalance := previousBalance
	if mirror := creditUsed - newOverpayment; mirror != 0 {
		err := applyCreditChange(creditDoc, txn.UnitID, mirror, types.CreditEntryReversal, txn.ID,
			fmt.Sprintf("reversal of %s", txn.ID), now)
		if err != nil {
			return nil, err
		}
		newBalance = creditDoc.Unit(txn.UnitID).CreditBalance
		creditDoc.UpdatedAt = now
		creditDoc.UpdatedBy = types.GetUserID(ctx)
		s.CreditRepo.QueueSet(ctx, b, creditDoc, creditRev)
	}

	result := &transaction.ReversalResult{
		TransactionID:   txn.ID,
		ReversedAt:      now,
		ReversedBy:      types.GetUserID(ctx),
		EntriesDeleted:  entriesDeleted,
		PreviousBalance: previousBalance,
		NewBalance:      newBalance,
		BillsReset:      billsReset,
	}
	s.TransactionRepo.QueueDelete(ctx, b, txn.ID)
	s.TransactionRepo.QueueReversal(ctx, b, result)

	if err := b.Commit(ctx); err != nil {
		return nil, err
	}
	s.refreshProjections(ctx, touched)
	return result, nil
}

func cloneUnit(u *bill.UnitBill) *bill.UnitBill {
	c := *u
	c.Payments = append([]bill.PaymentRecord(nil), u.Payments...)
	return &c
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
