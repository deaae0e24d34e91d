package service

import (
	"context"

	"github.com/condobill/condobill/internal/domain/auditlog"
	"github.com/condobill/condobill/internal/types"
)

// Audit actions recorded by the billing services.
const (
	AuditActionForceRegenerate = "force_regenerate"
	AuditActionPaymentConflict = "payment_conflict"
	AuditActionPaymentFailed   = "payment_failed"
	AuditActionPaymentReversal = "payment_reversal"
	AuditActionReversalFailed  = "reversal_failed"
	AuditActionNegativeReading = "negative_consumption"
)

// audit appends an operational log entry. Append failures are logged and
// swallowed so audit never fails the operation it describes.
func (p ServiceParams) audit(ctx context.Context, module, action, docID, notes string) {
	entry := &auditlog.Entry{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_AUDIT_ENTRY),
		Timestamp: p.Clock.Now(),
		Module:    module,
		Action:    action,
		DocID:     docID,
		Notes:     notes,
		UserID:    types.GetUserID(ctx),
	}
	if err := p.AuditRepo.Append(ctx, entry); err != nil {
		p.Logger.Errorw("failed to append audit entry",
			"action", action,
			"doc_id", docID,
			"error", err)
	}
}
