package bill

import (
	"context"

	"github.com/condobill/condobill/internal/docstore"
	"github.com/condobill/condobill/internal/types"
)

// Repository defines persistence for bill period documents. Reads return
// the document revision so callers can queue conflict-checked mutations
// into an atomic batch.
type Repository interface {
	// CreatePeriod writes a new period document; fails with
	// ErrAlreadyExists when the period was generated before.
	CreatePeriod(ctx context.Context, p *Period) error

	// ForceSetPeriod overwrites an existing period document, discarding
	// any prior payment fields. Dangerous; callers audit it.
	ForceSetPeriod(ctx context.Context, p *Period) error

	// GetPeriod loads one period document.
	GetPeriod(ctx context.Context, module types.BillingModule, periodID string) (*Period, docstore.Revision, error)

	// ListPeriods returns all periods of a module in periodId order.
	ListPeriods(ctx context.Context, module types.BillingModule) ([]*Period, []docstore.Revision, error)

	// PeriodExists reports whether a period document is present.
	PeriodExists(ctx context.Context, module types.BillingModule, periodID string) (bool, error)

	// QueueUnitUpdate queues a merge of one unit's sub-record into the
	// period document, conditional on the revision the caller read.
	QueueUnitUpdate(ctx context.Context, b docstore.Batch, module types.BillingModule, periodID, unitID string, unit *UnitBill, rev docstore.Revision)

	// QueuePenaltyUpdates queues the penalty-engine refresh fields for a
	// set of units as one conditional write on the period document,
	// without touching any payment sub-fields. A transaction admits only
	// one write per document, so the units must go in together.
	QueuePenaltyUpdates(ctx context.Context, b docstore.Batch, module types.BillingModule, periodID string, units map[string]*UnitBill, rev docstore.Revision)

	// PenaltyUpdateOp builds the same refresh write as a standalone op for
	// the chunked batch processor, so a module-wide refresh can fan out
	// across many period documents.
	PenaltyUpdateOp(ctx context.Context, module types.BillingModule, periodID string, units map[string]*UnitBill, rev docstore.Revision) docstore.BatchOp
}
