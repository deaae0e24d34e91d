package projection

import (
	"context"
	"time"

	"github.com/condobill/condobill/internal/types"
)

// UnitSummary is the read-optimized per-unit roll-up inside a month entry.
type UnitSummary struct {
	Status        types.BillStatus `json:"status"`
	CurrentCharge int64            `json:"currentCharge"`
	PenaltyAmount int64            `json:"penaltyAmount"`
	TotalAmount   int64            `json:"totalAmount"`
	PaidAmount    int64            `json:"paidAmount"`
	UnpaidAmount  int64            `json:"unpaidAmount"`
	DaysPastDue   int              `json:"daysPastDue"`
}

// MonthEntry is one of the 12 fiscal-month slots of a year document.
// Months without a generated bill have a nil Units map.
type MonthEntry struct {
	MonthIndex   int                    `json:"monthIndex"`
	Period       string                 `json:"period"`
	BillingMonth string                 `json:"billingMonth"`
	ReadingDate  string                 `json:"readingDate,omitempty"`
	Units        map[string]UnitSummary `json:"units,omitempty"`
}

// YearDocument is the denormalized per-fiscal-year projection. It is a
// cache: deletable at any time and rebuildable from the bill periods.
type YearDocument struct {
	FiscalYear  int                 `json:"fiscalYear"`
	Module      types.BillingModule `json:"module"`
	Months      [12]MonthEntry      `json:"months"`
	GeneratedAt time.Time           `json:"generatedAt"`
}

// Repository defines persistence for projection documents.
type Repository interface {
	Get(ctx context.Context, module types.BillingModule, fiscalYear int) (*YearDocument, error)
	Set(ctx context.Context, doc *YearDocument) error
	// SetMonth surgically rewrites a single month entry, leaving the
	// others untouched.
	SetMonth(ctx context.Context, module types.BillingModule, fiscalYear, monthIndex int, entry MonthEntry) error
	Delete(ctx context.Context, module types.BillingModule, fiscalYear int) error
}
