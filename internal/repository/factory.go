package repository

import (
	"github.com/condobill/condobill/internal/docstore"
	"github.com/condobill/condobill/internal/domain/auditlog"
	"github.com/condobill/condobill/internal/domain/bill"
	"github.com/condobill/condobill/internal/domain/billingconfig"
	"github.com/condobill/condobill/internal/domain/credit"
	"github.com/condobill/condobill/internal/domain/projection"
	"github.com/condobill/condobill/internal/domain/reading"
	"github.com/condobill/condobill/internal/domain/schedulerrun"
	"github.com/condobill/condobill/internal/domain/transaction"
	"github.com/condobill/condobill/internal/logger"
)

// Repositories bundles every docstore-backed repository behind the domain
// interfaces so callers wire a single value.
type Repositories struct {
	Bill          bill.Repository
	Reading       reading.Repository
	Credit        credit.Repository
	Transaction   transaction.Repository
	AuditLog      auditlog.Repository
	Projection    projection.Repository
	BillingConfig billingconfig.Repository
	SchedulerRun  schedulerrun.Repository
}

func NewRepositories(store docstore.Store, logger *logger.Logger) *Repositories {
	return &Repositories{
		Bill:          NewBillRepository(store, logger),
		Reading:       NewReadingRepository(store, logger),
		Credit:        NewCreditRepository(store, logger),
		Transaction:   NewTransactionRepository(store, logger),
		AuditLog:      NewAuditLogRepository(store, logger),
		Projection:    NewProjectionRepository(store, logger),
		BillingConfig: NewBillingConfigRepository(store, logger),
		SchedulerRun:  NewSchedulerRunRepository(store, logger),
	}
}
