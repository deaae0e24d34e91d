package service

import (
	"context"

	"github.com/condobill/condobill/internal/api/dto"
	"github.com/condobill/condobill/internal/clock"
	"github.com/condobill/condobill/internal/config"
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
	"github.com/condobill/condobill/internal/repository"
)

// NotificationSink receives receipts after a payment commits. Delivery is
// best effort; a sink failure never fails the payment.
type NotificationSink interface {
	PaymentRecorded(ctx context.Context, receipt *dto.RecordPaymentResponse)
	PaymentReversed(ctx context.Context, result *dto.DeletePaymentResponse)
}

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	Clock  clock.Clock
	Store  docstore.Store

	// Repositories
	BillRepo          bill.Repository
	ReadingRepo       reading.Repository
	CreditRepo        credit.Repository
	TransactionRepo   transaction.Repository
	AuditRepo         auditlog.Repository
	ProjectionRepo    projection.Repository
	BillingConfigRepo billingconfig.Repository
	SchedulerRunRepo  schedulerrun.Repository

	// Sinks
	Notifier NotificationSink
}

// NewServiceParams bundles the shared dependencies once so the individual
// service constructors stay one-liners.
func NewServiceParams(
	logger *logger.Logger,
	cfg *config.Configuration,
	clk clock.Clock,
	store docstore.Store,
	repos *repository.Repositories,
	notifier NotificationSink,
) ServiceParams {
	return ServiceParams{
		Logger:            logger,
		Config:            cfg,
		Clock:             clk,
		Store:             store,
		BillRepo:          repos.Bill,
		ReadingRepo:       repos.Reading,
		CreditRepo:        repos.Credit,
		TransactionRepo:   repos.Transaction,
		AuditRepo:         repos.AuditLog,
		ProjectionRepo:    repos.Projection,
		BillingConfigRepo: repos.BillingConfig,
		SchedulerRunRepo:  repos.SchedulerRun,
		Notifier:          notifier,
	}
}

func (p ServiceParams) notifyPayment(ctx context.Context, receipt *dto.RecordPaymentResponse) {
	if p.Notifier == nil {
		return
	}
	p.Notifier.PaymentRecorded(ctx, receipt)
}

func (p ServiceParams) notifyReversal(ctx context.Context, result *dto.DeletePaymentResponse) {
	if p.Notifier == nil {
		return
	}
	p.Notifier.PaymentReversed(ctx, result)
}
