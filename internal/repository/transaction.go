package repository

import (
	"context"

	"github.com/condobill/condobill/internal/docstore"
	"github.com/condobill/condobill/internal/domain/transaction"
	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/logger"
	"github.com/condobill/condobill/internal/types"
)

const reversalSuffix = "_reversal"

type transactionRepository struct {
	store  docstore.Store
	logger *logger.Logger
}

func NewTransactionRepository(store docstore.Store, logger *logger.Logger) transaction.Repository {
	return &transactionRepository{store: store, logger: logger}
}

func (r *transactionRepository) Get(ctx context.Context, transactionID string) (*transaction.Transaction, error) {
	path := docstore.TransactionPath(types.GetClientID(ctx), transactionID)
	var t transaction.Transaction
	_, exists, err := r.store.Get(ctx, path, &t)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ierr.NewErrorf("transaction %s not found", transactionID).
			Mark(ierr.ErrNotFound)
	}
	return &t, nil
}

func (r *transactionRepository) ListByUnit(ctx context.Context, unitID string) ([]*transaction.Transaction, error) {
	collection := docstore.TransactionsCollection(types.GetClientID(ctx))
	entries, err := r.store.Query(ctx, collection, docstore.Query{
		Filters: []docstore.Filter{
			{Field: "unitId", Op: docstore.OpEqual, Value: unitID},
		},
		OrderBy: "date",
	})
	if err != nil {
		return nil, err
	}

	txns := make([]*transaction.Transaction, 0, len(entries))
	for _, e := range entries {
		var t transaction.Transaction
		if err := e.Decode(&t); err != nil {
			return nil, ierr.WithError(err).
				WithHintf("Transaction document %s is malformed", e.Path).
				Mark(ierr.ErrValidation)
		}
		// reversal markers share the collection
		if t.ID == "" {
			continue
		}
		txns = append(txns, &t)
	}
	return txns, nil
}

func (r *transactionRepository) QueueCreate(ctx context.Context, b docstore.Batch, t *transaction.Transaction) {
	path := docstore.TransactionPath(types.GetClientID(ctx), t.ID)
	b.Set(path, t, docstore.SetOptions{CreateOnly: true})
}

func (r *transactionRepository) QueueDelete(ctx context.Context, b docstore.Batch, transactionID string) {
	b.Delete(docstore.TransactionPath(types.GetClientID(ctx), transactionID))
}

func (r *transactionRepository) GetReversal(ctx context.Context, transactionID string) (*transaction.ReversalResult, error) {
	path := docstore.TransactionPath(types.GetClientID(ctx), transactionID+reversalSuffix)
	var res transaction.ReversalResult
	_, exists, err := r.store.Get(ctx, path, &res)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return &res, nil
}

func (r *transactionRepository) QueueReversal(ctx context.Context, b docstore.Batch, res *transaction.ReversalResult) {
	path := docstore.TransactionPath(types.GetClientID(ctx), res.TransactionID+reversalSuffix)
	b.Set(path, res, docstore.SetOptions{CreateOnly: true})
}
