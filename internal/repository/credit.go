package repository

import (
	"context"

	"github.com/condobill/condobill/internal/docstore"
	"github.com/condobill/condobill/internal/domain/credit"
	"github.com/condobill/condobill/internal/logger"
	"github.com/condobill/condobill/internal/types"
)

type creditRepository struct {
	store  docstore.Store
	logger *logger.Logger
}

func NewCreditRepository(store docstore.Store, logger *logger.Logger) credit.Repository {
	return &creditRepository{store: store, logger: logger}
}

func (r *creditRepository) Get(ctx context.Context) (*credit.Document, docstore.Revision, error) {
	path := docstore.CreditBalancesPath(types.GetClientID(ctx))
	var doc credit.Document
	rev, exists, err := r.store.Get(ctx, path, &doc)
	if err != nil {
		return nil, "", err
	}
	if !exists {
		return &credit.Document{Units: map[string]*credit.UnitCredit{}}, "", nil
	}
	return &doc, rev, nil
}

func (r *creditRepository) QueueSet(ctx context.Context, b docstore.Batch, doc *credit.Document, rev docstore.Revision) {
	path := docstore.CreditBalancesPath(types.GetClientID(ctx))
	if rev == "" {
		// The caller read an absent document. An unconditional put here
		// would let two first-writers silently clobber each other's
		// history; the loser must see a conflict and rebuild from a
		// fresh read instead.
		b.Set(path, doc, docstore.SetOptions{CreateOnly: true})
		return
	}
	b.Set(path, doc, docstore.SetOptions{IfRev: rev})
}
