package repository

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/condobill/condobill/internal/docstore"
	"github.com/condobill/condobill/internal/domain/projection"
	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/logger"
	"github.com/condobill/condobill/internal/types"
)

const projectionCacheTTL = 5 * time.Minute

// projectionRepository persists aggregated-view documents with a small
// read-through cache. The cache entry is purged on every write so a
// surgical month update is immediately visible.
type projectionRepository struct {
	store  docstore.Store
	cache  *gocache.Cache
	logger *logger.Logger
}

func NewProjectionRepository(store docstore.Store, logger *logger.Logger) projection.Repository {
	return &projectionRepository{
		store:  store,
		cache:  gocache.New(projectionCacheTTL, 2*projectionCacheTTL),
		logger: logger,
	}
}

func cacheKey(clientID string, module types.BillingModule, fiscalYear int) string {
	return fmt.Sprintf("%s/%s/%d", clientID, module, fiscalYear)
}

func (r *projectionRepository) Get(ctx context.Context, module types.BillingModule, fiscalYear int) (*projection.YearDocument, error) {
	clientID := types.GetClientID(ctx)
	if cached, ok := r.cache.Get(cacheKey(clientID, module, fiscalYear)); ok {
		return cached.(*projection.YearDocument), nil
	}

	path := docstore.AggregatedDataPath(clientID, module, fiscalYear)
	var doc projection.YearDocument
	_, exists, err := r.store.Get(ctx, path, &doc)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ierr.NewErrorf("no aggregated data for fiscal year %d", fiscalYear).
			Mark(ierr.ErrNotFound)
	}
	r.cache.SetDefault(cacheKey(clientID, module, fiscalYear), &doc)
	return &doc, nil
}

func (r *projectionRepository) Set(ctx context.Context, doc *projection.YearDocument) error {
	clientID := types.GetClientID(ctx)
	path := docstore.AggregatedDataPath(clientID, doc.Module, doc.FiscalYear)
	if err := r.store.Set(ctx, path, doc, docstore.SetOptions{}); err != nil {
		return err
	}
	r.cache.Delete(cacheKey(clientID, doc.Module, doc.FiscalYear))
	return nil
}

// SetMonth rewrites a single month entry via read-modify-write; the
// projection is best-effort and rebuildable, so last-writer-wins is fine.
func (r *projectionRepository) SetMonth(ctx context.Context, module types.BillingModule, fiscalYear, monthIndex int, entry projection.MonthEntry) error {
	clientID := types.GetClientID(ctx)
	path := docstore.AggregatedDataPath(clientID, module, fiscalYear)

	var doc projection.YearDocument
	_, exists, err := r.store.Get(ctx, path, &doc)
	if err != nil {
		return err
	}
	if !exists {
		return ierr.NewErrorf("no aggregated data for fiscal year %d", fiscalYear).
			Mark(ierr.ErrNotFound)
	}

	doc.Months[monthIndex] = entry
	if err := r.store.Set(ctx, path, &doc, docstore.SetOptions{}); err != nil {
		return err
	}
	r.cache.Delete(cacheKey(clientID, module, fiscalYear))
	return nil
}

func (r *projectionRepository) Delete(ctx context.Context, module types.BillingModule, fiscalYear int) error {
	clientID := types.GetClientID(ctx)
	if err := r.store.Delete(ctx, docstore.AggregatedDataPath(clientID, module, fiscalYear)); err != nil {
		return err
	}
	r.cache.Delete(cacheKey(clientID, module, fiscalYear))
	return nil
}
