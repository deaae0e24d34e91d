package repository

import (
	"context"

	"github.com/condobill/condobill/internal/docstore"
	"github.com/condobill/condobill/internal/domain/billingconfig"
	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/logger"
	"github.com/condobill/condobill/internal/types"
)

type billingConfigRepository struct {
	store  docstore.Store
	logger *logger.Logger
}

func NewBillingConfigRepository(store docstore.Store, logger *logger.Logger) billingconfig.Repository {
	return &billingConfigRepository{store: store, logger: logger}
}

func (r *billingConfigRepository) Get(ctx context.Context, module types.BillingModule) (*billingconfig.Config, error) {
	path := docstore.BillingConfigPath(types.GetClientID(ctx), module)
	var cfg billingconfig.Config
	_, exists, err := r.store.Get(ctx, path, &cfg)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ierr.NewErrorf("no billing config for module %s", module).
			WithHint("Seed the client configuration before generating bills").
			Mark(ierr.ErrNotFound)
	}
	if err := cfg.Validate(module); err != nil {
		return nil, err
	}
	return &cfg, nil
}
