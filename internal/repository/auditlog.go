package repository

import (
	"context"

	"github.com/condobill/condobill/internal/docstore"
	"github.com/condobill/condobill/internal/domain/auditlog"
	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/logger"
	"github.com/condobill/condobill/internal/types"
)

type auditLogRepository struct {
	store  docstore.Store
	logger *logger.Logger
}

func NewAuditLogRepository(store docstore.Store, logger *logger.Logger) auditlog.Repository {
	return &auditLogRepository{store: store, logger: logger}
}

func (r *auditLogRepository) Append(ctx context.Context, e *auditlog.Entry) error {
	path := docstore.AuditLogPath(types.GetClientID(ctx), e.ID)
	return r.store.Set(ctx, path, e, docstore.SetOptions{CreateOnly: true})
}

func (r *auditLogRepository) List(ctx context.Context) ([]*auditlog.Entry, error) {
	prefix := docstore.AuditLogPath(types.GetClientID(ctx), "")
	entries, err := r.store.List(ctx, prefix, docstore.ListOptions{})
	if err != nil {
		return nil, err
	}

	out := make([]*auditlog.Entry, 0, len(entries))
	for _, e := range entries {
		var entry auditlog.Entry
		if err := e.Decode(&entry); err != nil {
			return nil, ierr.WithError(err).Mark(ierr.ErrValidation)
		}
		out = append(out, &entry)
	}
	return out, nil
}
