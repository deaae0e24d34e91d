package transaction

import (
	"context"

	"github.com/condobill/condobill/internal/docstore"
)

// Repository defines persistence for transaction documents and reversal
// markers.
type Repository interface {
	// Get loads one transaction; ErrNotFound when absent.
	Get(ctx context.Context, transactionID string) (*Transaction, error)

	// ListByUnit returns a unit's transactions ordered by date.
	ListByUnit(ctx context.Context, unitID string) ([]*Transaction, error)

	// QueueCreate queues the transaction document into an atomic batch.
	QueueCreate(ctx context.Context, b docstore.Batch, t *Transaction)

	// QueueDelete queues removal of the transaction document.
	QueueDelete(ctx context.Context, b docstore.Batch, transactionID string)

	// GetReversal loads a stored reversal result; (nil, nil) when the
	// transaction has not been reversed.
	GetReversal(ctx context.Context, transactionID string) (*ReversalResult, error)

	// QueueReversal queues the reversal marker document.
	QueueReversal(ctx context.Context, b docstore.Batch, r *ReversalResult)
}
