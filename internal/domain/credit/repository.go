package credit

import (
	"context"

	"github.com/condobill/condobill/internal/docstore"
)

// Repository defines persistence for the per-client credit balance
// document.
type Repository interface {
	// Get loads the client's credit document, returning an empty document
	// when none exists yet.
	Get(ctx context.Context) (*Document, docstore.Revision, error)

	// QueueSet queues a conflict-checked write of the whole document.
	QueueSet(ctx context.Context, b docstore.Batch, doc *Document, rev docstore.Revision)
}
