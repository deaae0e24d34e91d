package reading

import (
	"context"

	"github.com/condobill/condobill/internal/types"
)

// Repository defines persistence for reading period documents.
type Repository interface {
	// Create writes a new reading document; fails with ErrAlreadyExists
	// when readings for the period were already submitted.
	Create(ctx context.Context, module types.BillingModule, p *Period) error

	// Get loads one reading period; (nil, nil) when absent.
	Get(ctx context.Context, module types.BillingModule, periodID string) (*Period, error)
}
