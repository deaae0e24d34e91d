package rates

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Document is the persisted day's exchange rates: MXN per one unit of
// each listed currency, keyed by the Cancun calendar date.
type Document struct {
	Date      string                     `json:"date"`
	Rates     map[string]decimal.Decimal `json:"rates"`
	Source    string                     `json:"source"`
	FetchedAt time.Time                  `json:"fetchedAt"`
}

// Provider fetches MXN rates from one upstream source. Providers are
// tried in order until one succeeds.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, date string) (map[string]decimal.Decimal, error)
}
