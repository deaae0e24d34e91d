package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/httpclient"
)

type oxrProvider struct {
	client httpclient.Client
	appID  string
}

// NewOXRProvider fetches USD-based rates from Open Exchange Rates and
// derives MXN cross rates for the currencies the reports care about.
func NewOXRProvider(client httpclient.Client, appID string) Provider {
	return &oxrProvider{client: client, appID: appID}
}

func (p *oxrProvider) Name() string { return "openexchangerates" }

type oxrResponse struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

func (p *oxrProvider) Fetch(ctx context.Context, date string) (map[string]decimal.Decimal, error) {
	if p.appID == "" {
		return nil, ierr.NewError("openexchangerates app id not configured").
			Mark(ierr.ErrValidation)
	}

	resp, err := p.client.Send(ctx, &httpclient.Request{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("https://openexchangerates.org/api/latest.json?app_id=%s&symbols=MXN,CAD,EUR", p.appID),
	})
	if err != nil {
		return nil, err
	}

	var parsed oxrResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Open Exchange Rates returned an unexpected payload").
			Mark(ierr.ErrHTTPClient)
	}
	mxnPerUSD, ok := parsed.Rates["MXN"]
	if !ok || mxnPerUSD <= 0 {
		return nil, ierr.NewError("response is missing the MXN rate").
			Mark(ierr.ErrHTTPClient)
	}

	// Rates come back as units per USD; MXN per X = (MXN/USD) / (X/USD).
	mxn := decimal.NewFromFloat(mxnPerUSD)
	out := map[string]decimal.Decimal{"USD": mxn}
	for _, symbol := range []string{"CAD", "EUR"} {
		perUSD, ok := parsed.Rates[symbol]
		if !ok || perUSD <= 0 {
			continue
		}
		out[symbol] = mxn.Div(decimal.NewFromFloat(perUSD)).Round(6)
	}
	return out, nil
}
