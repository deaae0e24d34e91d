package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/httpclient"
	"github.com/condobill/condobill/internal/types"
)

type dofProvider struct {
	client httpclient.Client
}

// NewDOFProvider fetches the official USD/MXN rate published in the
// Diario Oficial de la Federacion. No credentials required.
func NewDOFProvider(client httpclient.Client) Provider {
	return &dofProvider{client: client}
}

func (p *dofProvider) Name() string { return "dof" }

type dofResponse struct {
	ListaIndicadores []struct {
		Valor string `json:"valor"`
		Fecha string `json:"fecha"`
	} `json:"ListaIndicadores"`
}

func (p *dofProvider) Fetch(ctx context.Context, date string) (map[string]decimal.Decimal, error) {
	day, err := types.ParseISODate(date)
	if err != nil {
		return nil, err
	}
	dofDate := day.Format("02-01-2006")

	resp, err := p.client.Send(ctx, &httpclient.Request{
		Method:  http.MethodGet,
		URL:     fmt.Sprintf("https://sidofqa.segob.gob.mx/dof/sidof/indicadores/158/%s/%s", dofDate, dofDate),
		Headers: map[string]string{"Accept": "application/json"},
	})
	if err != nil {
		return nil, err
	}

	var parsed dofResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, ierr.WithError(err).
			WithHint("DOF returned an unexpected payload").
			Mark(ierr.ErrHTTPClient)
	}
	if len(parsed.ListaIndicadores) == 0 {
		return nil, ierr.NewErrorf("DOF published no rate for %s", date).
			Mark(ierr.ErrHTTPClient)
	}

	rate, err := decimal.NewFromString(parsed.ListaIndicadores[0].Valor)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("DOF rate %q is not numeric", parsed.ListaIndicadores[0].Valor).
			Mark(ierr.ErrHTTPClient)
	}
	return map[string]decimal.Decimal{"USD": rate}, nil
}
