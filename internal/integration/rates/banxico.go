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

// usdSeries is Banxico's FIX USD/MXN series.
const usdSeries = "SF43718"

type banxicoProvider struct {
	client httpclient.Client
	token  string
}

// NewBanxicoProvider fetches the FIX rate from the Banco de Mexico SIE API.
func NewBanxicoProvider(client httpclient.Client, token string) Provider {
	return &banxicoProvider{client: client, token: token}
}

func (p *banxicoProvider) Name() string { return "banxico" }

type banxicoResponse struct {
	Bmx struct {
		Series []struct {
			IDSerie string `json:"idSerie"`
			Datos   []struct {
				Fecha string `json:"fecha"`
				Dato  string `json:"dato"`
			} `json:"datos"`
		} `json:"series"`
	} `json:"bmx"`
}

func (p *banxicoProvider) Fetch(ctx context.Context, date string) (map[string]decimal.Decimal, error) {
	if p.token == "" {
		return nil, ierr.NewError("banxico token not configured").
			Mark(ierr.ErrValidation)
	}

	resp, err := p.client.Send(ctx, &httpclient.Request{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("https://www.banxico.org.mx/SieAPIRest/service/v1/series/%s/datos/oportuno", usdSeries),
		Headers: map[string]string{
			"Bmx-Token": p.token,
			"Accept":    "application/json",
		},
	})
	if err != nil {
		return nil, err
	}

	var parsed banxicoResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Banxico returned an unexpected payload").
			Mark(ierr.ErrHTTPClient)
	}
	if len(parsed.Bmx.Series) == 0 || len(parsed.Bmx.Series[0].Datos) == 0 {
		return nil, ierr.NewError("banxico returned no data points").
			Mark(ierr.ErrHTTPClient)
	}

	rate, err := decimal.NewFromString(parsed.Bmx.Series[0].Datos[0].Dato)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Banxico rate %q is not numeric", parsed.Bmx.Series[0].Datos[0].Dato).
			Mark(ierr.ErrHTTPClient)
	}
	return map[string]decimal.Decimal{"USD": rate}, nil
}
