package rates

import (
	"context"

	"github.com/condobill/condobill/internal/clock"
	"github.com/condobill/condobill/internal/config"
	"github.com/condobill/condobill/internal/docstore"
	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/httpclient"
	"github.com/condobill/condobill/internal/logger"
	"github.com/condobill/condobill/internal/types"
)

// Service fetches and persists the day's exchange rates. Providers are
// tried in order; the first success wins. When a secondary store is
// configured the day's document is synced there after the primary write.
type Service interface {
	FetchDaily(ctx context.Context) (*Document, error)
	Get(ctx context.Context, date string) (*Document, error)
}

type service struct {
	providers []Provider
	store     docstore.Store
	secondary docstore.Store
	clock     clock.Clock
	logger    *logger.Logger
}

// NewService wires the provider chain from configuration: Banxico first,
// DOF as the credential-free fallback, Open Exchange Rates last for its
// cross rates.
func NewService(cfg *config.Configuration, client httpclient.Client, store, secondary docstore.Store, clk clock.Clock, logger *logger.Logger) Service {
	return &service{
		providers: []Provider{
			NewBanxicoProvider(client, cfg.ExchangeRates.BanxicoToken),
			NewDOFProvider(client),
			NewOXRProvider(client, cfg.ExchangeRates.OXRAppID),
		},
		store:     store,
		secondary: secondary,
		clock:     clk,
		logger:    logger,
	}
}

// NewServiceWithProviders is the test seam for injecting fake providers.
func NewServiceWithProviders(providers []Provider, store, secondary docstore.Store, clk clock.Clock, logger *logger.Logger) Service {
	return &service{
		providers: providers,
		store:     store,
		secondary: secondary,
		clock:     clk,
		logger:    logger,
	}
}

func (s *service) FetchDaily(ctx context.Context) (*Document, error) {
	now := s.clock.Now()
	date := types.FormatISODate(now)

	var doc *Document
	var lastErr error
	for _, p := range s.providers {
		rates, err := p.Fetch(ctx, date)
		if err != nil {
			lastErr = err
			s.logger.Warnw("rate provider failed",
				"provider", p.Name(),
				"error", err)
			continue
		}
		doc = &Document{
			Date:      date,
			Rates:     rates,
			Source:    p.Name(),
			FetchedAt: now,
		}
		break
	}
	if doc == nil {
		return nil, ierr.WithError(lastErr).
			WithHint("Every exchange-rate provider failed").
			Mark(ierr.ErrHTTPClient)
	}

	path := docstore.ExchangeRatePath(date)
	if err := s.store.Set(ctx, path, doc, docstore.SetOptions{}); err != nil {
		return nil, err
	}
	s.logger.Infow("persisted exchange rates",
		"date", date,
		"source", doc.Source)

	if s.secondary != nil {
		if err := s.secondary.Set(ctx, path, doc, docstore.SetOptions{}); err != nil {
			// Secondary sync is best effort; the primary write stands.
			s.logger.Errorw("failed to sync rates to secondary store",
				"date", date,
				"error", err)
		}
	}
	return doc, nil
}

func (s *service) Get(ctx context.Context, date string) (*Document, error) {
	var doc Document
	_, exists, err := s.store.Get(ctx, docstore.ExchangeRatePath(date), &doc)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ierr.NewErrorf("no exchange rates stored for %s", date).
			Mark(ierr.ErrNotFound)
	}
	return &doc, nil
}
