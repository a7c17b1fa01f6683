// Package benchmarks maintains the benchmark catalog and serves benchmark
// return series for portfolio comparison.
package benchmarks

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/internal/modules/prices"
	"github.com/quantfolio/quantfolio/pkg/timeseries"
)

// Service orchestrates catalog persistence and benchmark price loading.
type Service struct {
	repo   *Repository
	prices *prices.Service
	log    zerolog.Logger
}

// NewService creates a benchmark service and seeds the catalog with the
// configured symbols.
func NewService(repo *Repository, priceService *prices.Service, seedSymbols []string, log zerolog.Logger) (*Service, error) {
	s := &Service{
		repo:   repo,
		prices: priceService,
		log:    log.With().Str("component", "benchmarks").Logger(),
	}
	for _, symbol := range seedSymbols {
		if err := repo.Upsert(symbol, symbol); err != nil {
			return nil, fmt.Errorf("seed benchmark catalog: %w", err)
		}
	}
	return s, nil
}

// List returns the catalog.
func (s *Service) List() ([]Benchmark, error) {
	return s.repo.List()
}

// Add registers a benchmark symbol.
func (s *Service) Add(symbol, name string) error {
	if name == "" {
		name = symbol
	}
	return s.repo.Upsert(symbol, name)
}

// ReturnSeries loads daily return series for the requested benchmarks.
// When symbols is empty the whole catalog is used. Benchmarks that fail to
// load are skipped.
func (s *Service) ReturnSeries(ctx context.Context, symbols []string) (map[string]*timeseries.Series, error) {
	if len(symbols) == 0 {
		catalog, err := s.repo.List()
		if err != nil {
			return nil, err
		}
		for _, b := range catalog {
			symbols = append(symbols, b.Symbol)
		}
	}

	out := make(map[string]*timeseries.Series, len(symbols))
	for symbol, history := range s.prices.Prefetch(ctx, symbols) {
		if history.Len() < 2 {
			continue
		}
		out[symbol] = history.PctChange()
	}
	return out, nil
}

// RefreshAll re-fetches every catalog benchmark's price history. Used by
// the scheduled refresh job.
func (s *Service) RefreshAll(ctx context.Context) error {
	catalog, err := s.repo.List()
	if err != nil {
		return err
	}

	now := time.Now()
	for _, b := range catalog {
		s.prices.Invalidate(b.Symbol)
		if _, err := s.prices.GetPriceHistory(ctx, b.Symbol); err != nil {
			s.log.Warn().Err(err).Str("symbol", b.Symbol).Msg("Benchmark refresh failed")
			continue
		}
		if err := s.repo.MarkRefreshed(b.Symbol, now); err != nil {
			s.log.Warn().Err(err).Str("symbol", b.Symbol).Msg("Failed to stamp benchmark refresh")
		}
	}

	s.log.Info().Int("count", len(catalog)).Msg("Benchmark histories refreshed")
	return nil
}
