// Package prices serves daily closing price series from a three-level
// lookup: in-memory TTL cache, sqlite store, Yahoo Finance fetch.
package prices

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/quantfolio/quantfolio/internal/clients/yahoo"
	"github.com/quantfolio/quantfolio/pkg/timeseries"
)

const (
	fetchPeriod     = "10y"
	prefetchWorkers = 4
)

type cacheEntry struct {
	series   *timeseries.Series
	cachedAt time.Time
}

// Service resolves price histories, implementing the valuation engine's
// price provider.
type Service struct {
	repo   *Repository
	client *yahoo.Client
	ttl    time.Duration
	log    zerolog.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewService creates a price service with the given cache TTL.
func NewService(repo *Repository, client *yahoo.Client, ttl time.Duration, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		client: client,
		ttl:    ttl,
		log:    log.With().Str("component", "prices").Logger(),
		cache:  make(map[string]cacheEntry),
	}
}

// GetPriceHistory returns the symbol's daily close series. Fresh data is
// served from memory; otherwise the store is consulted and refreshed from
// Yahoo when stale. A failed refresh falls back to stored data when any
// exists.
func (s *Service) GetPriceHistory(ctx context.Context, symbol string) (*timeseries.Series, error) {
	s.mu.RLock()
	entry, ok := s.cache[symbol]
	s.mu.RUnlock()
	if ok && time.Since(entry.cachedAt) < s.ttl {
		return entry.series, nil
	}

	series, err := s.refresh(ctx, symbol)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[symbol] = cacheEntry{series: series, cachedAt: time.Now()}
	s.mu.Unlock()
	return series, nil
}

func (s *Service) refresh(ctx context.Context, symbol string) (*timeseries.Series, error) {
	fetchedAt, stored, err := s.repo.LastFetchedAt(symbol)
	if err != nil {
		return nil, err
	}
	if stored && time.Since(fetchedAt) < s.ttl {
		return s.repo.LoadHistory(symbol)
	}

	bars, fetchErr := s.client.GetDailyHistory(ctx, symbol, fetchPeriod)
	if fetchErr != nil || len(bars) == 0 {
		if stored {
			s.log.Warn().Err(fetchErr).Str("symbol", symbol).Msg("Refresh failed, serving stored prices")
			return s.repo.LoadHistory(symbol)
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("fetch prices for %s: %w", symbol, fetchErr)
		}
		return timeseries.NewSeries(0), nil
	}

	series := timeseries.NewSeries(len(bars))
	for _, bar := range bars {
		series.Append(timeseries.DateOf(bar.Date), bar.Close)
	}

	if err := s.repo.SaveHistory(symbol, series); err != nil {
		s.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to persist fetched prices")
	}
	return series, nil
}

// Prefetch warms the cache for a symbol set in parallel. Individual symbol
// failures are logged, not returned; valuation treats them as failed
// tickers.
func (s *Service) Prefetch(ctx context.Context, symbols []string) map[string]*timeseries.Series {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(prefetchWorkers)

	var mu sync.Mutex
	out := make(map[string]*timeseries.Series, len(symbols))

	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			series, err := s.GetPriceHistory(ctx, symbol)
			if err != nil {
				s.log.Warn().Err(err).Str("symbol", symbol).Msg("Prefetch failed")
				return nil
			}
			mu.Lock()
			out[symbol] = series
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return out
}

// LastPrices extracts the latest close for each prefetched symbol.
func LastPrices(histories map[string]*timeseries.Series) map[string]float64 {
	out := make(map[string]float64, len(histories))
	for symbol, series := range histories {
		if series.Empty() {
			continue
		}
		_, last := series.Last()
		out[symbol] = last
	}
	return out
}

// Invalidate drops one symbol from the memory cache.
func (s *Service) Invalidate(symbol string) {
	s.mu.Lock()
	delete(s.cache, symbol)
	s.mu.Unlock()
}
