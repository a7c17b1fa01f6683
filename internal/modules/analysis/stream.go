package analysis

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/quantfolio/quantfolio/internal/events"
	"github.com/quantfolio/quantfolio/internal/modules/engine"
	"github.com/quantfolio/quantfolio/internal/modules/indicators"
	"github.com/quantfolio/quantfolio/pkg/timeseries"
)

// Report is the full analysis payload assembled by Analyze.
type Report struct {
	PortfolioID         string                                 `json:"portfolio_id"`
	NAV                 *NAVResult                             `json:"nav"`
	Indicators          map[string]any                         `json:"indicators"`
	BenchmarkComparison map[string]indicators.BenchmarkMetrics `json:"benchmark_comparison,omitempty"`
	StaleTickers        []engine.StaleTicker                   `json:"stale_tickers,omitempty"`
}

// Analyze runs the whole pipeline for one portfolio, emitting a progress
// event per stage. Benchmark comparison failures degrade to a report
// without that section rather than failing the run.
func (s *Service) Analyze(ctx context.Context, portfolioID string, benchmarkSymbols []string) (*Report, error) {
	s.events.Emit(events.AnalysisStarted, "analysis", map[string]any{"portfolio_id": portfolioID})

	eng, in, err := s.buildEngine(portfolioID)
	if err != nil {
		s.events.EmitError("analysis", err, map[string]any{"portfolio_id": portfolioID})
		return nil, err
	}

	symbols := in.Symbols()
	s.events.Emit(events.SymbolsResolved, "analysis", map[string]any{"symbols": symbols})

	// Prices and benchmark histories load concurrently; the engine replay
	// itself stays single-threaded.
	var benchmarkReturns map[string]*timeseries.Series
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.warmEngine(gctx, eng, symbols)
		return nil
	})
	g.Go(func() error {
		var berr error
		benchmarkReturns, berr = s.benchmarks.ReturnSeries(gctx, benchmarkSymbols)
		if berr != nil {
			s.log.Warn().Err(berr).Msg("Benchmark load failed, continuing without comparison")
		}
		return nil
	})
	_ = g.Wait()
	s.events.Emit(events.PricesLoaded, "analysis", map[string]any{"symbols": len(symbols)})

	stale, err := eng.DetectStaleTickers(ctx)
	if err != nil {
		s.events.EmitError("analysis", err, map[string]any{"portfolio_id": portfolioID})
		return nil, err
	}
	if len(stale) > 0 {
		s.events.Emit(events.StaleTickersFound, "analysis", map[string]any{"tickers": stale})
	}

	nav, err := eng.CalculateNAVHistory(ctx)
	if err != nil {
		s.events.EmitError("analysis", err, map[string]any{"portfolio_id": portfolioID})
		return nil, fmt.Errorf("calculate NAV: %w", err)
	}
	var latest float64
	if !nav.Empty() {
		_, latest = nav.Last()
	}
	s.events.Emit(events.NAVComputed, "analysis", map[string]any{
		"points": nav.Len(),
		"latest": latest,
	})

	base, err := eng.BaseData(ctx)
	if err != nil {
		s.events.EmitError("analysis", err, map[string]any{"portfolio_id": portfolioID})
		return nil, fmt.Errorf("base data: %w", err)
	}
	sectors, industries := s.resolver.GroupMaps(ctx, symbols)
	all := indicators.AllIndicators(indicators.Input{
		NAV:          base.NAV,
		Transactions: in.Transactions,
		Holdings:     base.Holdings,
		Prices:       base.Prices,
		PriceHistory: base.PriceHistory,
		Weights:      base.Weights,
		SectorMap:    sectors,
		IndustryMap:  industries,
		RiskFreeRate: s.rf,
	})
	s.events.Emit(events.IndicatorsComputed, "analysis", map[string]any{"sections": len(all)})

	report := &Report{
		PortfolioID: portfolioID,
		NAV: &NAVResult{
			NAV:                     toPayload(nav),
			Cash:                    toPayload(eng.CashHistory()),
			BondCoupons:             toPayload(eng.BondCouponHistory()),
			BondMaturityCash:        toPayload(eng.BondMaturityCash()),
			FailedTickers:           eng.FailedTickers(),
			SuggestedInitialDeposit: eng.SuggestedInitialDeposit(),
			LiquidationEvents:       eng.LiquidationEvents(),
		},
		Indicators: all,
	}
	if len(benchmarkReturns) > 0 {
		report.BenchmarkComparison = indicators.BenchmarkComparison(nav.PctChange(), benchmarkReturns, s.rf)
	}
	report.StaleTickers = stale

	s.events.Emit(events.AnalysisComplete, "analysis", map[string]any{"portfolio_id": portfolioID})
	return report, nil
}
