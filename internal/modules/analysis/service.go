// Package analysis orchestrates the valuation pipeline: resolve symbols,
// load prices, reconstruct NAV and run the indicator catalog, emitting
// progress events for the streaming endpoint along the way.
package analysis

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/quantfolio/quantfolio/internal/events"
	"github.com/quantfolio/quantfolio/internal/modules/benchmarks"
	"github.com/quantfolio/quantfolio/internal/modules/engine"
	"github.com/quantfolio/quantfolio/internal/modules/indicators"
	"github.com/quantfolio/quantfolio/internal/modules/portfolio"
	"github.com/quantfolio/quantfolio/internal/modules/prices"
	"github.com/quantfolio/quantfolio/internal/modules/universe"
	"github.com/quantfolio/quantfolio/pkg/timeseries"
)

// Service wires the per-request engine to the shared price, benchmark and
// profile services.
type Service struct {
	portfolios *portfolio.Service
	prices     *prices.Service
	benchmarks *benchmarks.Service
	resolver   *universe.Resolver
	events     *events.Manager
	rf         float64
	log        zerolog.Logger
}

// NewService creates the analysis orchestrator.
func NewService(
	portfolios *portfolio.Service,
	priceService *prices.Service,
	benchmarkService *benchmarks.Service,
	resolver *universe.Resolver,
	eventManager *events.Manager,
	riskFreeRate float64,
	log zerolog.Logger,
) *Service {
	return &Service{
		portfolios: portfolios,
		prices:     priceService,
		benchmarks: benchmarkService,
		resolver:   resolver,
		events:     eventManager,
		rf:         riskFreeRate,
		log:        log.With().Str("component", "analysis").Logger(),
	}
}

// NAVResult is the valuation payload: the NAV series plus the replay's
// side outputs.
type NAVResult struct {
	NAV                     seriesPayload             `json:"nav"`
	Cash                    seriesPayload             `json:"cash,omitempty"`
	BondCoupons             seriesPayload             `json:"bond_coupons,omitempty"`
	BondMaturityCash        seriesPayload             `json:"bond_maturity_cash,omitempty"`
	FailedTickers           []string                  `json:"failed_tickers,omitempty"`
	SuggestedInitialDeposit float64                   `json:"suggested_initial_deposit,omitempty"`
	LiquidationEvents       []engine.LiquidationEvent `json:"liquidation_events,omitempty"`
}

type seriesPayload struct {
	Dates  []timeseries.Date `json:"dates"`
	Values []float64         `json:"values"`
}

func toPayload(s *timeseries.Series) seriesPayload {
	if s == nil {
		return seriesPayload{}
	}
	return seriesPayload{Dates: s.Dates(), Values: s.Values()}
}

// buildEngine loads a portfolio's inputs, normalizes its tickers and
// constructs a fresh engine with the stored stale-ticker policies applied.
func (s *Service) buildEngine(portfolioID string) (*engine.Engine, *portfolio.Inputs, error) {
	in, err := s.portfolios.Inputs(portfolioID)
	if err != nil {
		return nil, nil, err
	}

	for i := range in.Transactions {
		in.Transactions[i].Symbol = s.resolver.Resolve(in.Transactions[i].Symbol)
	}
	for i := range in.Positions {
		in.Positions[i].Symbol = s.resolver.Resolve(in.Positions[i].Symbol)
	}

	// An explicit initial deposit becomes the ledger's first cash event, so
	// the replay never has to infer one.
	if in.Portfolio.Mode == engine.ModeTransaction &&
		in.Portfolio.InitialDeposit != nil && *in.Portfolio.InitialDeposit > 0 &&
		len(in.Transactions) > 0 {
		in.Transactions = append([]engine.Transaction{{
			Datetime: in.Transactions[0].Datetime,
			Side:     engine.SideDeposit,
			Quantity: *in.Portfolio.InitialDeposit,
		}}, in.Transactions...)
	}

	eng := engine.New(in.Portfolio.Mode, in.Transactions, in.Positions, in.Bonds, s.prices, s.log)
	if len(in.StaleHandling) > 0 {
		eng.SetStaleTickerHandling(in.StaleHandling)
	}
	return eng, in, nil
}

// warmEngine prefetches price histories for the portfolio's symbols and
// injects them, so the replay itself does no network I/O.
func (s *Service) warmEngine(ctx context.Context, eng *engine.Engine, symbols []string) {
	if len(symbols) == 0 {
		return
	}
	eng.SetPriceCache(s.prices.Prefetch(ctx, symbols))
}

// NAV reconstructs the portfolio's NAV history.
func (s *Service) NAV(ctx context.Context, portfolioID string) (*NAVResult, error) {
	eng, in, err := s.buildEngine(portfolioID)
	if err != nil {
		return nil, err
	}
	s.warmEngine(ctx, eng, in.Symbols())

	nav, err := eng.CalculateNAVHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("calculate NAV: %w", err)
	}

	return &NAVResult{
		NAV:                     toPayload(nav),
		Cash:                    toPayload(eng.CashHistory()),
		BondCoupons:             toPayload(eng.BondCouponHistory()),
		BondMaturityCash:        toPayload(eng.BondMaturityCash()),
		FailedTickers:           eng.FailedTickers(),
		SuggestedInitialDeposit: eng.SuggestedInitialDeposit(),
		LiquidationEvents:       eng.LiquidationEvents(),
	}, nil
}

// BasicIndicators computes the five headline indicators.
func (s *Service) BasicIndicators(ctx context.Context, portfolioID string) (map[string]float64, error) {
	eng, in, err := s.buildEngine(portfolioID)
	if err != nil {
		return nil, err
	}
	s.warmEngine(ctx, eng, in.Symbols())

	nav, err := eng.CalculateNAVHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("calculate NAV: %w", err)
	}
	return indicators.BasicIndicators(nav, s.rf), nil
}

// AllIndicators computes the full indicator catalog.
func (s *Service) AllIndicators(ctx context.Context, portfolioID string) (map[string]any, error) {
	eng, in, err := s.buildEngine(portfolioID)
	if err != nil {
		return nil, err
	}
	s.warmEngine(ctx, eng, in.Symbols())

	base, err := eng.BaseData(ctx)
	if err != nil {
		return nil, fmt.Errorf("base data: %w", err)
	}

	sectors, industries := s.resolver.GroupMaps(ctx, in.Symbols())
	return indicators.AllIndicators(indicators.Input{
		NAV:          base.NAV,
		Transactions: in.Transactions,
		Holdings:     base.Holdings,
		Prices:       base.Prices,
		PriceHistory: base.PriceHistory,
		Weights:      base.Weights,
		SectorMap:    sectors,
		IndustryMap:  industries,
		RiskFreeRate: s.rf,
	}), nil
}

// Technicals evaluates the per-symbol technical indicator catalog over each
// held symbol's price history.
func (s *Service) Technicals(ctx context.Context, portfolioID string) (map[string]indicators.TechnicalSnapshot, error) {
	eng, in, err := s.buildEngine(portfolioID)
	if err != nil {
		return nil, err
	}
	s.warmEngine(ctx, eng, in.Symbols())

	base, err := eng.BaseData(ctx)
	if err != nil {
		return nil, fmt.Errorf("base data: %w", err)
	}

	out := make(map[string]indicators.TechnicalSnapshot)
	for _, symbol := range base.PriceHistory.Symbols() {
		out[symbol] = indicators.ComputeTechnicalSnapshot(base.PriceHistory.Column(symbol))
	}
	return out, nil
}

// StaleTickers detects symbols whose price history ends early.
func (s *Service) StaleTickers(ctx context.Context, portfolioID string) ([]engine.StaleTicker, error) {
	eng, in, err := s.buildEngine(portfolioID)
	if err != nil {
		return nil, err
	}
	s.warmEngine(ctx, eng, in.Symbols())
	return eng.DetectStaleTickers(ctx)
}

// ResolveStaleTickers stores the user's stale-ticker decisions.
func (s *Service) ResolveStaleTickers(portfolioID string, handling []engine.StaleTickerHandling) error {
	for i := range handling {
		handling[i].Symbol = s.resolver.Resolve(handling[i].Symbol)
	}
	return s.portfolios.SetStalePolicies(portfolioID, handling)
}

// Compare benchmarks the portfolio's returns against the requested (or
// whole catalog of) benchmark symbols.
func (s *Service) Compare(ctx context.Context, portfolioID string, benchmarkSymbols []string) (map[string]indicators.BenchmarkMetrics, error) {
	eng, in, err := s.buildEngine(portfolioID)
	if err != nil {
		return nil, err
	}

	var benchmarkReturns map[string]*timeseries.Series
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.warmEngine(gctx, eng, in.Symbols())
		return nil
	})
	g.Go(func() error {
		var err error
		benchmarkReturns, err = s.benchmarks.ReturnSeries(gctx, benchmarkSymbols)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	nav, err := eng.CalculateNAVHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("calculate NAV: %w", err)
	}
	return indicators.BenchmarkComparison(nav.PctChange(), benchmarkReturns, s.rf), nil
}

// Frontier runs the efficient-frontier analysis over the portfolio's
// holdings. Returns nil when the history cannot support one.
func (s *Service) Frontier(ctx context.Context, portfolioID string, allowShort bool, numPoints int) (*indicators.FrontierAnalysis, error) {
	eng, in, err := s.buildEngine(portfolioID)
	if err != nil {
		return nil, err
	}
	s.warmEngine(ctx, eng, in.Symbols())

	base, err := eng.BaseData(ctx)
	if err != nil {
		return nil, fmt.Errorf("base data: %w", err)
	}
	if base.PriceHistory == nil || base.PriceHistory.Empty() {
		return nil, nil
	}

	symbols, rows := base.PriceHistory.Returns()
	return indicators.EfficientFrontierAnalysis(symbols, rows, base.Weights, s.rf, allowShort, numPoints), nil
}
