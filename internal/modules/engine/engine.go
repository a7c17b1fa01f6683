// Package engine reconstructs a portfolio's Net Asset Value day by day from
// either a point-in-time position snapshot or a chronological transaction
// ledger, enriched with bond cash flows and stale-ticker policy decisions.
package engine

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/internal/modules/bonds"
	"github.com/quantfolio/quantfolio/pkg/timeseries"
)

// PriceProvider supplies daily close series per symbol. An empty series means
// "no data", not an error.
type PriceProvider interface {
	GetPriceHistory(ctx context.Context, symbol string) (*timeseries.Series, error)
}

// Engine is the per-request computation context. It owns request-scoped
// caches for price history, the computed NAV series and the derived base
// data bundle. It is not safe to share across concurrent requests.
type Engine struct {
	mode         Mode
	transactions []Transaction
	positions    []Position
	bonds        []*bonds.Position
	provider     PriceProvider
	log          zerolog.Logger

	today    timeseries.Date
	handling map[string]StaleTickerAction

	priceCache map[string]*timeseries.Series

	// Memoized outputs, populated by CalculateNAVHistory.
	navComputed       bool
	nav               *timeseries.Series
	cashHistory       *timeseries.Series
	couponHistory     *timeseries.Series
	maturityCash      *timeseries.Series
	failedTickers     []string
	suggestedDeposit  float64
	liquidationEvents []LiquidationEvent
	finalHoldings     map[string]float64

	baseData *BaseData
}

// New constructs an engine for one valuation request. Transactions are
// sorted ascending by datetime regardless of input order.
func New(mode Mode, transactions []Transaction, positions []Position, bondPositions []*bonds.Position, provider PriceProvider, log zerolog.Logger) *Engine {
	txns := make([]Transaction, len(transactions))
	copy(txns, transactions)
	sort.SliceStable(txns, func(i, j int) bool { return txns[i].Datetime.Before(txns[j].Datetime) })

	return &Engine{
		mode:         mode,
		transactions: txns,
		positions:    positions,
		bonds:        bondPositions,
		provider:     provider,
		log:          log.With().Str("component", "engine").Logger(),
		today:        timeseries.Today(),
		handling:     make(map[string]StaleTickerAction),
		priceCache:   make(map[string]*timeseries.Series),
	}
}

// SetPriceCache injects pre-fetched price histories, bypassing the provider
// entirely for those symbols. Callers use this to warm the engine from a
// parallel fetch.
func (e *Engine) SetPriceCache(prices map[string]*timeseries.Series) {
	for sym, s := range prices {
		e.priceCache[sym] = s
	}
}

// SetStaleTickerHandling applies user decisions for stale symbols and
// invalidates the memoized NAV and base data, since liquidation/freeze
// decisions change the replay outcome.
func (e *Engine) SetStaleTickerHandling(handling []StaleTickerHandling) {
	e.handling = make(map[string]StaleTickerAction, len(handling))
	for _, h := range handling {
		e.handling[h.Symbol] = h.Action
	}
	e.invalidate()
}

func (e *Engine) invalidate() {
	e.navComputed = false
	e.nav = nil
	e.cashHistory = nil
	e.couponHistory = nil
	e.maturityCash = nil
	e.failedTickers = nil
	e.suggestedDeposit = 0
	e.liquidationEvents = nil
	e.finalHoldings = nil
	e.baseData = nil
}

// CalculateNAVHistory returns the NAV time series, memoized per engine
// instance. Side-channel outputs (cash history, bond series, failed tickers,
// liquidation events, suggested initial deposit) are populated as a
// byproduct and readable via their accessors afterwards.
func (e *Engine) CalculateNAVHistory(ctx context.Context) (*timeseries.Series, error) {
	if e.navComputed {
		return e.nav, nil
	}

	e.invalidate()

	var err error
	switch e.mode {
	case ModeSnapshot:
		err = e.computeSnapshotNAV(ctx)
	case ModeTransaction:
		err = e.computeTransactionNAV(ctx)
	default:
		e.nav = timeseries.NewSeries(0)
	}
	if err != nil {
		return nil, err
	}

	if e.nav == nil {
		e.nav = timeseries.NewSeries(0)
	}
	if e.cashHistory == nil {
		e.cashHistory = timeseries.NewSeries(0)
	}
	if e.couponHistory == nil {
		e.couponHistory = timeseries.NewSeries(0)
	}
	if e.maturityCash == nil {
		e.maturityCash = timeseries.NewSeries(0)
	}

	e.navComputed = true
	e.log.Debug().
		Int("points", e.nav.Len()).
		Strs("failed_tickers", e.failedTickers).
		Msg("NAV history computed")
	return e.nav, nil
}

// CashHistory returns the cash balance series from the last NAV computation.
func (e *Engine) CashHistory() *timeseries.Series { return e.cashHistory }

// BondCouponHistory returns cumulative coupon income over time.
func (e *Engine) BondCouponHistory() *timeseries.Series { return e.couponHistory }

// BondMaturityCash returns cumulative maturity redemptions over time.
func (e *Engine) BondMaturityCash() *timeseries.Series { return e.maturityCash }

// FailedTickers lists symbols with no resolvable price data. They are
// excluded from valuation, not treated as errors.
func (e *Engine) FailedTickers() []string { return e.failedTickers }

// SuggestedInitialDeposit returns the inferred starting cash when no deposit
// precedes the first trade, 0 otherwise.
func (e *Engine) SuggestedInitialDeposit() float64 { return e.suggestedDeposit }

// LiquidationEvents lists the one-shot stale-ticker liquidations applied
// during the last NAV computation.
func (e *Engine) LiquidationEvents() []LiquidationEvent { return e.liquidationEvents }

// DetectStaleTickers reports held symbols whose price history ends before
// the latest available date among all portfolio symbols. The caller decides
// what to do with them via SetStaleTickerHandling; without a decision the
// engine forward-fills stale symbols as if current.
func (e *Engine) DetectStaleTickers(ctx context.Context) ([]StaleTicker, error) {
	holdings := e.currentQuantities()

	var maxLast timeseries.Date
	lastBySymbol := make(map[string]timeseries.Date)
	priceBySymbol := make(map[string]float64)
	for sym := range holdings {
		s := e.priceHistory(ctx, sym)
		if s.Empty() {
			continue
		}
		last, price := s.Last()
		lastBySymbol[sym] = last
		priceBySymbol[sym] = price
		maxLast = timeseries.MaxDate(maxLast, last)
	}

	var stale []StaleTicker
	for sym, last := range lastBySymbol {
		if !last.Before(maxLast) {
			continue
		}
		qty := holdings[sym]
		if qty == 0 {
			continue
		}
		stale = append(stale, StaleTicker{
			Symbol:      sym,
			LastDate:    last,
			LastPrice:   priceBySymbol[sym],
			Quantity:    qty,
			MarketValue: priceBySymbol[sym] * qty,
		})
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].Symbol < stale[j].Symbol })
	return stale, nil
}

// currentQuantities returns symbol -> net quantity as of now.
func (e *Engine) currentQuantities() map[string]float64 {
	holdings := make(map[string]float64)
	if e.mode == ModeSnapshot {
		for _, p := range e.positions {
			holdings[p.Symbol] += p.Quantity
		}
		return holdings
	}
	for _, t := range e.transactions {
		switch t.Side {
		case SideBuy:
			holdings[t.Symbol] += t.Quantity
		case SideSell:
			holdings[t.Symbol] -= t.Quantity
		}
	}
	for sym, qty := range holdings {
		if qty == 0 {
			delete(holdings, sym)
		}
	}
	return holdings
}

// priceHistory returns the cached close series for a symbol, fetching it
// from the provider on first use. Fetch failures are logged and treated as
// missing data.
func (e *Engine) priceHistory(ctx context.Context, symbol string) *timeseries.Series {
	if s, ok := e.priceCache[symbol]; ok {
		if s == nil {
			return timeseries.NewSeries(0)
		}
		return s
	}

	s, err := e.provider.GetPriceHistory(ctx, symbol)
	if err != nil {
		e.log.Warn().Err(err).Str("symbol", symbol).Msg("price history fetch failed")
		s = timeseries.NewSeries(0)
	}
	if s == nil {
		s = timeseries.NewSeries(0)
	}
	e.priceCache[symbol] = s
	return s
}

// action returns the stale-ticker decision for a symbol, if any.
func (e *Engine) action(symbol string) (StaleTickerAction, bool) {
	a, ok := e.handling[symbol]
	return a, ok
}
