package engine

import (
	"context"
	"sort"

	"github.com/quantfolio/quantfolio/internal/modules/bonds"
	"github.com/quantfolio/quantfolio/pkg/timeseries"
)

// computeSnapshotNAV marks current positions to market over the joint price
// history. Holdings are assumed constant over the whole range.
func (e *Engine) computeSnapshotNAV(ctx context.Context) error {
	quantities := make(map[string]float64)
	for _, p := range e.positions {
		if a, ok := e.action(p.Symbol); ok && a == ActionRemove {
			continue
		}
		quantities[p.Symbol] += p.Quantity
	}

	series := e.loadPrices(ctx, symbolKeys(quantities))
	if len(series) == 0 && len(e.bonds) == 0 {
		e.nav = timeseries.NewSeries(0)
		return nil
	}

	// Liquidation bookkeeping reads each symbol's true last valid date and
	// price before any filling happens.
	type liquidation struct {
		last timeseries.Date
		cash float64
	}
	liquidations := make(map[string]liquidation)
	for sym, a := range e.handling {
		if a != ActionLiquidate {
			continue
		}
		s, ok := series[sym]
		if !ok || s.Empty() || quantities[sym] == 0 {
			continue
		}
		last, price := s.Last()
		qty := quantities[sym]
		liquidations[sym] = liquidation{last: last, cash: price * qty}
		e.liquidationEvents = append(e.liquidationEvents, LiquidationEvent{
			Date:       last,
			Symbol:     sym,
			Price:      price,
			Quantity:   qty,
			CashAmount: price * qty,
		})
	}
	sort.Slice(e.liquidationEvents, func(i, j int) bool {
		return e.liquidationEvents[i].Symbol < e.liquidationEvents[j].Symbol
	})

	frame := timeseries.NewFrame(series)
	frame.ForwardFill().BackFill().DropEmptyRows()

	dates := frame.Dates()
	if len(dates) == 0 {
		dates = e.bondOnlyCalendar()
	}
	if len(dates) == 0 {
		e.nav = timeseries.NewSeries(0)
		return nil
	}

	nav := timeseries.NewSeries(len(dates))
	for _, d := range dates {
		total := 0.0
		for sym, qty := range quantities {
			if qty == 0 {
				continue
			}
			if liq, ok := liquidations[sym]; ok && d.After(liq.last) {
				// Holding converted to cash as of its last valid price date.
				total += liq.cash
				continue
			}
			if price, ok := frame.At(d, sym); ok {
				total += qty * price
			}
		}
		for _, b := range e.bonds {
			total += bonds.Value(b, d, nil)
		}
		nav.Append(d, total)
	}

	e.nav = nav
	e.finalHoldings = quantities
	return nil
}

// bondOnlyCalendar builds a synthetic daily axis from the earliest bond
// purchase date to today, used when there are no priced equity positions.
func (e *Engine) bondOnlyCalendar() []timeseries.Date {
	if len(e.bonds) == 0 {
		return nil
	}
	start := e.bonds[0].PurchaseDate
	for _, b := range e.bonds[1:] {
		start = timeseries.MinDate(start, b.PurchaseDate)
	}
	var dates []timeseries.Date
	for d := start; !d.After(e.today); d = d.AddDays(1) {
		dates = append(dates, d)
	}
	return dates
}

// loadPrices fetches price histories for the given symbols, recording any
// with no data in failedTickers.
func (e *Engine) loadPrices(ctx context.Context, symbols []string) map[string]*timeseries.Series {
	series := make(map[string]*timeseries.Series)
	for _, sym := range symbols {
		if sym == "" || sym == "CASH" {
			continue
		}
		s := e.priceHistory(ctx, sym)
		if s.Empty() {
			e.failedTickers = append(e.failedTickers, sym)
			continue
		}
		series[sym] = s
	}
	sort.Strings(e.failedTickers)
	return series
}

func symbolKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
