package engine

import (
	"context"

	"github.com/quantfolio/quantfolio/pkg/timeseries"
)

// BaseData is the derived bundle the indicator layer consumes: NAV returns,
// current holdings with their latest prices and weights, and the joint price
// history frame. It is computed once per engine instance and invalidated
// together with the NAV memo.
type BaseData struct {
	NAV          *timeseries.Series
	Returns      *timeseries.Series
	Holdings     map[string]float64
	Prices       map[string]float64
	Weights      map[string]float64
	PriceHistory *timeseries.Frame
}

// BaseData computes (or returns the memoized) indicator input bundle.
func (e *Engine) BaseData(ctx context.Context) (*BaseData, error) {
	if e.baseData != nil {
		return e.baseData, nil
	}

	nav, err := e.CalculateNAVHistory(ctx)
	if err != nil {
		return nil, err
	}

	holdings := make(map[string]float64)
	for sym, qty := range e.finalHoldings {
		if qty != 0 {
			holdings[sym] = qty
		}
	}

	series := make(map[string]*timeseries.Series, len(holdings))
	prices := make(map[string]float64, len(holdings))
	for sym := range holdings {
		s, ok := e.priceCache[sym]
		if !ok || s.Empty() {
			continue
		}
		series[sym] = s
		_, prices[sym] = s.Last()
	}

	weights := make(map[string]float64, len(holdings))
	total := 0.0
	for sym, qty := range holdings {
		total += qty * prices[sym]
	}
	if total != 0 {
		for sym, qty := range holdings {
			weights[sym] = qty * prices[sym] / total
		}
	}

	frame := timeseries.NewFrame(series)
	frame.ForwardFill()

	e.baseData = &BaseData{
		NAV:          nav,
		Returns:      nav.PctChange(),
		Holdings:     holdings,
		Prices:       prices,
		Weights:      weights,
		PriceHistory: frame,
	}
	return e.baseData, nil
}
