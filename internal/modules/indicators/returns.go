// Package indicators is a library of pure portfolio performance and risk
// metrics. Functions take time series, return slices or maps and hold no
// state; degenerate inputs (empty series, zero denominators) yield defined
// sentinels instead of NaN.
package indicators

import (
	"math"
	"sort"
	"time"

	"github.com/quantfolio/quantfolio/internal/modules/engine"
	"github.com/quantfolio/quantfolio/pkg/formulas"
	"github.com/quantfolio/quantfolio/pkg/timeseries"
)

// AnnualizedReturn scales the mean daily return by trading days per year.
func AnnualizedReturn(returns *timeseries.Series) float64 {
	if returns.Empty() {
		return 0
	}
	return formulas.Mean(returns.Values()) * formulas.TradingDaysPerYear
}

// TotalReturn is the simple growth of the series from first to last point.
func TotalReturn(nav *timeseries.Series) float64 {
	if nav.Len() < 2 {
		return 0
	}
	_, first := nav.First()
	_, last := nav.Last()
	if first == 0 {
		return 0
	}
	return last/first - 1
}

// CAGR is the compound annual growth rate over the calendar span of the
// series, using 365-day years.
func CAGR(nav *timeseries.Series) float64 {
	if nav.Len() < 2 {
		return 0
	}
	firstDate, first := nav.First()
	lastDate, last := nav.Last()
	days := firstDate.DaysBetween(lastDate)
	if days <= 0 || first <= 0 || last <= 0 {
		return 0
	}
	years := float64(days) / 365.0
	return math.Pow(last/first, 1.0/years) - 1
}

// YTDReturn is the growth since the first observation of the latest year.
// It needs at least two points within that year.
func YTDReturn(nav *timeseries.Series) float64 {
	if nav.Empty() {
		return 0
	}
	lastDate, _ := nav.Last()
	return periodReturn(nav, func(d timeseries.Date) bool {
		return d.Year() == lastDate.Year()
	})
}

// MTDReturn is the growth since the first observation of the latest month.
func MTDReturn(nav *timeseries.Series) float64 {
	if nav.Empty() {
		return 0
	}
	lastDate, _ := nav.Last()
	return periodReturn(nav, func(d timeseries.Date) bool {
		return d.Year() == lastDate.Year() && d.Month() == lastDate.Month()
	})
}

func periodReturn(nav *timeseries.Series, in func(timeseries.Date) bool) float64 {
	var vals []float64
	for i := 0; i < nav.Len(); i++ {
		if in(nav.Date(i)) {
			vals = append(vals, nav.Value(i))
		}
	}
	if len(vals) < 2 || vals[0] == 0 {
		return 0
	}
	return vals[len(vals)-1]/vals[0] - 1
}

// MonthlyReturns compounds daily returns into one return per calendar month,
// keyed "YYYY-MM" in chronological order.
func MonthlyReturns(returns *timeseries.Series) map[string]float64 {
	if returns.Empty() {
		return map[string]float64{}
	}
	out := make(map[string]float64)
	for i := 0; i < returns.Len(); i++ {
		key := returns.Date(i).Time().Format("2006-01")
		growth, ok := out[key]
		if !ok {
			growth = 1
		}
		out[key] = growth * (1 + returns.Value(i))
	}
	for key, growth := range out {
		out[key] = growth - 1
	}
	return out
}

// RealizedPnL matches sells against buys FIFO per symbol and sums the
// realized profit, with sell fees prorated across matched lots.
func RealizedPnL(transactions []engine.Transaction) float64 {
	total := 0.0
	for _, trade := range ClosedTrades(transactions) {
		total += trade.PnL
	}
	return total
}

// UnrealizedPnL is the mark-to-market value of open holdings.
func UnrealizedPnL(holdings, prices map[string]float64) float64 {
	total := 0.0
	for sym, qty := range holdings {
		if price, ok := prices[sym]; ok && qty != 0 {
			total += qty * price
		}
	}
	return total
}

// ClosedTrade is one FIFO-matched buy/sell pairing.
type ClosedTrade struct {
	Symbol    string    `json:"symbol"`
	BuyDate   time.Time `json:"buy_date"`
	SellDate  time.Time `json:"sell_date"`
	Quantity  float64   `json:"quantity"`
	BuyPrice  float64   `json:"buy_price"`
	SellPrice float64   `json:"sell_price"`
	PnL       float64   `json:"pnl"`
	ReturnPct float64   `json:"return_pct"`
}

// ClosedTrades reconstructs completed round trips FIFO per symbol. Buy and
// sell fees are prorated by the matched fraction of each lot.
func ClosedTrades(transactions []engine.Transaction) []ClosedTrade {
	type lot struct {
		date  time.Time
		qty   float64
		price float64
		fee   float64
		orig  float64
	}
	open := make(map[string][]lot)

	var trades []ClosedTrade
	for _, t := range transactions {
		side, err := engine.ParseSide(string(t.Side))
		if err != nil {
			continue
		}
		fee := t.Fee
		if math.IsNaN(fee) {
			fee = 0
		}
		switch side {
		case engine.SideBuy:
			open[t.Symbol] = append(open[t.Symbol], lot{
				date: t.Datetime, qty: t.Quantity, price: t.Price, fee: fee, orig: t.Quantity,
			})
		case engine.SideSell:
			remaining := t.Quantity
			for remaining > 0 && len(open[t.Symbol]) > 0 {
				l := &open[t.Symbol][0]
				matched := math.Min(remaining, l.qty)

				pnl := matched*(t.Price-l.price) - l.fee*(matched/l.orig) - fee*(matched/t.Quantity)
				trades = append(trades, ClosedTrade{
					Symbol:    t.Symbol,
					BuyDate:   l.date,
					SellDate:  t.Datetime,
					Quantity:  matched,
					BuyPrice:  l.price,
					SellPrice: t.Price,
					PnL:       pnl,
					ReturnPct: t.Price/l.price - 1,
				})

				l.qty -= matched
				remaining -= matched
				if l.qty <= 0 {
					open[t.Symbol] = open[t.Symbol][1:]
				}
			}
		}
	}
	return trades
}

// CashFlow is an external deposit (positive) or withdrawal (negative).
type CashFlow struct {
	Date   timeseries.Date `json:"date"`
	Amount float64         `json:"amount"`
}

// TransactionCashFlows extracts external flows from the transaction log:
// deposits positive, withdrawals negative.
func TransactionCashFlows(transactions []engine.Transaction) []CashFlow {
	var flows []CashFlow
	for _, t := range transactions {
		side, err := engine.ParseSide(string(t.Side))
		if err != nil {
			continue
		}
		switch side {
		case engine.SideDeposit:
			flows = append(flows, CashFlow{Date: t.Date(), Amount: t.Quantity})
		case engine.SideWithdraw:
			flows = append(flows, CashFlow{Date: t.Date(), Amount: -t.Quantity})
		}
	}
	return flows
}

// TWR computes the time-weighted return by chaining sub-period growth
// between external cash flows. With no flows it degrades to CAGR.
func TWR(nav *timeseries.Series, cashflows []CashFlow) float64 {
	if nav.Empty() {
		return 0
	}
	if len(cashflows) == 0 {
		return CAGR(nav)
	}

	flows := make([]CashFlow, len(cashflows))
	copy(flows, cashflows)
	sort.Slice(flows, func(i, j int) bool { return flows[i].Date.Before(flows[j].Date) })

	startDate, startNAV := nav.First()
	lastDate, endNAV := nav.Last()

	growth := 1.0
	for _, cf := range flows {
		if !cf.Date.After(startDate) || cf.Date.After(lastDate) {
			continue
		}
		_, periodEnd, ok := nav.AtOrBefore(cf.Date)
		if !ok || startNAV == 0 {
			continue
		}
		growth *= periodEnd / startNAV
		startNAV = periodEnd + cf.Amount
		startDate = cf.Date
	}
	if startNAV == 0 {
		return 0
	}
	growth *= endNAV / startNAV
	return growth - 1
}

// IRR solves the periodic internal rate of return of an ordered cash flow
// amount sequence with Newton's method, returning 0 when it fails to
// converge.
func IRR(amounts []float64) float64 {
	if len(amounts) < 2 {
		return 0
	}

	rate := 0.1
	for iter := 0; iter < 100; iter++ {
		npv, deriv := 0.0, 0.0
		for i, amt := range amounts {
			factor := math.Pow(1+rate, float64(i))
			npv += amt / factor
			if i > 0 {
				deriv -= float64(i) * amt / (factor * (1 + rate))
			}
		}
		if math.Abs(deriv) < 1e-12 {
			return 0
		}
		next := rate - npv/deriv
		if math.IsNaN(next) || math.IsInf(next, 0) || next <= -1 {
			return 0
		}
		if math.Abs(next-rate) < 1e-9 {
			return next
		}
		rate = next
	}
	return 0
}
