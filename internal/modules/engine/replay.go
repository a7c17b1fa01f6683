package engine

import (
	"context"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/quantfolio/quantfolio/internal/modules/bonds"
	"github.com/quantfolio/quantfolio/pkg/timeseries"
)

// computeTransactionNAV replays the ledger day by day over a unified
// calendar of price dates, transaction dates and bond event dates, producing
// the NAV, cash and bond cash-flow series in one pass.
func (e *Engine) computeTransactionNAV(ctx context.Context) error {
	if len(e.transactions) == 0 && len(e.bonds) == 0 {
		e.nav = timeseries.NewSeries(0)
		return nil
	}

	series := e.loadPrices(ctx, e.tradedSymbols())
	if len(series) == 0 && len(e.bonds) == 0 {
		e.nav = timeseries.NewSeries(0)
		return nil
	}

	start := e.startDate()

	// Liquidation info comes from the unfilled per-symbol series.
	type liquidation struct {
		last  timeseries.Date
		price float64
	}
	liquidations := make(map[string]liquidation)
	for sym, a := range e.handling {
		if a != ActionLiquidate {
			continue
		}
		if s, ok := series[sym]; ok && !s.Empty() {
			last, price := s.Last()
			liquidations[sym] = liquidation{last: last, price: price}
		}
	}

	frame := timeseries.NewFrame(series)
	frame.ForwardFill()
	frame.From(start)

	initialCash, counted := e.inferInitialCash()
	calendar := e.buildCalendar(frame, start)
	if len(calendar) == 0 {
		e.nav = timeseries.NewSeries(0)
		return nil
	}

	txnsByDate := make(map[timeseries.Date][]int)
	for i, t := range e.transactions {
		d := t.Date()
		txnsByDate[d] = append(txnsByDate[d], i)
	}

	couponsByDate := make(map[timeseries.Date]float64)
	for _, b := range e.bonds {
		for _, cp := range bonds.CouponPayments(b, start, e.today) {
			couponsByDate[cp.Date] += cp.Amount
		}
	}

	holdings := make(map[string]float64)
	cash := initialCash
	couponCum, maturityCum := 0.0, 0.0
	bondPurchased := make([]bool, len(e.bonds))
	bondMatured := make([]bool, len(e.bonds))
	liquidated := make(map[string]bool)

	nav := timeseries.NewSeries(len(calendar))
	cashSeries := timeseries.NewSeries(len(calendar))
	couponSeries := timeseries.NewSeries(len(calendar))
	maturitySeries := timeseries.NewSeries(len(calendar))

	for _, d := range calendar {
		for _, i := range txnsByDate[d] {
			t := e.transactions[i]
			fee := t.Fee
			if math.IsNaN(fee) {
				fee = 0
			}
			side, err := ParseSide(string(t.Side))
			if err != nil {
				e.log.Warn().Str("side", string(t.Side)).Msg("skipping transaction with unknown side")
				continue
			}
			switch side {
			case SideBuy:
				holdings[t.Symbol] += t.Quantity
				cash -= t.Quantity*t.Price + fee
			case SideSell:
				holdings[t.Symbol] -= t.Quantity
				cash += t.Quantity*t.Price - fee
			case SideDeposit:
				if !counted[i] {
					cash += t.Quantity
				}
			case SideWithdraw:
				cash -= t.Quantity
			}
		}

		// One-shot liquidations fire the first day strictly after the
		// symbol's last valid price date.
		for sym, liq := range liquidations {
			if liquidated[sym] || !d.After(liq.last) {
				continue
			}
			if qty := holdings[sym]; qty != 0 {
				amount := liq.price * qty
				cash += amount
				e.liquidationEvents = append(e.liquidationEvents, LiquidationEvent{
					Date:       d,
					Symbol:     sym,
					Price:      liq.price,
					Quantity:   qty,
					CashAmount: amount,
				})
			}
			holdings[sym] = 0
			liquidated[sym] = true
		}

		for bi, b := range e.bonds {
			if !bondPurchased[bi] && !d.Before(b.PurchaseDate) {
				cash -= bonds.CostBasis(b)
				bondPurchased[bi] = true
			}
			if bondPurchased[bi] && !bondMatured[bi] && !d.Before(b.MaturityDate) {
				redemption := b.FaceValue * b.PurchaseQuantity
				cash += redemption
				maturityCum += redemption
				bondMatured[bi] = true
			}
		}
		if amount, ok := couponsByDate[d]; ok {
			cash += amount
			couponCum += amount
		}

		// The calendar includes transaction and bond event dates with no
		// price row (weekends, holidays), so holdings are valued at the
		// last close at or before the date.
		value := cash
		for sym, qty := range holdings {
			if qty == 0 {
				continue
			}
			if price, ok := frame.AtOrBefore(d, sym); ok {
				value += qty * price
			}
		}
		for bi, b := range e.bonds {
			if bondPurchased[bi] && !bondMatured[bi] {
				value += bonds.Value(b, d, nil)
			}
		}

		nav.Append(d, value)
		cashSeries.Append(d, cash)
		couponSeries.Append(d, couponCum)
		maturitySeries.Append(d, maturityCum)
	}

	sort.Slice(e.liquidationEvents, func(i, j int) bool {
		if !e.liquidationEvents[i].Date.Equal(e.liquidationEvents[j].Date) {
			return e.liquidationEvents[i].Date.Before(e.liquidationEvents[j].Date)
		}
		return e.liquidationEvents[i].Symbol < e.liquidationEvents[j].Symbol
	})

	e.nav = nav
	e.cashHistory = cashSeries
	e.couponHistory = couponSeries
	e.maturityCash = maturitySeries
	e.finalHoldings = holdings
	return nil
}

// tradedSymbols returns the distinct BUY/SELL symbols, excluding any the
// user chose to remove.
func (e *Engine) tradedSymbols() []string {
	var symbols []string
	for _, t := range e.transactions {
		side, err := ParseSide(string(t.Side))
		if err != nil || (side != SideBuy && side != SideSell) {
			continue
		}
		if a, ok := e.action(t.Symbol); ok && a == ActionRemove {
			continue
		}
		if !slices.Contains(symbols, t.Symbol) {
			symbols = append(symbols, t.Symbol)
		}
	}
	sort.Strings(symbols)
	return symbols
}

// startDate is the earliest transaction or bond purchase date.
func (e *Engine) startDate() timeseries.Date {
	var start timeseries.Date
	if len(e.transactions) > 0 {
		start = e.transactions[0].Date()
	}
	for _, b := range e.bonds {
		if start.IsZero() {
			start = b.PurchaseDate
		} else {
			start = timeseries.MinDate(start, b.PurchaseDate)
		}
	}
	return start
}

// buildCalendar unions price dates, transaction dates and bond event dates,
// clipped to [start, today]. NAV stays defined on transaction-only days even
// when markets are closed, and bond cash events land exactly on schedule.
func (e *Engine) buildCalendar(frame *timeseries.Frame, start timeseries.Date) []timeseries.Date {
	dateSet := make(map[timeseries.Date]struct{})
	add := func(d timeseries.Date) {
		if !d.Before(start) && !d.After(e.today) {
			dateSet[d] = struct{}{}
		}
	}

	for _, d := range frame.Dates() {
		add(d)
	}
	for _, t := range e.transactions {
		add(t.Date())
	}
	for _, b := range e.bonds {
		add(b.PurchaseDate)
		add(b.MaturityDate)
		for _, cp := range bonds.CouponPayments(b, start, e.today) {
			add(cp.Date)
		}
	}

	calendar := make([]timeseries.Date, 0, len(dateSet))
	for d := range dateSet {
		calendar = append(calendar, d)
	}
	slices.SortFunc(calendar, timeseries.Date.Compare)
	return calendar
}

// inferInitialCash determines the starting cash balance. Deposits at or
// before the first trade (floored to the minute) are folded into the initial
// balance and skipped during replay. When no deposit precedes trading, a
// starting balance large enough to keep the running cash non-negative is
// inferred and surfaced as the suggested initial deposit.
func (e *Engine) inferInitialCash() (float64, map[int]bool) {
	counted := make(map[int]bool)

	var cutoff time.Time
	hasTrade := false
	for _, t := range e.transactions {
		side, err := ParseSide(string(t.Side))
		if err != nil {
			continue
		}
		if side == SideBuy || side == SideSell {
			cutoff = t.Datetime.Truncate(time.Minute)
			hasTrade = true
			break
		}
	}
	if !hasTrade {
		return 0, counted
	}

	initial := 0.0
	for i, t := range e.transactions {
		if side, err := ParseSide(string(t.Side)); err != nil || side != SideDeposit {
			continue
		}
		if !t.Datetime.Truncate(time.Minute).After(cutoff) {
			initial += t.Quantity
			counted[i] = true
		}
	}
	if initial > 0 {
		return initial, counted
	}

	// Underfunded history: replay the running cash balance with no deposit
	// and size the suggestion off its minimum.
	cash, minCash := 0.0, 0.0
	for _, t := range e.transactions {
		fee := t.Fee
		if math.IsNaN(fee) {
			fee = 0
		}
		side, err := ParseSide(string(t.Side))
		if err != nil {
			continue
		}
		switch side {
		case SideBuy:
			cash -= t.Quantity*t.Price + fee
		case SideSell:
			cash += t.Quantity*t.Price - fee
		case SideDeposit:
			cash += t.Quantity
		case SideWithdraw:
			cash -= t.Quantity
		}
		if cash < minCash {
			minCash = cash
		}
	}

	suggested := math.Abs(minCash)
	if suggested > 100 {
		suggested = math.Round(suggested/100) * 100
	} else {
		suggested = math.Round(suggested*100) / 100
	}
	e.suggestedDeposit = suggested
	return suggested, counted
}
