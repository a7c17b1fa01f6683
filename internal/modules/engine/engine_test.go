package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/quantfolio/internal/modules/bonds"
	"github.com/quantfolio/quantfolio/pkg/timeseries"
)

type fakeProvider struct {
	data map[string]*timeseries.Series
}

func (f *fakeProvider) GetPriceHistory(_ context.Context, symbol string) (*timeseries.Series, error) {
	return f.data[symbol], nil
}

func date(s string) timeseries.Date { return timeseries.MustParseDate(s) }

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

// dailySeries builds a flat daily close series over [from, to].
func dailySeries(from, to string, price float64) *timeseries.Series {
	s := timeseries.NewSeries(0)
	for d := date(from); !d.After(date(to)); d = d.AddDays(1) {
		s.Append(d, price)
	}
	return s
}

func newTestEngine(mode Mode, txns []Transaction, positions []Position, bondPositions []*bonds.Position, prices map[string]*timeseries.Series, today string) *Engine {
	e := New(mode, txns, positions, bondPositions, &fakeProvider{data: prices}, zerolog.Nop())
	e.today = date(today)
	return e
}

func TestSnapshotNAVConstantPrice(t *testing.T) {
	prices := map[string]*timeseries.Series{
		"ACME": dailySeries("2024-01-01", "2024-01-10", 20),
	}
	e := newTestEngine(ModeSnapshot, nil, []Position{
		{AsOf: date("2024-01-10"), Symbol: "ACME", Quantity: 7},
	}, nil, prices, "2024-01-10")

	nav, err := e.CalculateNAVHistory(context.Background())
	require.NoError(t, err)
	require.Equal(t, 10, nav.Len())
	for _, v := range nav.Values() {
		assert.Equal(t, 140.0, v)
	}
}

func TestSnapshotEmptyWithoutPricesOrBonds(t *testing.T) {
	e := newTestEngine(ModeSnapshot, nil, []Position{
		{Symbol: "GHOST", Quantity: 5},
	}, nil, map[string]*timeseries.Series{}, "2024-01-10")

	nav, err := e.CalculateNAVHistory(context.Background())
	require.NoError(t, err)
	assert.True(t, nav.Empty())
	assert.Equal(t, []string{"GHOST"}, e.FailedTickers())
}

func TestTransactionReplayWorkedExample(t *testing.T) {
	// AAPL flat at 100 until June, then 150.
	aapl := dailySeries("2020-01-01", "2020-05-31", 100)
	for d := date("2020-06-01"); !d.After(date("2020-06-10")); d = d.AddDays(1) {
		aapl.Append(d, 150)
	}

	txns := []Transaction{
		{Datetime: at("2020-01-01 10:00"), Side: SideDeposit, Quantity: 10000},
		{Datetime: at("2020-01-02 10:00"), Symbol: "AAPL", Side: SideBuy, Quantity: 10, Price: 100, Fee: 1},
		{Datetime: at("2020-06-01 10:00"), Symbol: "AAPL", Side: SideSell, Quantity: 10, Price: 150, Fee: 1},
	}
	e := newTestEngine(ModeTransaction, txns, nil, nil, map[string]*timeseries.Series{"AAPL": aapl}, "2020-06-10")

	nav, err := e.CalculateNAVHistory(context.Background())
	require.NoError(t, err)
	require.False(t, nav.Empty())

	// Deposit precedes the first trade, so it seeds the initial balance and
	// no suggestion is surfaced.
	assert.Equal(t, 0.0, e.SuggestedInitialDeposit())

	cash, ok := e.CashHistory().At(date("2020-01-02"))
	require.True(t, ok)
	assert.InDelta(t, 8999.0, cash, 1e-9)

	v, ok := nav.At(date("2020-01-02"))
	require.True(t, ok)
	assert.InDelta(t, 9999.0, v, 1e-9) // 8999 cash + 10 shares at 100

	v, ok = nav.At(date("2020-06-01"))
	require.True(t, ok)
	assert.InDelta(t, 10498.0, v, 1e-9)

	_, last := nav.Last()
	assert.InDelta(t, 10498.0, last, 1e-9)
}

func TestTransactionCashConservation(t *testing.T) {
	prices := map[string]*timeseries.Series{
		"ACME": dailySeries("2024-01-01", "2024-01-31", 10),
	}
	txns := []Transaction{
		{Datetime: at("2024-01-01 09:00"), Side: SideDeposit, Quantity: 1000},
		{Datetime: at("2024-01-03 09:00"), Symbol: "ACME", Side: SideBuy, Quantity: 20, Price: 10, Fee: 2},
		{Datetime: at("2024-01-10 09:00"), Side: SideDeposit, Quantity: 500},
		{Datetime: at("2024-01-15 09:00"), Symbol: "ACME", Side: SideSell, Quantity: 5, Price: 11, Fee: 1},
		{Datetime: at("2024-01-20 09:00"), Side: SideWithdraw, Quantity: 100},
	}
	e := newTestEngine(ModeTransaction, txns, nil, nil, prices, "2024-01-31")

	_, err := e.CalculateNAVHistory(context.Background())
	require.NoError(t, err)

	// 1000 + 500 - (200+2) + (55-1) - 100
	_, cash := e.CashHistory().Last()
	assert.InDelta(t, 1252.0, cash, 1e-9)
}

func TestSuggestedInitialDepositRounding(t *testing.T) {
	prices := map[string]*timeseries.Series{
		"ACME": dailySeries("2024-01-01", "2024-01-31", 100),
	}

	// Large shortfall rounds to the nearest 100.
	e := newTestEngine(ModeTransaction, []Transaction{
		{Datetime: at("2024-01-02 09:00"), Symbol: "ACME", Side: SideBuy, Quantity: 10, Price: 100, Fee: 1},
	}, nil, nil, prices, "2024-01-31")
	_, err := e.CalculateNAVHistory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1000.0, e.SuggestedInitialDeposit())

	// Small shortfall keeps two decimals.
	e = newTestEngine(ModeTransaction, []Transaction{
		{Datetime: at("2024-01-02 09:00"), Symbol: "ACME", Side: SideBuy, Quantity: 0.5, Price: 100.5, Fee: 0},
	}, nil, nil, prices, "2024-01-31")
	_, err = e.CalculateNAVHistory(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 50.25, e.SuggestedInitialDeposit(), 1e-9)
}

func TestLiquidateInvariant(t *testing.T) {
	prices := map[string]*timeseries.Series{
		"LIVE": dailySeries("2024-01-01", "2024-03-31", 10),
		"DEAD": dailySeries("2024-01-01", "2024-02-15", 50),
	}
	txns := []Transaction{
		{Datetime: at("2024-01-01 09:00"), Side: SideDeposit, Quantity: 10000},
		{Datetime: at("2024-01-02 09:00"), Symbol: "LIVE", Side: SideBuy, Quantity: 100, Price: 10},
		{Datetime: at("2024-01-02 09:05"), Symbol: "DEAD", Side: SideBuy, Quantity: 10, Price: 50},
	}
	e := newTestEngine(ModeTransaction, txns, nil, nil, prices, "2024-03-31")

	stale, err := e.DetectStaleTickers(context.Background())
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "DEAD", stale[0].Symbol)
	assert.Equal(t, "2024-02-15", stale[0].LastDate.String())
	assert.Equal(t, 500.0, stale[0].MarketValue)

	e.SetStaleTickerHandling([]StaleTickerHandling{{Symbol: "DEAD", Action: ActionLiquidate}})

	nav, err := e.CalculateNAVHistory(context.Background())
	require.NoError(t, err)

	events := e.LiquidationEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "DEAD", events[0].Symbol)
	assert.Equal(t, 500.0, events[0].CashAmount)
	assert.Equal(t, "2024-02-16", events[0].Date.String())

	// After liquidation DEAD contributes nothing beyond its cash proceeds:
	// NAV stays flat at 10000 since all prices are constant.
	v, ok := nav.At(date("2024-03-31"))
	require.True(t, ok)
	assert.InDelta(t, 10000.0, v, 1e-9)
}

// weekdaySeries builds a daily close series over [from, to] skipping
// Saturdays and Sundays, the shape real market data has.
func weekdaySeries(from, to string, price float64) *timeseries.Series {
	s := timeseries.NewSeries(0)
	for d := date(from); !d.After(date(to)); d = d.AddDays(1) {
		if wd := d.Time().Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		s.Append(d, price)
	}
	return s
}

func TestReplayValuesHoldingsOnNonTradingDays(t *testing.T) {
	// Prices exist Mon-Fri only; the Saturday deposit still lands on the
	// calendar and holdings keep their Friday close.
	prices := map[string]*timeseries.Series{
		"ACME": weekdaySeries("2024-01-01", "2024-01-05", 10),
	}
	txns := []Transaction{
		{Datetime: at("2024-01-01 09:00"), Side: SideDeposit, Quantity: 1000},
		{Datetime: at("2024-01-03 10:00"), Symbol: "ACME", Side: SideBuy, Quantity: 10, Price: 10},
		{Datetime: at("2024-01-06 09:00"), Side: SideDeposit, Quantity: 50},
	}
	e := newTestEngine(ModeTransaction, txns, nil, nil, prices, "2024-01-06")

	nav, err := e.CalculateNAVHistory(context.Background())
	require.NoError(t, err)

	v, ok := nav.At(date("2024-01-05"))
	require.True(t, ok)
	assert.InDelta(t, 1000.0, v, 1e-9) // 900 cash + 10 shares at 10

	// Saturday: 950 cash plus the position at Friday's close, not cash alone.
	v, ok = nav.At(date("2024-01-06"))
	require.True(t, ok)
	assert.InDelta(t, 1050.0, v, 1e-9)
}

func TestFreezeHoldsLastPriceInReplay(t *testing.T) {
	// LIVE doubles after DEAD's history ends; the frozen position must keep
	// contributing its last dollar value, unchanged.
	live := dailySeries("2024-01-01", "2024-02-29", 10)
	for d := date("2024-03-01"); !d.After(date("2024-03-31")); d = d.AddDays(1) {
		live.Append(d, 20)
	}
	prices := map[string]*timeseries.Series{
		"LIVE": live,
		"DEAD": dailySeries("2024-01-01", "2024-02-15", 50),
	}
	txns := []Transaction{
		{Datetime: at("2024-01-01 09:00"), Side: SideDeposit, Quantity: 10000},
		{Datetime: at("2024-01-02 09:00"), Symbol: "LIVE", Side: SideBuy, Quantity: 100, Price: 10},
		{Datetime: at("2024-01-02 09:05"), Symbol: "DEAD", Side: SideBuy, Quantity: 10, Price: 50},
	}
	e := newTestEngine(ModeTransaction, txns, nil, nil, prices, "2024-03-31")
	e.SetStaleTickerHandling([]StaleTickerHandling{{Symbol: "DEAD", Action: ActionFreeze}})

	nav, err := e.CalculateNAVHistory(context.Background())
	require.NoError(t, err)

	// 8500 cash + 1000 LIVE + 500 DEAD at its last close.
	v, ok := nav.At(date("2024-02-15"))
	require.True(t, ok)
	assert.InDelta(t, 10000.0, v, 1e-9)

	// Only LIVE's repricing moves NAV; DEAD stays a flat 500.
	v, ok = nav.At(date("2024-03-31"))
	require.True(t, ok)
	assert.InDelta(t, 11000.0, v, 1e-9)

	assert.Empty(t, e.LiquidationEvents())
}

func TestRemoveExcludesSymbolFromReplay(t *testing.T) {
	prices := map[string]*timeseries.Series{
		"LIVE": dailySeries("2024-01-01", "2024-03-31", 10),
		"DEAD": dailySeries("2024-01-01", "2024-02-15", 50),
	}
	txns := []Transaction{
		{Datetime: at("2024-01-01 09:00"), Side: SideDeposit, Quantity: 10000},
		{Datetime: at("2024-01-02 09:00"), Symbol: "LIVE", Side: SideBuy, Quantity: 100, Price: 10},
		{Datetime: at("2024-01-02 09:05"), Symbol: "DEAD", Side: SideBuy, Quantity: 10, Price: 50},
	}
	e := newTestEngine(ModeTransaction, txns, nil, nil, prices, "2024-03-31")
	e.SetStaleTickerHandling([]StaleTickerHandling{{Symbol: "DEAD", Action: ActionRemove}})

	nav, err := e.CalculateNAVHistory(context.Background())
	require.NoError(t, err)

	// The cash spent on DEAD stays spent, but the position is worth nothing:
	// 8500 cash + 1000 LIVE.
	_, last := nav.Last()
	assert.InDelta(t, 9500.0, last, 1e-9)

	// Removed symbols are never priced, so they cannot show up as failed.
	assert.Empty(t, e.FailedTickers())
}

func TestSnapshotFreezeHoldsLastPrice(t *testing.T) {
	live := dailySeries("2024-01-01", "2024-01-15", 10)
	for d := date("2024-01-16"); !d.After(date("2024-01-31")); d = d.AddDays(1) {
		live.Append(d, 20)
	}
	prices := map[string]*timeseries.Series{
		"LIVE": live,
		"DEAD": dailySeries("2024-01-01", "2024-01-15", 50),
	}
	e := newTestEngine(ModeSnapshot, nil, []Position{
		{AsOf: date("2024-01-31"), Symbol: "LIVE", Quantity: 100},
		{AsOf: date("2024-01-31"), Symbol: "DEAD", Quantity: 10},
	}, nil, prices, "2024-01-31")
	e.SetStaleTickerHandling([]StaleTickerHandling{{Symbol: "DEAD", Action: ActionFreeze}})

	nav, err := e.CalculateNAVHistory(context.Background())
	require.NoError(t, err)

	v, ok := nav.At(date("2024-01-15"))
	require.True(t, ok)
	assert.InDelta(t, 1500.0, v, 1e-9)

	// DEAD contributes its frozen 500 while LIVE reprices to 2000.
	v, ok = nav.At(date("2024-01-31"))
	require.True(t, ok)
	assert.InDelta(t, 2500.0, v, 1e-9)
}

func TestSnapshotRemoveExcludesSymbol(t *testing.T) {
	prices := map[string]*timeseries.Series{
		"LIVE": dailySeries("2024-01-01", "2024-01-31", 10),
		"DEAD": dailySeries("2024-01-01", "2024-01-15", 50),
	}
	e := newTestEngine(ModeSnapshot, nil, []Position{
		{AsOf: date("2024-01-31"), Symbol: "LIVE", Quantity: 100},
		{AsOf: date("2024-01-31"), Symbol: "DEAD", Quantity: 10},
	}, nil, prices, "2024-01-31")
	e.SetStaleTickerHandling([]StaleTickerHandling{{Symbol: "DEAD", Action: ActionRemove}})

	nav, err := e.CalculateNAVHistory(context.Background())
	require.NoError(t, err)

	for _, v := range nav.Values() {
		assert.Equal(t, 1000.0, v)
	}
	assert.Empty(t, e.FailedTickers())
}

func TestMemoizationAndInvalidation(t *testing.T) {
	prices := map[string]*timeseries.Series{
		"ACME": dailySeries("2024-01-01", "2024-01-31", 10),
	}
	e := newTestEngine(ModeTransaction, []Transaction{
		{Datetime: at("2024-01-01 09:00"), Side: SideDeposit, Quantity: 1000},
		{Datetime: at("2024-01-02 09:00"), Symbol: "ACME", Side: SideBuy, Quantity: 10, Price: 10},
	}, nil, nil, prices, "2024-01-31")

	ctx := context.Background()
	first, err := e.CalculateNAVHistory(ctx)
	require.NoError(t, err)
	second, err := e.CalculateNAVHistory(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)

	e.SetStaleTickerHandling(nil)
	third, err := e.CalculateNAVHistory(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestBondLifecycleInReplay(t *testing.T) {
	bond := &bonds.Position{
		ID:               "b1",
		Name:             "Note 6% 2024",
		FaceValue:        100,
		PurchaseQuantity: 10,
		CouponRate:       6,
		PaymentFrequency: bonds.SemiAnnual,
		PurchaseDate:     date("2024-01-10"),
		MaturityDate:     date("2024-07-15"),
		PurchasePrice:    100,
	}
	txns := []Transaction{
		{Datetime: at("2024-01-01 09:00"), Side: SideDeposit, Quantity: 5000},
	}
	e := newTestEngine(ModeTransaction, txns, nil, []*bonds.Position{bond}, map[string]*timeseries.Series{}, "2024-07-20")

	nav, err := e.CalculateNAVHistory(context.Background())
	require.NoError(t, err)
	require.False(t, nav.Empty())

	// Purchase cost is the dirty price: 175 days of 30/360 accrual since the
	// 2023-07-15 coupon at 6% on top of a clean price of 100.
	accrued := 6.0 * 175 / 360
	cost := (100 + accrued) / 100 * 100 * 10

	cash, ok := e.CashHistory().At(date("2024-01-10"))
	require.True(t, ok)
	assert.InDelta(t, 5000-cost, cash, 1e-9)

	// Two coupons of 30 each plus the 1000 redemption.
	_, couponTotal := e.BondCouponHistory().Last()
	assert.InDelta(t, 60.0, couponTotal, 1e-9)

	_, maturityTotal := e.BondMaturityCash().Last()
	assert.InDelta(t, 1000.0, maturityTotal, 1e-9)

	_, finalCash := e.CashHistory().Last()
	assert.InDelta(t, 5000-cost+60+1000, finalCash, 1e-9)

	// After maturity the bond contributes no holding value, only cash.
	_, finalNAV := nav.Last()
	assert.InDelta(t, finalCash, finalNAV, 1e-9)
}
