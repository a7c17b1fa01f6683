package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/quantfolio/internal/modules/engine"
	"github.com/quantfolio/quantfolio/pkg/timeseries"
)

func mustDate(t *testing.T, s string) timeseries.Date {
	t.Helper()
	d, err := timeseries.ParseDate(s)
	require.NoError(t, err)
	return d
}

// seriesFrom builds a daily series starting at the given date.
func seriesFrom(t *testing.T, start string, values ...float64) *timeseries.Series {
	t.Helper()
	day := mustDate(t, start)
	s := timeseries.NewSeries(len(values))
	for _, v := range values {
		s.Append(day, v)
		day = day.AddDays(1)
	}
	return s
}

func TestTotalReturnAndCAGR(t *testing.T) {
	nav := seriesFrom(t, "2024-01-01", 100, 105, 110)
	assert.InDelta(t, 0.10, TotalReturn(nav), 1e-9)

	// 21% over exactly two 365-day years compounds to 10% per year.
	twoYears := timeseries.NewSeries(2)
	twoYears.Append(mustDate(t, "2020-01-01"), 100)
	twoYears.Append(mustDate(t, "2021-12-31"), 121)
	assert.InDelta(t, 0.10, CAGR(twoYears), 1e-9)

	assert.Zero(t, TotalReturn(seriesFrom(t, "2024-01-01", 100)))
}

func TestMonthlyReturnsCompound(t *testing.T) {
	returns := timeseries.NewSeries(3)
	returns.Append(mustDate(t, "2024-01-10"), 0.10)
	returns.Append(mustDate(t, "2024-01-20"), 0.10)
	returns.Append(mustDate(t, "2024-02-05"), -0.05)

	monthly := MonthlyReturns(returns)
	require.Len(t, monthly, 2)
	assert.InDelta(t, 0.21, monthly["2024-01"], 1e-9)
	assert.InDelta(t, -0.05, monthly["2024-02"], 1e-9)
}

func TestClosedTradesFIFO(t *testing.T) {
	at := func(s string) time.Time {
		ts, err := time.Parse("2006-01-02", s)
		require.NoError(t, err)
		return ts
	}
	txns := []engine.Transaction{
		{Datetime: at("2024-01-02"), Symbol: "ACME", Side: engine.SideBuy, Quantity: 10, Price: 100, Fee: 2},
		{Datetime: at("2024-01-05"), Symbol: "ACME", Side: engine.SideBuy, Quantity: 5, Price: 110, Fee: 1},
		{Datetime: at("2024-02-01"), Symbol: "ACME", Side: engine.SideSell, Quantity: 12, Price: 120, Fee: 3},
	}

	trades := ClosedTrades(txns)
	require.Len(t, trades, 2)

	// First lot matched in full: 10*(120-100) - 2 - 3*(10/12).
	assert.InDelta(t, 195.5, trades[0].PnL, 1e-9)
	assert.Equal(t, 10.0, trades[0].Quantity)

	// Second lot matched partially: 2*(120-110) - 1*(2/5) - 3*(2/12).
	assert.InDelta(t, 19.1, trades[1].PnL, 1e-9)
	assert.Equal(t, 2.0, trades[1].Quantity)

	assert.InDelta(t, 214.6, RealizedPnL(txns), 1e-9)
}

func TestTWRWithExternalFlow(t *testing.T) {
	nav := timeseries.NewSeries(3)
	nav.Append(mustDate(t, "2024-01-01"), 100)
	nav.Append(mustDate(t, "2024-01-10"), 110)
	nav.Append(mustDate(t, "2024-01-20"), 242)

	flows := []CashFlow{{Date: mustDate(t, "2024-01-10"), Amount: 110}}

	// 10% then 10% again after the deposit: chained 21%.
	assert.InDelta(t, 0.21, TWR(nav, flows), 1e-9)
}

func TestIRRSinglePeriod(t *testing.T) {
	assert.InDelta(t, 0.10, IRR([]float64{-1000, 1100}), 1e-6)
	assert.Zero(t, IRR([]float64{-1000}))
	assert.Zero(t, IRR(nil))
}

func TestMaxDrawdown(t *testing.T) {
	nav := seriesFrom(t, "2024-01-01", 100, 120, 90, 130)
	assert.InDelta(t, -0.25, MaxDrawdown(nav), 1e-9)
}

func TestMonotoneNAVHasNoDrawdown(t *testing.T) {
	nav := seriesFrom(t, "2024-01-01", 100, 101, 102, 105, 110)

	assert.Zero(t, MaxDrawdown(nav))
	assert.Zero(t, UlcerIndex(nav))

	recovery := RecoveryTime(nav)
	assert.True(t, recovery.Recovered)
	assert.Zero(t, recovery.RecoveryDays)
}

func TestRecoveryNeverRegained(t *testing.T) {
	nav := seriesFrom(t, "2024-01-01", 100, 80, 85, 90)
	recovery := RecoveryTime(nav)
	assert.False(t, recovery.Recovered)
	assert.True(t, math.IsInf(recovery.RecoveryDays, 1))
}

func TestVaRConfidenceOrdering(t *testing.T) {
	returns := seriesFrom(t, "2024-01-01",
		-0.05, -0.03, -0.02, -0.01, 0.0, 0.01, 0.01, 0.02, 0.03, 0.04,
		-0.04, 0.02, 0.01, -0.01, 0.03, 0.0, 0.02, -0.02, 0.01, 0.05,
	)

	var99 := VaR(returns, 0.99)
	var95 := VaR(returns, 0.95)
	var90 := VaR(returns, 0.90)
	assert.LessOrEqual(t, var99, var95)
	assert.LessOrEqual(t, var95, var90)

	assert.LessOrEqual(t, CVaR(returns, 0.95), var95)
}

func TestOmegaAndGainToPainAllGains(t *testing.T) {
	returns := seriesFrom(t, "2024-01-01", 0.01, 0.02, 0.03)
	assert.True(t, math.IsInf(OmegaRatio(returns, 0), 1))
	assert.True(t, math.IsInf(GainToPainRatio(returns), 1))
}

func TestSharpeZeroVolatility(t *testing.T) {
	flat := seriesFrom(t, "2024-01-01", 0.0, 0.0, 0.0)
	assert.Zero(t, SharpeRatio(flat, 0.02))
}

func TestKellyCriterion(t *testing.T) {
	tests := []struct {
		name    string
		winRate float64
		plRatio float64
		want    float64
	}{
		{"favorable", 0.6, 2.0, 0.4},
		{"breakeven", 0.5, 1.0, 0.0},
		{"negative edge clamps to zero", 0.3, 1.0, 0.0},
		{"degenerate win rate", 1.0, 2.0, 0.0},
		{"no ratio", 0.6, 0.0, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, KellyCriterion(tt.winRate, tt.plRatio), 1e-9)
		})
	}
}

func TestProfitFactorNoLosses(t *testing.T) {
	at := func(s string) time.Time {
		ts, _ := time.Parse("2006-01-02", s)
		return ts
	}
	txns := []engine.Transaction{
		{Datetime: at("2024-01-02"), Symbol: "ACME", Side: engine.SideBuy, Quantity: 10, Price: 100},
		{Datetime: at("2024-02-01"), Symbol: "ACME", Side: engine.SideSell, Quantity: 10, Price: 120},
	}
	assert.True(t, math.IsInf(ProfitFactor(txns), 1))
	assert.Equal(t, 1.0, WinRate(txns))
	assert.Equal(t, 1, TradeCount(txns))
}

func TestBetaOnScaledBenchmark(t *testing.T) {
	benchmark := seriesFrom(t, "2024-01-01", 0.01, -0.02, 0.03, -0.01, 0.02)
	portfolio := timeseries.NewSeries(benchmark.Len())
	for i := 0; i < benchmark.Len(); i++ {
		portfolio.Append(benchmark.Date(i), 2*benchmark.Value(i))
	}

	assert.InDelta(t, 2.0, Beta(portfolio, benchmark), 1e-9)
	assert.InDelta(t, 1.0, RSquared(portfolio, benchmark), 1e-9)
	assert.InDelta(t, 1.0, CorrelationTo(portfolio, benchmark), 1e-9)
	assert.InDelta(t, 200.0, UpsideCapture(portfolio, benchmark), 1e-9)
	assert.InDelta(t, 200.0, DownsideCapture(portfolio, benchmark), 1e-9)
	assert.Greater(t, TrackingError(portfolio, benchmark), 0.0)
}

func TestAllBenchmarkMetricsTooFewObservations(t *testing.T) {
	portfolio := seriesFrom(t, "2024-01-01", 0.01)
	benchmark := seriesFrom(t, "2024-06-01", 0.01)
	assert.Equal(t, BenchmarkMetrics{}, AllBenchmarkMetrics(portfolio, benchmark, 0.02))
}

func TestPairwiseCorrelationsPerfect(t *testing.T) {
	rows := [][]float64{{0.01, 0.02}, {-0.02, -0.04}, {0.03, 0.06}}
	stats := PairwiseCorrelations([]string{"A", "B"}, rows)
	assert.InDelta(t, 1.0, stats.Mean, 1e-9)
	assert.InDelta(t, 1.0, stats.Max, 1e-9)
	assert.InDelta(t, 1.0, stats.Min, 1e-9)
}

func TestWeightsAndConcentration(t *testing.T) {
	holdings := map[string]float64{"A": 10, "B": 30}
	prices := map[string]float64{"A": 10, "B": 10}

	weights := Weights(holdings, prices)
	assert.InDelta(t, 0.25, weights["A"], 1e-9)
	assert.InDelta(t, 0.75, weights["B"], 1e-9)

	assert.InDelta(t, 0.625, HHI(weights), 1e-9)
	assert.InDelta(t, 0.75, MaxWeight(weights), 1e-9)
	assert.InDelta(t, 1.0, TopNConcentration(weights, 5), 1e-9)
}

func TestGMVPortfolioSymmetricAssets(t *testing.T) {
	// Two uncorrelated assets with equal variance split evenly.
	rows := make([][]float64, 0, 40)
	for i := 0; i < 40; i++ {
		a, b := 0.01, -0.01
		if i%2 == 0 {
			a, b = -0.01, 0.01
		}
		rows = append(rows, []float64{a, b})
	}
	symbols := []string{"A", "B"}
	cov := CovarianceMatrix(symbols, rows)

	w := GMVPortfolio(symbols, cov, false)
	require.Len(t, w, 2)
	assert.InDelta(t, 0.5, w[0], 1e-6)
	assert.InDelta(t, 0.5, w[1], 1e-6)
}

func TestEfficientFrontierAnalysisGuards(t *testing.T) {
	weights := map[string]float64{"A": 0.5, "B": 0.5}

	short := [][]float64{{0.01, 0.02}}
	assert.Nil(t, EfficientFrontierAnalysis([]string{"A", "B"}, short, weights, 0.02, false, 10))

	rows := make([][]float64, 40)
	for i := range rows {
		rows[i] = []float64{0.01, 0.02}
	}
	assert.Nil(t, EfficientFrontierAnalysis([]string{"A"}, rows, weights, 0.02, false, 10))
	assert.Nil(t, EfficientFrontierAnalysis([]string{"A", "B"}, rows, map[string]float64{"C": 1}, 0.02, false, 10))
}

func TestWeek52Levels(t *testing.T) {
	closes := seriesFrom(t, "2024-01-01", 90, 100, 120, 110, 105)
	assert.Equal(t, 120.0, Week52High(closes, Week52Window))
	assert.Equal(t, 90.0, Week52Low(closes, Week52Window))
	assert.InDelta(t, (105.0-120.0)/120.0, DistanceFrom52WeekHigh(closes, Week52Window), 1e-9)
}

func TestComputeTechnicalSnapshotOnLinearCloses(t *testing.T) {
	// Closes rise 100, 101, ... 159: every oscillator value is known in
	// closed form.
	values := make([]float64, 60)
	for i := range values {
		values[i] = 100 + float64(i)
	}
	closes := seriesFrom(t, "2024-01-01", values...)

	snap := ComputeTechnicalSnapshot(closes)

	assert.InDelta(t, 149.5, snap.SMA20, 1e-9)
	assert.InDelta(t, 134.5, snap.SMA50, 1e-9)
	assert.Zero(t, snap.SMA200) // not enough history

	// The weighted average leans toward recent closes on a rising series.
	assert.Greater(t, snap.WMA20, snap.SMA20)

	assert.Equal(t, 159.0, snap.DonchianUpper)
	assert.Equal(t, 140.0, snap.DonchianLower)
	assert.InDelta(t, 149.5, snap.DonchianMiddle, 1e-9)

	// With closes standing in for highs and lows the true range collapses
	// to the absolute daily change, a constant 1 here.
	assert.InDelta(t, 1.0, snap.ATR, 1e-9)

	assert.InDelta(t, 100.0, snap.RSI, 1e-9)
	assert.InDelta(t, 100.0, snap.StochasticK, 1e-9)
	assert.InDelta(t, 100.0, snap.StochasticD, 1e-9)
	assert.InDelta(t, 0.0, snap.WilliamsR, 1e-9)

	// CCI on a linear ramp: deviation 6.5 over 0.015 * mean deviation 3.5.
	assert.InDelta(t, 6.5/(0.015*3.5), snap.CCI, 1e-6)

	assert.Equal(t, 159.0, snap.Week52High)
	assert.Equal(t, 100.0, snap.Week52Low)
	assert.Greater(t, snap.MACD, 0.0)
}

func TestComputeTechnicalSnapshotShortHistory(t *testing.T) {
	snap := ComputeTechnicalSnapshot(seriesFrom(t, "2024-01-01", 100, 101, 102))

	// Indicators without enough history report zero, never panic.
	assert.Zero(t, snap.SMA20)
	assert.Zero(t, snap.WMA20)
	assert.Zero(t, snap.ATR)
	assert.Zero(t, snap.StochasticK)
	assert.Zero(t, snap.CCI)
	assert.Zero(t, snap.WilliamsR)
	assert.Equal(t, 102.0, snap.Week52High)
	assert.Equal(t, 100.0, snap.Week52Low)
}

func TestBasicIndicatorsEmptyNAV(t *testing.T) {
	basic := BasicIndicators(timeseries.NewSeries(0), 0.02)
	require.Len(t, basic, 5)
	for key, v := range basic {
		assert.Zerof(t, v, "expected %s to be zero", key)
	}
}

func TestAllIndicatorsSections(t *testing.T) {
	nav := seriesFrom(t, "2024-01-01",
		100, 101, 99, 102, 104, 103, 105, 108, 107, 110,
	)
	result := AllIndicators(Input{NAV: nav, RiskFreeRate: 0.02})

	require.Contains(t, result, "returns")
	require.Contains(t, result, "risk")
	require.Contains(t, result, "drawdown")
	require.Contains(t, result, "risk_adjusted_ratios")
	require.Contains(t, result, "tail_risk")
	// Sections without inputs are omitted, not emitted as null.
	assert.NotContains(t, result, "trading")
	assert.NotContains(t, result, "allocation")

	returns := result["returns"].(map[string]any)
	assert.InDelta(t, 0.10, returns["total_return"].(float64), 1e-9)
	// No transactions: time-weighted return falls back to CAGR.
	assert.Equal(t, returns["twr"], returns["cagr"])
	assert.Equal(t, 0.0, returns["irr"])
}

func TestAllIndicatorsEmptyNAV(t *testing.T) {
	assert.Empty(t, AllIndicators(Input{NAV: timeseries.NewSeries(0)}))
}
