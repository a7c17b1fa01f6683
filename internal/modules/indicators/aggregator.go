package indicators

import (
	"github.com/quantfolio/quantfolio/internal/modules/engine"
	"github.com/quantfolio/quantfolio/pkg/formulas"
	"github.com/quantfolio/quantfolio/pkg/timeseries"
)

// Input bundles everything the indicator catalog can draw on. NAV is the
// only required field; sections that need more are skipped when their
// inputs are missing.
type Input struct {
	NAV          *timeseries.Series
	Transactions []engine.Transaction
	Holdings     map[string]float64
	Prices       map[string]float64
	PriceHistory *timeseries.Frame
	Weights      map[string]float64
	SectorMap    map[string]string
	IndustryMap  map[string]string
	RiskFreeRate float64
}

// BasicIndicators computes the five headline portfolio indicators.
func BasicIndicators(nav *timeseries.Series, riskFreeRate float64) map[string]float64 {
	if nav.Empty() {
		return map[string]float64{
			"total_return": 0.0,
			"cagr":         0.0,
			"volatility":   0.0,
			"sharpe":       0.0,
			"max_drawdown": 0.0,
		}
	}
	returns := nav.PctChange()
	return map[string]float64{
		"total_return": TotalReturn(nav),
		"cagr":         CAGR(nav),
		"volatility":   AnnualizedVolatility(returns),
		"sharpe":       SharpeRatio(returns, riskFreeRate),
		"max_drawdown": MaxDrawdown(nav),
	}
}

// AllIndicators computes the full catalog, organized by category. Sections
// whose inputs are absent are left out entirely; a snapshot portfolio gets
// no trading section, not an empty one.
func AllIndicators(in Input) map[string]any {
	result := make(map[string]any)
	if in.NAV.Empty() {
		return result
	}

	nav := in.NAV
	returns := nav.PctChange()
	rf := in.RiskFreeRate

	result["returns"] = returnsSection(in, nav, returns)
	result["risk"] = riskSection(returns)
	result["drawdown"] = drawdownSection(nav, returns)
	result["risk_adjusted_ratios"] = ratiosSection(nav, returns, rf)
	result["tail_risk"] = tailRiskSection(returns)

	if len(in.Weights) > 0 {
		result["allocation"] = allocationSection(in)
	}

	if in.PriceHistory != nil && !in.PriceHistory.Empty() && len(in.Weights) > 1 {
		result["risk_decomposition"] = riskDecompositionSection(in)
	}

	if len(in.Transactions) > 0 {
		trading := AllTradingMetrics(in.Transactions, nav)
		trading.TurnoverByAsset = TurnoverByAsset(in.Transactions, nav)
		result["trading"] = trading
	}

	if in.PriceHistory != nil && in.PriceHistory.Len() > 1 {
		symbols, rows := in.PriceHistory.Returns()
		if len(rows) > 0 && len(symbols) > 1 {
			stats := PairwiseCorrelations(symbols, rows)
			result["correlation"] = map[string]float64{
				"mean_pairwise": stats.Mean,
				"max_pairwise":  stats.Max,
				"min_pairwise":  stats.Min,
			}
		}
	}

	return result
}

func returnsSection(in Input, nav, returns *timeseries.Series) map[string]any {
	section := map[string]any{
		"simple_returns_mean": formulas.Mean(returns.Values()),
		"total_return":        TotalReturn(nav),
		"cagr":                CAGR(nav),
		"annualized_return":   AnnualizedReturn(returns),
		"ytd_return":          YTDReturn(nav),
		"mtd_return":          MTDReturn(nav),
	}

	realized := 0.0
	if len(in.Transactions) > 0 {
		realized = RealizedPnL(in.Transactions)
		section["twr"] = TWR(nav, TransactionCashFlows(in.Transactions))
		section["irr"] = IRR(irrAmounts(in.Transactions, nav))
	} else {
		section["twr"] = CAGR(nav)
		section["irr"] = 0.0
	}
	section["realized_pnl"] = realized

	unrealized := 0.0
	if in.Holdings != nil && in.Prices != nil {
		unrealized = UnrealizedPnL(in.Holdings, in.Prices)
	}
	section["unrealized_pnl"] = unrealized
	section["total_pnl"] = realized + unrealized

	section["monthly_returns"] = MonthlyReturns(returns)
	return section
}

// irrAmounts builds the periodic cash flow sequence for IRR from the
// investor's perspective: deposits out, withdrawals in, final NAV as the
// terminal inflow.
func irrAmounts(transactions []engine.Transaction, nav *timeseries.Series) []float64 {
	flows := TransactionCashFlows(transactions)
	if len(flows) == 0 || nav.Empty() {
		return nil
	}
	amounts := make([]float64, 0, len(flows)+1)
	for _, cf := range flows {
		amounts = append(amounts, -cf.Amount)
	}
	_, final := nav.Last()
	return append(amounts, final)
}

func riskSection(returns *timeseries.Series) map[string]any {
	rollingVol := 0.0
	if rolling := RollingVolatility(returns, 30); !rolling.Empty() {
		_, rollingVol = rolling.Last()
	}
	return map[string]any{
		"daily_volatility":      DailyVolatility(returns),
		"annualized_volatility": AnnualizedVolatility(returns),
		"upside_volatility":     UpsideVolatility(returns),
		"downside_volatility":   DownsideVolatility(returns, 0),
		"semivariance":          Semivariance(returns, 0),
		"rolling_volatility_30d": rollingVol,
	}
}

func drawdownSection(nav, returns *timeseries.Series) map[string]any {
	duration := CalculateDrawdownDuration(nav)
	recovery := RecoveryTime(nav)
	return map[string]any{
		"max_drawdown":            MaxDrawdown(nav),
		"avg_drawdown":            AvgDrawdown(nav),
		"max_daily_loss":          MaxDailyLoss(returns),
		"max_daily_gain":          MaxDailyGain(returns),
		"consecutive_loss_days":   ConsecutiveLossDays(returns),
		"consecutive_gain_days":   ConsecutiveGainDays(returns),
		"max_drawdown_duration":   duration.MaxDrawdownDuration,
		"longest_drawdown_period": duration.LongestDrawdownPeriod,
		"avg_drawdown_duration":   duration.AvgDrawdownDuration,
		"recovery_days":           recovery.RecoveryDays,
		"recovered":               recovery.Recovered,
		"ulcer_index":             UlcerIndex(nav),
	}
}

func ratiosSection(nav, returns *timeseries.Series, rf float64) map[string]any {
	rollingSharpe := 0.0
	if rolling := RollingSharpe(returns, 30, rf); !rolling.Empty() {
		_, rollingSharpe = rolling.Last()
	}
	return map[string]any{
		"sharpe":                  SharpeRatio(returns, rf),
		"sortino":                 SortinoRatio(returns, 0, rf),
		"calmar":                  CalmarRatio(nav, returns),
		"omega":                   OmegaRatio(returns, 0),
		"gain_to_pain":            GainToPainRatio(returns),
		"ulcer_performance_index": UlcerPerformanceIndex(nav, returns, rf),
		"rolling_sharpe_30d":      rollingSharpe,
	}
}

func tailRiskSection(returns *timeseries.Series) map[string]any {
	return map[string]any{
		"var_95":     VaR(returns, 0.95),
		"cvar_95":    CVaR(returns, 0.95),
		"skewness":   Skewness(returns),
		"kurtosis":   ExcessKurtosis(returns),
		"tail_ratio": TailRatio(returns),
	}
}

func allocationSection(in Input) map[string]any {
	section := map[string]any{
		"weights":                    in.Weights,
		"hhi":                        HHI(in.Weights),
		"top_5_concentration":        TopNConcentration(in.Weights, 5),
		"max_weight":                 MaxWeight(in.Weights),
		"weight_deviation_from_equal": WeightDeviationFromEqual(in.Weights),
	}
	if in.Holdings != nil && in.Prices != nil {
		section["long_short_exposure"] = LongShortExposure(in.Holdings, in.Prices)
	}
	if in.SectorMap != nil {
		section["sector_allocation"] = GroupAllocation(in.Holdings, in.Prices, in.SectorMap)
	}
	if in.IndustryMap != nil {
		section["industry_allocation"] = GroupAllocation(in.Holdings, in.Prices, in.IndustryMap)
	}
	return section
}

func riskDecompositionSection(in Input) map[string]any {
	section := map[string]any{
		"portfolio_volatility": PortfolioVolatility(in.Weights, in.PriceHistory),
		"mctr":                 MCTR(in.Weights, in.PriceHistory),
		"by_asset":             RiskContributionByAsset(in.Weights, in.PriceHistory),
	}
	if in.SectorMap != nil {
		section["by_sector"] = RiskContributionBySector(in.Weights, in.PriceHistory, in.SectorMap)
	}
	return section
}

// BenchmarkComparison evaluates portfolio returns against each benchmark's
// return series.
func BenchmarkComparison(portfolioReturns *timeseries.Series, benchmarkReturns map[string]*timeseries.Series, riskFreeRate float64) map[string]BenchmarkMetrics {
	return MultiBenchmarkMetrics(portfolioReturns, benchmarkReturns, riskFreeRate)
}
