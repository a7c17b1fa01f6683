package indicators

import (
	"math"

	"github.com/quantfolio/quantfolio/pkg/formulas"
	"github.com/quantfolio/quantfolio/pkg/timeseries"
)

// SharpeRatio is (annualized return - rf) / annualized volatility.
func SharpeRatio(returns *timeseries.Series, riskFreeRate float64) float64 {
	if returns.Empty() {
		return 0
	}
	vol := AnnualizedVolatility(returns)
	if vol == 0 {
		return 0
	}
	return (AnnualizedReturn(returns) - riskFreeRate) / vol
}

// RollingSharpe computes the Sharpe ratio over a trailing window. Windows
// with fewer than 10 observations are skipped.
func RollingSharpe(returns *timeseries.Series, window int, riskFreeRate float64) *timeseries.Series {
	out := timeseries.NewSeries(returns.Len())
	if returns.Len() < window || window < 10 {
		return out
	}
	values := returns.Values()
	for i := window - 1; i < len(values); i++ {
		chunk := values[i-window+1 : i+1]
		mean := formulas.Mean(chunk) * formulas.TradingDaysPerYear
		sd := formulas.StdDev(chunk) * math.Sqrt(formulas.TradingDaysPerYear)
		sharpe := 0.0
		if sd != 0 {
			sharpe = (mean - riskFreeRate) / sd
		}
		out.Append(returns.Date(i), sharpe)
	}
	return out
}

// SortinoRatio is (annualized return - rf) / downside volatility.
func SortinoRatio(returns *timeseries.Series, target, riskFreeRate float64) float64 {
	if returns.Empty() {
		return 0
	}
	downside := DownsideVolatility(returns, target)
	if downside == 0 {
		return 0
	}
	return (AnnualizedReturn(returns) - riskFreeRate) / downside
}

// CalmarRatio is annualized return over the absolute max drawdown.
func CalmarRatio(nav, returns *timeseries.Series) float64 {
	if nav.Empty() || returns.Empty() {
		return 0
	}
	maxDD := MaxDrawdown(nav)
	if maxDD == 0 {
		return 0
	}
	return AnnualizedReturn(returns) / math.Abs(maxDD)
}

// OmegaRatio is the sum of gains above the threshold over the sum of losses
// below it. With gains and no losses it is +Inf.
func OmegaRatio(returns *timeseries.Series, threshold float64) float64 {
	gains, losses := 0.0, 0.0
	for _, r := range returns.Values() {
		if r > threshold {
			gains += r - threshold
		} else {
			losses += threshold - r
		}
	}
	if losses == 0 {
		if gains > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return gains / losses
}

// GainToPainRatio is the sum of all returns over the absolute sum of
// negative returns, +Inf when there are gains and no losses.
func GainToPainRatio(returns *timeseries.Series) float64 {
	total, pain := 0.0, 0.0
	for _, r := range returns.Values() {
		total += r
		if r < 0 {
			pain -= r
		}
	}
	if pain == 0 {
		if total > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return total / pain
}

// UlcerPerformanceIndex is annualized return over the ulcer index.
func UlcerPerformanceIndex(nav, returns *timeseries.Series, riskFreeRate float64) float64 {
	ulcer := UlcerIndex(nav)
	if ulcer == 0 {
		return 0
	}
	return (AnnualizedReturn(returns) - riskFreeRate) / ulcer
}

// TreynorRatio is (annualized return - rf) / beta.
func TreynorRatio(returns *timeseries.Series, beta, riskFreeRate float64) float64 {
	if returns.Empty() || beta == 0 {
		return 0
	}
	return (AnnualizedReturn(returns) - riskFreeRate) / beta
}

// M2Measure is the Modigliani risk-adjusted return: the portfolio's Sharpe
// scaled to the benchmark's volatility, plus the risk-free rate.
func M2Measure(portfolio, benchmark *timeseries.Series, riskFreeRate float64) float64 {
	pv, bv := timeseries.Align(portfolio, benchmark)
	if len(pv) < 2 {
		return 0
	}
	benchVol := formulas.AnnualizedVolatility(bv)
	portVol := formulas.AnnualizedVolatility(pv)
	if portVol == 0 {
		return 0
	}
	sharpe := (formulas.Mean(pv)*formulas.TradingDaysPerYear - riskFreeRate) / portVol
	return riskFreeRate + sharpe*benchVol
}
