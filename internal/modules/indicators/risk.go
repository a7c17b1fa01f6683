package indicators

import (
	"math"

	"github.com/quantfolio/quantfolio/pkg/formulas"
	"github.com/quantfolio/quantfolio/pkg/timeseries"
)

// DailyVolatility is the sample standard deviation of daily returns.
func DailyVolatility(returns *timeseries.Series) float64 {
	return formulas.StdDev(returns.Values())
}

// AnnualizedVolatility scales daily volatility by sqrt(252).
func AnnualizedVolatility(returns *timeseries.Series) float64 {
	return formulas.AnnualizedVolatility(returns.Values())
}

// RollingVolatility is the trailing window standard deviation, annualized.
// The result has one point per input date from the first full window on.
func RollingVolatility(returns *timeseries.Series, window int) *timeseries.Series {
	out := timeseries.NewSeries(returns.Len())
	if returns.Len() < window || window < 2 {
		return out
	}
	values := returns.Values()
	for i := window - 1; i < len(values); i++ {
		vol := formulas.StdDev(values[i-window+1:i+1]) * math.Sqrt(formulas.TradingDaysPerYear)
		out.Append(returns.Date(i), vol)
	}
	return out
}

// UpsideVolatility is the annualized standard deviation of positive returns.
func UpsideVolatility(returns *timeseries.Series) float64 {
	var upside []float64
	for _, r := range returns.Values() {
		if r > 0 {
			upside = append(upside, r)
		}
	}
	return formulas.StdDev(upside) * math.Sqrt(formulas.TradingDaysPerYear)
}

// DownsideVolatility is the annualized standard deviation of returns below
// the target.
func DownsideVolatility(returns *timeseries.Series, target float64) float64 {
	var downside []float64
	for _, r := range returns.Values() {
		if r < target {
			downside = append(downside, r)
		}
	}
	return formulas.StdDev(downside) * math.Sqrt(formulas.TradingDaysPerYear)
}

// Semivariance is the mean of squared returns below the target.
func Semivariance(returns *timeseries.Series, target float64) float64 {
	sum, n := 0.0, 0
	for _, r := range returns.Values() {
		if r < target {
			sum += r * r
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
