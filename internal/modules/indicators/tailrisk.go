package indicators

import (
	"math"

	"github.com/quantfolio/quantfolio/pkg/formulas"
	"github.com/quantfolio/quantfolio/pkg/timeseries"
)

// VaR is historical Value at Risk at the given confidence level: the
// (1-confidence) percentile of returns, a negative number for losses.
func VaR(returns *timeseries.Series, confidence float64) float64 {
	if returns.Empty() {
		return 0
	}
	return formulas.Percentile(returns.Values(), (1-confidence)*100)
}

// CVaR is the expected shortfall: the mean of returns at or below VaR.
func CVaR(returns *timeseries.Series, confidence float64) float64 {
	if returns.Empty() {
		return 0
	}
	threshold := VaR(returns, confidence)
	sum, n := 0.0, 0
	for _, r := range returns.Values() {
		if r <= threshold {
			sum += r
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Skewness of the return distribution; positive means fatter right tail.
func Skewness(returns *timeseries.Series) float64 {
	return formulas.Skewness(returns.Values())
}

// ExcessKurtosis of the return distribution; positive means fat tails
// relative to normal.
func ExcessKurtosis(returns *timeseries.Series) float64 {
	return formulas.ExcessKurtosis(returns.Values())
}

// TailRatio is the 95th percentile over the absolute 5th percentile of
// returns; above 1 the right tail dominates.
func TailRatio(returns *timeseries.Series) float64 {
	if returns.Empty() {
		return 0
	}
	values := returns.Values()
	right := formulas.Percentile(values, 95)
	left := math.Abs(formulas.Percentile(values, 5))
	if left == 0 {
		if right > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return right / left
}
