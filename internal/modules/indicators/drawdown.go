package indicators

import (
	"math"

	"github.com/quantfolio/quantfolio/pkg/timeseries"
)

// DrawdownSeries is the fractional decline from the running maximum,
// 0 at every new peak.
func DrawdownSeries(nav *timeseries.Series) *timeseries.Series {
	out := timeseries.NewSeries(nav.Len())
	runningMax := math.Inf(-1)
	for i := 0; i < nav.Len(); i++ {
		v := nav.Value(i)
		if v > runningMax {
			runningMax = v
		}
		dd := 0.0
		if runningMax != 0 {
			dd = (v - runningMax) / runningMax
		}
		out.Append(nav.Date(i), dd)
	}
	return out
}

// MaxDrawdown is the deepest decline from a running peak (a non-positive
// fraction).
func MaxDrawdown(nav *timeseries.Series) float64 {
	dd := DrawdownSeries(nav)
	min := 0.0
	for _, v := range dd.Values() {
		if v < min {
			min = v
		}
	}
	return min
}

// AvgDrawdown is the mean depth over days spent below a peak.
func AvgDrawdown(nav *timeseries.Series) float64 {
	dd := DrawdownSeries(nav)
	sum, n := 0.0, 0
	for _, v := range dd.Values() {
		if v < 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// DrawdownDuration holds the observation-count duration metrics of
// underwater periods.
type DrawdownDuration struct {
	MaxDrawdownDuration   float64 `json:"max_drawdown_duration"`
	LongestDrawdownPeriod float64 `json:"longest_drawdown_period"`
	AvgDrawdownDuration   float64 `json:"avg_drawdown_duration"`
}

// CalculateDrawdownDuration measures how long drawdowns last: the duration
// at the deepest point, the longest underwater stretch and the average
// completed stretch.
func CalculateDrawdownDuration(nav *timeseries.Series) DrawdownDuration {
	dd := DrawdownSeries(nav)

	var periods []int
	current, longest, atTrough := 0, 0, 0
	troughValue := 0.0
	for _, v := range dd.Values() {
		if v < 0 {
			current++
			if current > longest {
				longest = current
			}
			if v < troughValue {
				troughValue = v
				atTrough = current
			}
		} else {
			if current > 0 {
				periods = append(periods, current)
			}
			current = 0
		}
	}
	if current > 0 {
		periods = append(periods, current)
	}

	avg := 0.0
	if len(periods) > 0 {
		sum := 0
		for _, p := range periods {
			sum += p
		}
		avg = float64(sum) / float64(len(periods))
	}

	return DrawdownDuration{
		MaxDrawdownDuration:   float64(atTrough),
		LongestDrawdownPeriod: float64(longest),
		AvgDrawdownDuration:   avg,
	}
}

// Recovery describes the climb back from the deepest trough to its prior
// peak. RecoveryDays is +Inf and Recovered false when the peak was never
// regained.
type Recovery struct {
	RecoveryDays float64 `json:"recovery_days"`
	Recovered    bool    `json:"recovered"`
}

// RecoveryTime locates the deepest trough and counts calendar days until
// NAV first regains the peak that preceded it.
func RecoveryTime(nav *timeseries.Series) Recovery {
	if nav.Len() < 2 {
		return Recovery{}
	}

	dd := DrawdownSeries(nav)
	troughIdx, troughValue := 0, 0.0
	for i := 0; i < dd.Len(); i++ {
		if dd.Value(i) < troughValue {
			troughValue = dd.Value(i)
			troughIdx = i
		}
	}
	if troughValue == 0 {
		return Recovery{RecoveryDays: 0, Recovered: true}
	}

	peak := math.Inf(-1)
	for i := 0; i <= troughIdx; i++ {
		if nav.Value(i) > peak {
			peak = nav.Value(i)
		}
	}

	troughDate := nav.Date(troughIdx)
	for i := troughIdx + 1; i < nav.Len(); i++ {
		if nav.Value(i) >= peak {
			return Recovery{
				RecoveryDays: float64(troughDate.DaysBetween(nav.Date(i))),
				Recovered:    true,
			}
		}
	}
	return Recovery{RecoveryDays: math.Inf(1), Recovered: false}
}

// MaxDailyLoss is the worst single-period return.
func MaxDailyLoss(returns *timeseries.Series) float64 {
	if returns.Empty() {
		return 0
	}
	min := math.Inf(1)
	for _, v := range returns.Values() {
		if v < min {
			min = v
		}
	}
	return min
}

// MaxDailyGain is the best single-period return.
func MaxDailyGain(returns *timeseries.Series) float64 {
	if returns.Empty() {
		return 0
	}
	max := math.Inf(-1)
	for _, v := range returns.Values() {
		if v > max {
			max = v
		}
	}
	return max
}

// ConsecutiveLossDays is the longest losing streak.
func ConsecutiveLossDays(returns *timeseries.Series) int {
	return longestStreak(returns.Values(), func(r float64) bool { return r < 0 })
}

// ConsecutiveGainDays is the longest winning streak.
func ConsecutiveGainDays(returns *timeseries.Series) int {
	return longestStreak(returns.Values(), func(r float64) bool { return r > 0 })
}

func longestStreak(values []float64, match func(float64) bool) int {
	current, longest := 0, 0
	for _, v := range values {
		if match(v) {
			current++
			if current > longest {
				longest = current
			}
		} else {
			current = 0
		}
	}
	return longest
}

// UlcerIndex is the root mean square of percentage drawdowns, penalizing
// both depth and duration of declines.
func UlcerIndex(nav *timeseries.Series) float64 {
	dd := DrawdownSeries(nav)
	if dd.Empty() {
		return 0
	}
	sum := 0.0
	for _, v := range dd.Values() {
		pct := v * 100
		sum += pct * pct
	}
	return math.Sqrt(sum / float64(dd.Len()))
}
