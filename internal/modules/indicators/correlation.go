package indicators

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/quantfolio/quantfolio/pkg/formulas"
	"github.com/quantfolio/quantfolio/pkg/timeseries"
)

// Beta is Cov(portfolio, benchmark) / Var(benchmark) over the inner-joined
// observations.
func Beta(portfolio, benchmark *timeseries.Series) float64 {
	pv, bv := timeseries.Align(portfolio, benchmark)
	if len(pv) < 2 {
		return 0
	}
	variance := formulas.Variance(bv)
	if variance == 0 {
		return 0
	}
	return formulas.Covariance(pv, bv) / variance
}

// Alpha is annualized Jensen's alpha against the benchmark.
func Alpha(portfolio, benchmark *timeseries.Series, riskFreeRate float64) float64 {
	pv, bv := timeseries.Align(portfolio, benchmark)
	if len(pv) < 2 {
		return 0
	}
	variance := formulas.Variance(bv)
	beta := 0.0
	if variance != 0 {
		beta = formulas.Covariance(pv, bv) / variance
	}
	portAnnual := formulas.Mean(pv) * formulas.TradingDaysPerYear
	benchAnnual := formulas.Mean(bv) * formulas.TradingDaysPerYear
	return portAnnual - (riskFreeRate + beta*(benchAnnual-riskFreeRate))
}

// RSquared is the coefficient of determination of the portfolio regressed
// on the benchmark.
func RSquared(portfolio, benchmark *timeseries.Series) float64 {
	pv, bv := timeseries.Align(portfolio, benchmark)
	if len(pv) < 2 {
		return 0
	}
	r := formulas.Correlation(pv, bv)
	return r * r
}

// CorrelationTo is the Pearson correlation over common dates.
func CorrelationTo(portfolio, benchmark *timeseries.Series) float64 {
	pv, bv := timeseries.Align(portfolio, benchmark)
	return formulas.Correlation(pv, bv)
}

// TrackingError is the annualized standard deviation of excess returns.
func TrackingError(portfolio, benchmark *timeseries.Series) float64 {
	pv, bv := timeseries.Align(portfolio, benchmark)
	if len(pv) < 2 {
		return 0
	}
	excess := make([]float64, len(pv))
	for i := range pv {
		excess[i] = pv[i] - bv[i]
	}
	return formulas.StdDev(excess) * math.Sqrt(formulas.TradingDaysPerYear)
}

// InformationRatio is annualized mean excess return over tracking error.
func InformationRatio(portfolio, benchmark *timeseries.Series) float64 {
	pv, bv := timeseries.Align(portfolio, benchmark)
	if len(pv) < 2 {
		return 0
	}
	excess := make([]float64, len(pv))
	for i := range pv {
		excess[i] = pv[i] - bv[i]
	}
	te := formulas.StdDev(excess) * math.Sqrt(formulas.TradingDaysPerYear)
	if te == 0 {
		return 0
	}
	return formulas.Mean(excess) * formulas.TradingDaysPerYear / te
}

// UpsideCapture compares mean portfolio return to mean benchmark return on
// days the benchmark rose, in percent (above 100 means outperformance).
func UpsideCapture(portfolio, benchmark *timeseries.Series) float64 {
	return capture(portfolio, benchmark, func(b float64) bool { return b > 0 })
}

// DownsideCapture is the mirror on days the benchmark fell (below 100 means
// shallower losses).
func DownsideCapture(portfolio, benchmark *timeseries.Series) float64 {
	return capture(portfolio, benchmark, func(b float64) bool { return b < 0 })
}

func capture(portfolio, benchmark *timeseries.Series, match func(float64) bool) float64 {
	pv, bv := timeseries.Align(portfolio, benchmark)
	if len(pv) < 2 {
		return 0
	}
	var ps, bs []float64
	for i := range bv {
		if match(bv[i]) {
			ps = append(ps, pv[i])
			bs = append(bs, bv[i])
		}
	}
	if len(bs) == 0 {
		return 0
	}
	benchMean := stat.Mean(bs, nil)
	if benchMean == 0 {
		return 0
	}
	return stat.Mean(ps, nil) / benchMean * 100
}

// BenchmarkMetrics is the full benchmark-relative metric bundle.
type BenchmarkMetrics struct {
	Beta             float64 `json:"beta"`
	Alpha            float64 `json:"alpha"`
	RSquared         float64 `json:"r_squared"`
	Correlation      float64 `json:"correlation"`
	TrackingError    float64 `json:"tracking_error"`
	InformationRatio float64 `json:"information_ratio"`
	UpsideCapture    float64 `json:"upside_capture"`
	DownsideCapture  float64 `json:"downside_capture"`
	TreynorRatio     float64 `json:"treynor_ratio"`
	M2Measure        float64 `json:"m2_measure"`
}

// AllBenchmarkMetrics computes every benchmark-relative metric at once.
// With fewer than 2 overlapping observations everything defaults to 0.
func AllBenchmarkMetrics(portfolio, benchmark *timeseries.Series, riskFreeRate float64) BenchmarkMetrics {
	pv, _ := timeseries.Align(portfolio, benchmark)
	if len(pv) < 2 {
		return BenchmarkMetrics{}
	}

	beta := Beta(portfolio, benchmark)
	return BenchmarkMetrics{
		Beta:             beta,
		Alpha:            Alpha(portfolio, benchmark, riskFreeRate),
		RSquared:         RSquared(portfolio, benchmark),
		Correlation:      CorrelationTo(portfolio, benchmark),
		TrackingError:    TrackingError(portfolio, benchmark),
		InformationRatio: InformationRatio(portfolio, benchmark),
		UpsideCapture:    UpsideCapture(portfolio, benchmark),
		DownsideCapture:  DownsideCapture(portfolio, benchmark),
		TreynorRatio:     TreynorRatio(portfolio, beta, riskFreeRate),
		M2Measure:        M2Measure(portfolio, benchmark, riskFreeRate),
	}
}

// MultiBenchmarkMetrics evaluates the portfolio against several benchmark
// return series at once.
func MultiBenchmarkMetrics(portfolio *timeseries.Series, benchmarks map[string]*timeseries.Series, riskFreeRate float64) map[string]BenchmarkMetrics {
	out := make(map[string]BenchmarkMetrics, len(benchmarks))
	for name, benchmark := range benchmarks {
		out[name] = AllBenchmarkMetrics(portfolio, benchmark, riskFreeRate)
	}
	return out
}

// PairwiseCorrelationStats summarizes the pairwise correlation structure of
// aligned per-asset return columns.
type PairwiseCorrelationStats struct {
	Mean float64 `json:"mean_pairwise"`
	Max  float64 `json:"max_pairwise"`
	Min  float64 `json:"min_pairwise"`
}

// PairwiseCorrelations computes mean/max/min pairwise correlation from the
// upper triangle of the correlation matrix of aligned return columns.
func PairwiseCorrelations(symbols []string, rows [][]float64) PairwiseCorrelationStats {
	n := len(symbols)
	if n < 2 || len(rows) < 2 {
		return PairwiseCorrelationStats{}
	}

	cols := make([][]float64, n)
	for c := 0; c < n; c++ {
		col := make([]float64, len(rows))
		for r, row := range rows {
			col[r] = row[c]
		}
		cols[c] = col
	}

	var correlations []float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if r := formulas.Correlation(cols[i], cols[j]); r != 0 {
				correlations = append(correlations, r)
			}
		}
	}
	if len(correlations) == 0 {
		return PairwiseCorrelationStats{}
	}

	stats := PairwiseCorrelationStats{
		Mean: stat.Mean(correlations, nil),
		Max:  math.Inf(-1),
		Min:  math.Inf(1),
	}
	for _, r := range correlations {
		if r > stats.Max {
			stats.Max = r
		}
		if r < stats.Min {
			stats.Min = r
		}
	}
	return stats
}
