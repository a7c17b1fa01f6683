package indicators

import (
	"math"
	"sort"

	"github.com/quantfolio/quantfolio/pkg/formulas"
	"github.com/quantfolio/quantfolio/pkg/timeseries"
)

// Weights converts holdings and prices into value-proportional weights.
func Weights(holdings, prices map[string]float64) map[string]float64 {
	values := make(map[string]float64)
	total := 0.0
	for sym, qty := range holdings {
		if price, ok := prices[sym]; ok && qty != 0 {
			values[sym] = qty * price
			total += qty * price
		}
	}
	if total == 0 {
		return map[string]float64{}
	}
	weights := make(map[string]float64, len(values))
	for sym, v := range values {
		weights[sym] = v / total
	}
	return weights
}

// HHI is the Herfindahl-Hirschman concentration index, Σ w².
func HHI(weights map[string]float64) float64 {
	sum := 0.0
	for _, w := range weights {
		sum += w * w
	}
	return sum
}

// TopNConcentration sums the N largest weights.
func TopNConcentration(weights map[string]float64, n int) float64 {
	if len(weights) == 0 {
		return 0
	}
	sorted := make([]float64, 0, len(weights))
	for _, w := range weights {
		sorted = append(sorted, w)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	if n > len(sorted) {
		n = len(sorted)
	}
	sum := 0.0
	for _, w := range sorted[:n] {
		sum += w
	}
	return sum
}

// MaxWeight is the largest single position weight.
func MaxWeight(weights map[string]float64) float64 {
	max := 0.0
	for _, w := range weights {
		if w > max {
			max = w
		}
	}
	return max
}

// WeightDeviationFromEqual sums absolute deviations from an equal-weight
// portfolio.
func WeightDeviationFromEqual(weights map[string]float64) float64 {
	n := len(weights)
	if n == 0 {
		return 0
	}
	equal := 1.0 / float64(n)
	sum := 0.0
	for _, w := range weights {
		sum += math.Abs(w - equal)
	}
	return sum
}

// GroupAllocation aggregates weights by a symbol grouping (sector,
// industry). Unmapped symbols fall into "Unknown".
func GroupAllocation(holdings, prices map[string]float64, groupMap map[string]string) map[string]float64 {
	if len(groupMap) == 0 {
		return map[string]float64{}
	}
	out := make(map[string]float64)
	for sym, w := range Weights(holdings, prices) {
		group, ok := groupMap[sym]
		if !ok {
			group = "Unknown"
		}
		out[group] += w
	}
	return out
}

// Exposure splits gross exposure into long and short fractions.
type Exposure struct {
	LongExposure  float64 `json:"long_exposure"`
	ShortExposure float64 `json:"short_exposure"`
	NetExposure   float64 `json:"net_exposure"`
}

// LongShortExposure measures the long/short split of gross market value;
// negative quantities count as short exposure.
func LongShortExposure(holdings, prices map[string]float64) Exposure {
	long, short := 0.0, 0.0
	for sym, qty := range holdings {
		price, ok := prices[sym]
		if !ok {
			continue
		}
		value := qty * price
		if value > 0 {
			long += value
		} else {
			short += -value
		}
	}
	gross := long + short
	if gross == 0 {
		return Exposure{}
	}
	return Exposure{
		LongExposure:  long / gross,
		ShortExposure: short / gross,
		NetExposure:   (long - short) / gross,
	}
}

// covarianceFromHistory builds the annualized covariance matrix over the
// weighted symbols present in the price history, with the weight vector
// renormalized over those symbols.
func covarianceFromHistory(weights map[string]float64, priceHistory *timeseries.Frame) (symbols []string, w []float64, cov [][]float64, ok bool) {
	if len(weights) == 0 || priceHistory == nil || priceHistory.Empty() {
		return nil, nil, nil, false
	}

	for _, sym := range priceHistory.Symbols() {
		if _, present := weights[sym]; present {
			symbols = append(symbols, sym)
		}
	}
	if len(symbols) == 0 {
		return nil, nil, nil, false
	}

	retSymbols, rows := priceHistory.Returns()
	if len(rows) < 2 {
		return nil, nil, nil, false
	}
	colIdx := make(map[string]int, len(retSymbols))
	for i, sym := range retSymbols {
		colIdx[sym] = i
	}

	cols := make([][]float64, len(symbols))
	for i, sym := range symbols {
		c, present := colIdx[sym]
		if !present {
			return nil, nil, nil, false
		}
		col := make([]float64, len(rows))
		for r, row := range rows {
			col[r] = row[c]
		}
		cols[i] = col
	}

	cov = make([][]float64, len(symbols))
	for i := range symbols {
		cov[i] = make([]float64, len(symbols))
		for j := range symbols {
			cov[i][j] = formulas.Covariance(cols[i], cols[j]) * formulas.TradingDaysPerYear
		}
	}

	w = make([]float64, len(symbols))
	total := 0.0
	for i, sym := range symbols {
		w[i] = weights[sym]
		total += weights[sym]
	}
	if total == 0 {
		return nil, nil, nil, false
	}
	for i := range w {
		w[i] /= total
	}
	return symbols, w, cov, true
}

func portfolioVariance(w []float64, cov [][]float64) float64 {
	variance := 0.0
	for i := range w {
		for j := range w {
			variance += w[i] * cov[i][j] * w[j]
		}
	}
	return variance
}

// PortfolioVolatility is the annualized volatility implied by weights and
// the asset covariance matrix.
func PortfolioVolatility(weights map[string]float64, priceHistory *timeseries.Frame) float64 {
	_, w, cov, ok := covarianceFromHistory(weights, priceHistory)
	if !ok {
		return 0
	}
	return math.Sqrt(portfolioVariance(w, cov))
}

// MCTR is each asset's marginal contribution to portfolio risk:
// (Σw)_i / σ_p.
func MCTR(weights map[string]float64, priceHistory *timeseries.Frame) map[string]float64 {
	symbols, w, cov, ok := covarianceFromHistory(weights, priceHistory)
	if !ok {
		return map[string]float64{}
	}
	vol := math.Sqrt(portfolioVariance(w, cov))

	out := make(map[string]float64, len(symbols))
	for i, sym := range symbols {
		if vol == 0 {
			out[sym] = 0
			continue
		}
		covW := 0.0
		for j := range w {
			covW += cov[i][j] * w[j]
		}
		out[sym] = covW / vol
	}
	return out
}

// AssetRiskContribution decomposes one asset's share of portfolio risk.
type AssetRiskContribution struct {
	MCTR                float64 `json:"mctr"`
	RiskContribution    float64 `json:"risk_contribution"`
	PctRiskContribution float64 `json:"pct_risk_contribution"`
}

// RiskContributionByAsset returns each asset's marginal, absolute and
// fractional contribution to portfolio volatility.
func RiskContributionByAsset(weights map[string]float64, priceHistory *timeseries.Frame) map[string]AssetRiskContribution {
	symbols, w, cov, ok := covarianceFromHistory(weights, priceHistory)
	if !ok {
		return map[string]AssetRiskContribution{}
	}
	vol := math.Sqrt(portfolioVariance(w, cov))

	out := make(map[string]AssetRiskContribution, len(symbols))
	for i, sym := range symbols {
		if vol == 0 {
			out[sym] = AssetRiskContribution{}
			continue
		}
		covW := 0.0
		for j := range w {
			covW += cov[i][j] * w[j]
		}
		mctr := covW / vol
		contribution := w[i] * mctr
		out[sym] = AssetRiskContribution{
			MCTR:                mctr,
			RiskContribution:    contribution,
			PctRiskContribution: contribution / vol,
		}
	}
	return out
}

// RiskContributionBySector aggregates fractional risk contributions by
// sector.
func RiskContributionBySector(weights map[string]float64, priceHistory *timeseries.Frame, sectorMap map[string]string) map[string]float64 {
	if len(sectorMap) == 0 {
		return map[string]float64{}
	}
	out := make(map[string]float64)
	for sym, contribution := range RiskContributionByAsset(weights, priceHistory) {
		sector, ok := sectorMap[sym]
		if !ok {
			sector = "Unknown"
		}
		out[sector] += contribution.PctRiskContribution
	}
	return out
}
