package indicators

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/quantfolio/quantfolio/pkg/formulas"
)

// Mean-variance portfolio optimization: global minimum variance, maximum
// Sharpe (tangent) and the efficient frontier between them. Closed-form
// solutions apply when short selling is allowed; with the long-only
// constraint an active-set loop clamps negative weights and re-solves the
// reduced problem.

const (
	covRegularization = 1e-8
	frontierPoints    = 50
	minFrontierRows   = 30
)

// PortfolioPoint is one portfolio on the return/risk plane.
type PortfolioPoint struct {
	ExpectedReturn float64            `json:"expected_return"`
	Volatility     float64            `json:"volatility"`
	SharpeRatio    float64            `json:"sharpe_ratio"`
	Weights        map[string]float64 `json:"weights"`
}

// AssetStat is one asset's standalone annualized return and volatility.
type AssetStat struct {
	ExpectedReturn float64 `json:"expected_return"`
	Volatility     float64 `json:"volatility"`
}

// FrontierAnalysis is the full efficient frontier report.
type FrontierAnalysis struct {
	FrontierPoints    []PortfolioPoint     `json:"frontier_points"`
	GMVPortfolio      PortfolioPoint       `json:"gmv_portfolio"`
	TangentPortfolio  *PortfolioPoint      `json:"tangent_portfolio"`
	CurrentPortfolio  PortfolioPoint       `json:"current_portfolio"`
	AssetStats        map[string]AssetStat `json:"asset_stats"`
	AllowShortSelling bool                 `json:"allow_short_selling"`
}

// ExpectedReturns annualizes the per-column mean of daily return rows.
func ExpectedReturns(symbols []string, rows [][]float64) []float64 {
	mu := make([]float64, len(symbols))
	if len(rows) == 0 {
		return mu
	}
	for c := range symbols {
		sum := 0.0
		for _, row := range rows {
			sum += row[c]
		}
		mu[c] = sum / float64(len(rows)) * formulas.TradingDaysPerYear
	}
	return mu
}

// CovarianceMatrix builds the annualized sample covariance of daily return
// rows.
func CovarianceMatrix(symbols []string, rows [][]float64) *mat.SymDense {
	n := len(symbols)
	cov := mat.NewSymDense(n, nil)
	if len(rows) < 2 {
		return cov
	}
	cols := make([][]float64, n)
	for c := 0; c < n; c++ {
		col := make([]float64, len(rows))
		for r, row := range rows {
			col[r] = row[c]
		}
		cols[c] = col
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, formulas.Covariance(cols[i], cols[j])*formulas.TradingDaysPerYear)
		}
	}
	return cov
}

func regularized(cov *mat.SymDense) *mat.SymDense {
	n := cov.SymmetricDim()
	reg := mat.NewSymDense(n, nil)
	reg.CopySym(cov)
	for i := 0; i < n; i++ {
		reg.SetSym(i, i, reg.At(i, i)+covRegularization)
	}
	return reg
}

func portfolioReturn(w, mu []float64) float64 {
	sum := 0.0
	for i := range w {
		sum += w[i] * mu[i]
	}
	return sum
}

func portfolioVolatilityMat(w []float64, cov *mat.SymDense) float64 {
	variance := 0.0
	for i := range w {
		for j := range w {
			variance += w[i] * cov.At(i, j) * w[j]
		}
	}
	if variance <= 0 {
		return 0
	}
	return math.Sqrt(variance)
}

func portfolioSharpe(w, mu []float64, cov *mat.SymDense, riskFreeRate float64) float64 {
	vol := portfolioVolatilityMat(w, cov)
	if vol == 0 {
		return 0
	}
	return (portfolioReturn(w, mu) - riskFreeRate) / vol
}

func weightsMap(symbols []string, w []float64) map[string]float64 {
	out := make(map[string]float64, len(symbols))
	for i, sym := range symbols {
		out[sym] = w[i]
	}
	return out
}

// solveLinear solves cov_sub * x = rhs over the given index subset using a
// Cholesky factorization; ok is false when the submatrix is not positive
// definite.
func solveLinear(cov *mat.SymDense, idx []int, rhs []float64) ([]float64, bool) {
	n := len(idx)
	sub := mat.NewSymDense(n, nil)
	for a := 0; a < n; a++ {
		for b := a; b < n; b++ {
			sub.SetSym(a, b, cov.At(idx[a], idx[b]))
		}
	}
	var chol mat.Cholesky
	if !chol.Factorize(sub) {
		return nil, false
	}
	var x mat.VecDense
	if err := chol.SolveVecTo(&x, mat.NewVecDense(n, rhs)); err != nil {
		return nil, false
	}
	out := make([]float64, n)
	for a := 0; a < n; a++ {
		out[a] = x.AtVec(a)
	}
	return out, true
}

// GMVPortfolio computes the global minimum variance portfolio,
// w = Σ⁻¹1 / 1ᵀΣ⁻¹1, clamping negative weights when short selling is off.
func GMVPortfolio(symbols []string, cov *mat.SymDense, allowShort bool) []float64 {
	n := len(symbols)
	reg := regularized(cov)

	free := make([]int, n)
	for i := range free {
		free[i] = i
	}

	for len(free) > 0 {
		ones := make([]float64, len(free))
		for i := range ones {
			ones[i] = 1
		}
		z, ok := solveLinear(reg, free, ones)
		if !ok {
			break
		}
		total := 0.0
		for _, v := range z {
			total += v
		}
		if total == 0 {
			break
		}
		w := make([]float64, n)
		worst, worstVal := -1, 0.0
		for i, g := range free {
			w[g] = z[i] / total
			if !allowShort && w[g] < worstVal {
				worst, worstVal = i, w[g]
			}
		}
		if allowShort || worst < 0 {
			return w
		}
		free = append(free[:worst], free[worst+1:]...)
	}

	// Degenerate fallback: equal weight.
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}

// TangentPortfolio computes the maximum Sharpe portfolio,
// w = Σ⁻¹(μ-rf) / 1ᵀΣ⁻¹(μ-rf). Returns nil when no asset beats the
// risk-free rate or the solution has a non-positive Sharpe.
func TangentPortfolio(symbols []string, mu []float64, cov *mat.SymDense, riskFreeRate float64, allowShort bool) *PortfolioPoint {
	n := len(symbols)
	excess := make([]float64, n)
	anyPositive := false
	for i := range mu {
		excess[i] = mu[i] - riskFreeRate
		if excess[i] > 0 {
			anyPositive = true
		}
	}
	if !anyPositive {
		return nil
	}

	reg := regularized(cov)
	free := make([]int, n)
	for i := range free {
		free[i] = i
	}

	for len(free) > 0 {
		rhs := make([]float64, len(free))
		for i, g := range free {
			rhs[i] = excess[g]
		}
		z, ok := solveLinear(reg, free, rhs)
		if !ok {
			return nil
		}
		denom := 0.0
		for _, v := range z {
			denom += v
		}
		if math.Abs(denom) < 1e-10 {
			return nil
		}
		w := make([]float64, n)
		worst, worstVal := -1, 0.0
		for i, g := range free {
			w[g] = z[i] / denom
			if !allowShort && w[g] < worstVal {
				worst, worstVal = i, w[g]
			}
		}
		if allowShort || worst < 0 {
			sharpe := portfolioSharpe(w, mu, cov, riskFreeRate)
			if !allowShort && sharpe <= 0 {
				return nil
			}
			return &PortfolioPoint{
				ExpectedReturn: portfolioReturn(w, mu),
				Volatility:     portfolioVolatilityMat(w, cov),
				SharpeRatio:    sharpe,
				Weights:        weightsMap(symbols, w),
			}
		}
		free = append(free[:worst], free[worst+1:]...)
	}
	return nil
}

// solveTargetReturn minimizes variance subject to full investment and a
// target expected return, over a subset of free assets. The KKT system
// [2Σ Aᵀ; A 0] [w λ] = [0 b] is solved with a dense LU.
func solveTargetReturn(cov *mat.SymDense, mu []float64, idx []int, target float64) ([]float64, bool) {
	n := len(idx)
	if n < 2 {
		return nil, false
	}
	dim := n + 2
	kkt := mat.NewDense(dim, dim, nil)
	rhs := mat.NewVecDense(dim, nil)
	for a := 0; a < n; a++ {
		for b := 0; b < n; b++ {
			kkt.Set(a, b, 2*cov.At(idx[a], idx[b]))
		}
		kkt.Set(a, n, 1)
		kkt.Set(a, n+1, mu[idx[a]])
		kkt.Set(n, a, 1)
		kkt.Set(n+1, a, mu[idx[a]])
	}
	rhs.SetVec(n, 1)
	rhs.SetVec(n+1, target)

	var x mat.VecDense
	if err := x.SolveVec(kkt, rhs); err != nil {
		return nil, false
	}
	out := make([]float64, n)
	for a := 0; a < n; a++ {
		out[a] = x.AtVec(a)
	}
	return out, true
}

// EfficientPortfolioForReturn finds the minimum variance portfolio with the
// given target expected return. Returns nil when the target is infeasible.
func EfficientPortfolioForReturn(symbols []string, mu []float64, cov *mat.SymDense, target float64, allowShort bool) *PortfolioPoint {
	n := len(symbols)
	if n == 0 {
		return nil
	}
	if !allowShort {
		lo, hi := mu[0], mu[0]
		for _, m := range mu[1:] {
			lo = math.Min(lo, m)
			hi = math.Max(hi, m)
		}
		if target < lo || target > hi {
			return nil
		}
	}

	free := make([]int, n)
	for i := range free {
		free[i] = i
	}

	for len(free) >= 2 {
		z, ok := solveTargetReturn(cov, mu, free, target)
		if !ok {
			return nil
		}
		w := make([]float64, n)
		worst, worstVal := -1, -1e-12
		for i, g := range free {
			w[g] = z[i]
			if !allowShort && w[g] < worstVal {
				worst, worstVal = i, w[g]
			}
		}
		if allowShort || worst < 0 {
			return &PortfolioPoint{
				ExpectedReturn: portfolioReturn(w, mu),
				Volatility:     portfolioVolatilityMat(w, cov),
				Weights:        weightsMap(symbols, w),
			}
		}
		free = append(free[:worst], free[worst+1:]...)
	}
	return nil
}

// GenerateEfficientFrontier sweeps target returns from the GMV return up to
// the best asset return (stretched by half when shorting is allowed),
// keeping the feasible points.
func GenerateEfficientFrontier(symbols []string, mu []float64, cov *mat.SymDense, numPoints int, riskFreeRate float64, allowShort bool) []PortfolioPoint {
	if len(symbols) == 0 || numPoints < 2 {
		return nil
	}
	gmvW := GMVPortfolio(symbols, cov, allowShort)
	start := portfolioReturn(gmvW, mu)

	end := mu[0]
	for _, m := range mu[1:] {
		end = math.Max(end, m)
	}
	if allowShort {
		end *= 1.5
	}

	step := (end - start) / float64(numPoints-1)
	points := make([]PortfolioPoint, 0, numPoints)
	for i := 0; i < numPoints; i++ {
		target := start + step*float64(i)
		point := EfficientPortfolioForReturn(symbols, mu, cov, target, allowShort)
		if point == nil {
			continue
		}
		w := make([]float64, len(symbols))
		for j, sym := range symbols {
			w[j] = point.Weights[sym]
		}
		point.SharpeRatio = portfolioSharpe(w, mu, cov, riskFreeRate)
		points = append(points, *point)
	}
	return points
}

// CurrentPortfolioPosition places the live portfolio on the return/risk
// plane, renormalizing its weights over the covariance universe.
func CurrentPortfolioPosition(symbols []string, mu []float64, cov *mat.SymDense, weights map[string]float64, riskFreeRate float64) PortfolioPoint {
	if len(weights) == 0 || len(symbols) == 0 {
		return PortfolioPoint{Weights: weights}
	}
	w := make([]float64, len(symbols))
	total := 0.0
	for i, sym := range symbols {
		w[i] = weights[sym]
		total += w[i]
	}
	if total > 0 {
		for i := range w {
			w[i] /= total
		}
	}
	return PortfolioPoint{
		ExpectedReturn: portfolioReturn(w, mu),
		Volatility:     portfolioVolatilityMat(w, cov),
		SharpeRatio:    portfolioSharpe(w, mu, cov, riskFreeRate),
		Weights:        weightsMap(symbols, w),
	}
}

// AssetStatistics reports each asset's standalone annualized return and
// volatility.
func AssetStatistics(symbols []string, mu []float64, cov *mat.SymDense) map[string]AssetStat {
	out := make(map[string]AssetStat, len(symbols))
	for i, sym := range symbols {
		out[sym] = AssetStat{
			ExpectedReturn: mu[i],
			Volatility:     math.Sqrt(math.Max(cov.At(i, i), 0)),
		}
	}
	return out
}

// EfficientFrontierAnalysis is the entry point: from aligned daily return
// rows and the current weights it builds the whole frontier report. Returns
// nil with fewer than 2 assets, fewer than 30 return rows, or fewer than 2
// held symbols present in the history.
func EfficientFrontierAnalysis(retSymbols []string, rows [][]float64, currentWeights map[string]float64, riskFreeRate float64, allowShort bool, numPoints int) *FrontierAnalysis {
	if len(retSymbols) < 2 || len(rows) < minFrontierRows {
		return nil
	}
	if numPoints <= 0 {
		numPoints = frontierPoints
	}

	colIdx := make(map[string]int, len(retSymbols))
	for i, sym := range retSymbols {
		colIdx[sym] = i
	}
	var symbols []string
	for sym := range currentWeights {
		if _, ok := colIdx[sym]; ok {
			symbols = append(symbols, sym)
		}
	}
	if len(symbols) < 2 {
		return nil
	}
	sort.Strings(symbols)

	subRows := make([][]float64, len(rows))
	for r, row := range rows {
		sub := make([]float64, len(symbols))
		for c, sym := range symbols {
			sub[c] = row[colIdx[sym]]
		}
		subRows[r] = sub
	}

	mu := ExpectedReturns(symbols, subRows)
	cov := CovarianceMatrix(symbols, subRows)

	gmvW := GMVPortfolio(symbols, cov, allowShort)
	gmv := PortfolioPoint{
		ExpectedReturn: portfolioReturn(gmvW, mu),
		Volatility:     portfolioVolatilityMat(gmvW, cov),
		SharpeRatio:    portfolioSharpe(gmvW, mu, cov, riskFreeRate),
		Weights:        weightsMap(symbols, gmvW),
	}

	return &FrontierAnalysis{
		FrontierPoints:    GenerateEfficientFrontier(symbols, mu, cov, numPoints, riskFreeRate, allowShort),
		GMVPortfolio:      gmv,
		TangentPortfolio:  TangentPortfolio(symbols, mu, cov, riskFreeRate, allowShort),
		CurrentPortfolio:  CurrentPortfolioPosition(symbols, mu, cov, currentWeights, riskFreeRate),
		AssetStats:        AssetStatistics(symbols, mu, cov),
		AllowShortSelling: allowShort,
	}
}
