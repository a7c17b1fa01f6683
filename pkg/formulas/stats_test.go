package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateReturns(t *testing.T) {
	prices := []float64{100, 110, 99}
	returns := CalculateReturns(prices)

	assert.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-12)
	assert.InDelta(t, -0.10, returns[1], 1e-12)

	assert.Empty(t, CalculateReturns([]float64{100}))
}

func TestPercentileInterpolates(t *testing.T) {
	data := []float64{4, 1, 3, 2}

	assert.Equal(t, 1.0, Percentile(data, 0))
	assert.Equal(t, 4.0, Percentile(data, 100))
	assert.InDelta(t, 2.5, Percentile(data, 50), 1e-12)
	assert.InDelta(t, 1.15, Percentile(data, 5), 1e-12)
}

func TestSkewnessAndKurtosisDegenerate(t *testing.T) {
	flat := []float64{1, 1, 1, 1, 1}
	assert.Equal(t, 0.0, Skewness(flat))
	assert.Equal(t, 0.0, ExcessKurtosis(flat))

	assert.Equal(t, 0.0, Skewness([]float64{1, 2}))
	assert.Equal(t, 0.0, ExcessKurtosis([]float64{1, 2, 3}))
}

func TestSkewnessSign(t *testing.T) {
	rightTail := []float64{1, 1, 1, 1, 10}
	leftTail := []float64{-10, 1, 1, 1, 1}

	assert.Greater(t, Skewness(rightTail), 0.0)
	assert.Less(t, Skewness(leftTail), 0.0)
}

func TestCorrelationDefensive(t *testing.T) {
	assert.Equal(t, 0.0, Correlation([]float64{1}, []float64{1}))
	assert.Equal(t, 0.0, Correlation([]float64{1, 2}, []float64{1}))
	assert.InDelta(t, 1.0, Correlation([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-12)
}
