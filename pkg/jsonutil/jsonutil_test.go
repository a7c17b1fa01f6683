package jsonutil

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizePassesFiniteValuesThrough(t *testing.T) {
	out, err := json.Marshal(Sanitize(map[string]any{"sharpe": 1.25, "name": "main"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"sharpe": 1.25, "name": "main"}`, string(out))
}

func TestSanitizeReplacesInfinities(t *testing.T) {
	in := map[string]any{
		"omega":        math.Inf(1),
		"max_drawdown": -0.25,
		"nested":       map[string]float64{"recovery_days": math.Inf(1), "ulcer": 0.1},
		"series":       []float64{1, math.NaN(), 3},
	}

	out, err := json.Marshal(Sanitize(in))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"omega": null,
		"max_drawdown": -0.25,
		"nested": {"recovery_days": null, "ulcer": 0.1},
		"series": [1, null, 3]
	}`, string(out))
}

func TestSanitizeStructWithTags(t *testing.T) {
	type metrics struct {
		ProfitFactor float64 `json:"profit_factor"`
		WinRate      float64 `json:"win_rate"`
		Note         string  `json:"note,omitempty"`
	}

	out, err := json.Marshal(Sanitize(metrics{ProfitFactor: math.Inf(1), WinRate: 0.75}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"profit_factor": null, "win_rate": 0.75}`, string(out))
}
