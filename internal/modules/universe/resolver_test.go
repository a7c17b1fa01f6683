package universe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"us suffix stripped", "AAPL.US", "AAPL"},
		{"greek suffix remapped", "OPAP.GR", "OPAP.AT"},
		{"japanese suffix remapped", "7203.JP", "7203.T"},
		{"uk suffix remapped", "VOD.UK", "VOD.L"},
		{"german suffix passes through", "BASF.DE", "BASF.DE"},
		{"plain symbol uppercased", "msft", "MSFT"},
		{"whitespace trimmed", "  SPY ", "SPY"},
		{"long suffix untouched", "BRK.A", "BRK.A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSymbol(tt.input))
		})
	}
}

func TestResolveAllDeduplicates(t *testing.T) {
	r := &Resolver{}
	got := r.ResolveAll([]string{"AAPL.US", "aapl", "", "MSFT", "MSFT"})
	assert.Equal(t, []string{"AAPL", "MSFT"}, got)
}
