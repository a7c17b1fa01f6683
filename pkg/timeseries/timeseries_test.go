package timeseries

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDateAddMonthsClampsDayOfMonth(t *testing.T) {
	tests := []struct {
		name   string
		start  string
		months int
		want   string
	}{
		{"simple step", "2024-03-15", 1, "2024-04-15"},
		{"backward step", "2024-03-15", -1, "2024-02-15"},
		{"clamp to february", "2024-01-31", 1, "2024-02-29"},
		{"clamp non-leap", "2023-01-31", 1, "2023-02-28"},
		{"year rollover", "2023-11-30", 3, "2024-02-29"},
		{"backward across year", "2024-01-31", -2, "2023-11-30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MustParseDate(tt.start).AddMonths(tt.months)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestSeriesAppendKeepsSortedAndReplaces(t *testing.T) {
	s := NewSeries(4)
	s.Append(MustParseDate("2024-01-03"), 3)
	s.Append(MustParseDate("2024-01-01"), 1)
	s.Append(MustParseDate("2024-01-02"), 2)
	s.Append(MustParseDate("2024-01-01"), 10) // overwrite

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []float64{10, 2, 3}, s.Values())

	first, v := s.First()
	assert.Equal(t, "2024-01-01", first.String())
	assert.Equal(t, 10.0, v)
}

func TestSeriesPctChange(t *testing.T) {
	s := NewSeries(3)
	s.Append(MustParseDate("2024-01-01"), 100)
	s.Append(MustParseDate("2024-01-02"), 110)
	s.Append(MustParseDate("2024-01-03"), 99)

	r := s.PctChange()
	assert.Equal(t, 2, r.Len())
	assert.InDelta(t, 0.10, r.Value(0), 1e-12)
	assert.InDelta(t, -0.10, r.Value(1), 1e-12)
}

func TestSeriesAtOrBefore(t *testing.T) {
	s := NewSeries(2)
	s.Append(MustParseDate("2024-01-01"), 1)
	s.Append(MustParseDate("2024-01-05"), 5)

	d, v, ok := s.AtOrBefore(MustParseDate("2024-01-04"))
	assert.True(t, ok)
	assert.Equal(t, "2024-01-01", d.String())
	assert.Equal(t, 1.0, v)

	_, _, ok = s.AtOrBefore(MustParseDate("2023-12-31"))
	assert.False(t, ok)
}

func TestAlignInnerJoin(t *testing.T) {
	a := NewSeries(3)
	a.Append(MustParseDate("2024-01-01"), 1)
	a.Append(MustParseDate("2024-01-02"), 2)
	a.Append(MustParseDate("2024-01-03"), 3)

	b := NewSeries(2)
	b.Append(MustParseDate("2024-01-02"), 20)
	b.Append(MustParseDate("2024-01-04"), 40)

	av, bv := Align(a, b)
	assert.Equal(t, []float64{2}, av)
	assert.Equal(t, []float64{20}, bv)
}

func TestFrameFillAndDrop(t *testing.T) {
	a := NewSeries(2)
	a.Append(MustParseDate("2024-01-01"), 10)
	a.Append(MustParseDate("2024-01-03"), 12)

	b := NewSeries(2)
	b.Append(MustParseDate("2024-01-02"), 5)
	b.Append(MustParseDate("2024-01-03"), 6)

	f := NewFrame(map[string]*Series{"A": a, "B": b})
	assert.Equal(t, 3, f.Len())

	// A missing on the 2nd, B missing on the 1st before filling.
	_, ok := f.At(MustParseDate("2024-01-02"), "A")
	assert.False(t, ok)

	f.ForwardFill().BackFill()

	v, ok := f.At(MustParseDate("2024-01-02"), "A")
	assert.True(t, ok)
	assert.Equal(t, 10.0, v)

	v, ok = f.At(MustParseDate("2024-01-01"), "B")
	assert.True(t, ok)
	assert.Equal(t, 5.0, v)
}

func TestFrameAtOrBefore(t *testing.T) {
	a := NewSeries(2)
	a.Append(MustParseDate("2024-01-01"), 10)
	a.Append(MustParseDate("2024-01-05"), 12)

	f := NewFrame(map[string]*Series{"A": a})

	// Off-axis date carries the last value before it.
	v, ok := f.AtOrBefore(MustParseDate("2024-01-03"), "A")
	assert.True(t, ok)
	assert.Equal(t, 10.0, v)

	// Dates past the axis carry the final value.
	v, ok = f.AtOrBefore(MustParseDate("2024-02-01"), "A")
	assert.True(t, ok)
	assert.Equal(t, 12.0, v)

	_, ok = f.AtOrBefore(MustParseDate("2023-12-31"), "A")
	assert.False(t, ok)

	_, ok = f.AtOrBefore(MustParseDate("2024-01-03"), "B")
	assert.False(t, ok)
}

func TestFrameReturnsDropsIncompleteRows(t *testing.T) {
	a := NewSeries(3)
	a.Append(MustParseDate("2024-01-01"), 100)
	a.Append(MustParseDate("2024-01-02"), 110)
	a.Append(MustParseDate("2024-01-03"), 121)

	b := NewSeries(3)
	b.Append(MustParseDate("2024-01-01"), 50)
	b.Append(MustParseDate("2024-01-03"), 55)

	f := NewFrame(map[string]*Series{"A": a, "B": b})
	symbols, rows := f.Returns()
	assert.Equal(t, []string{"A", "B"}, symbols)
	// Only the 01-02 -> 01-03 row is complete for A; B has a hole on 01-02,
	// so both return rows touching it are dropped.
	assert.Len(t, rows, 0)

	f.ForwardFill()
	_, rows = f.Returns()
	assert.Len(t, rows, 2)
	assert.InDelta(t, 0.10, rows[0][0], 1e-12)
	assert.Equal(t, 0.0, rows[0][1])
}

func TestFrameDropEmptyRows(t *testing.T) {
	a := NewSeries(1)
	a.Append(MustParseDate("2024-01-02"), 1)
	f := NewFrame(map[string]*Series{"A": a})
	f.cells[0][0] = math.NaN()
	f.DropEmptyRows()
	assert.True(t, f.Empty())
}
