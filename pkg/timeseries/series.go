package timeseries

import (
	"slices"
	"sort"
)

// Series is a chronological sequence of float64 values keyed by Date.
// Dates are unique and the series is always sorted; appending to an existing
// date overwrites the previous value.
type Series struct {
	dates  []Date
	values []float64
}

// NewSeries returns an empty series with capacity for n points.
func NewSeries(n int) *Series {
	return &Series{
		dates:  make([]Date, 0, n),
		values: make([]float64, 0, n),
	}
}

// Len returns the number of points in the series.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.dates)
}

// Empty reports whether the series has no points.
func (s *Series) Empty() bool { return s.Len() == 0 }

// Append adds a point, keeping the series sorted. An existing value at the
// same date is replaced.
func (s *Series) Append(on Date, v float64) *Series {
	if i := slices.IndexFunc(s.dates, on.Equal); i >= 0 {
		s.values[i] = v
		return s
	}
	if n := len(s.dates); n == 0 || s.dates[n-1].Before(on) {
		// Common case: points arrive in chronological order.
		s.dates = append(s.dates, on)
		s.values = append(s.values, v)
		return s
	}
	i := sort.Search(len(s.dates), func(i int) bool { return on.Before(s.dates[i]) })
	s.dates = append(s.dates[:i], append([]Date{on}, s.dates[i:]...)...)
	s.values = append(s.values[:i], append([]float64{v}, s.values[i:]...)...)
	return s
}

// At returns the value at the given date.
func (s *Series) At(on Date) (float64, bool) {
	i := sort.Search(s.Len(), func(i int) bool { return !s.dates[i].Before(on) })
	if i < s.Len() && s.dates[i].Equal(on) {
		return s.values[i], true
	}
	return 0, false
}

// AtOrBefore returns the value at the latest date not after the given date.
func (s *Series) AtOrBefore(on Date) (Date, float64, bool) {
	i := sort.Search(s.Len(), func(i int) bool { return s.dates[i].After(on) })
	if i == 0 {
		return Date{}, 0, false
	}
	return s.dates[i-1], s.values[i-1], true
}

// Date returns the i-th date.
func (s *Series) Date(i int) Date { return s.dates[i] }

// Value returns the i-th value.
func (s *Series) Value(i int) float64 { return s.values[i] }

// First returns the earliest point.
func (s *Series) First() (Date, float64) {
	if s.Empty() {
		return Date{}, 0
	}
	return s.dates[0], s.values[0]
}

// Last returns the latest point.
func (s *Series) Last() (Date, float64) {
	if s.Empty() {
		return Date{}, 0
	}
	n := s.Len() - 1
	return s.dates[n], s.values[n]
}

// Dates returns a copy of the date axis.
func (s *Series) Dates() []Date {
	return slices.Clone(s.dates)
}

// Values returns a copy of the values in chronological order.
func (s *Series) Values() []float64 {
	if s == nil {
		return nil
	}
	return slices.Clone(s.values)
}

// Clip returns the sub-series within [from, to] inclusive.
func (s *Series) Clip(from, to Date) *Series {
	out := NewSeries(s.Len())
	for i, d := range s.dates {
		if d.Before(from) || d.After(to) {
			continue
		}
		out.dates = append(out.dates, d)
		out.values = append(out.values, s.values[i])
	}
	return out
}

// From returns the sub-series with dates on or after the given date.
func (s *Series) From(on Date) *Series {
	i := sort.Search(s.Len(), func(i int) bool { return !s.dates[i].Before(on) })
	out := NewSeries(s.Len() - i)
	out.dates = append(out.dates, s.dates[i:]...)
	out.values = append(out.values, s.values[i:]...)
	return out
}

// PctChange returns the day-over-day simple returns series. It has one fewer
// point than the source; zero-valued predecessors are skipped.
func (s *Series) PctChange() *Series {
	out := NewSeries(s.Len())
	for i := 1; i < s.Len(); i++ {
		prev := s.values[i-1]
		if prev == 0 {
			continue
		}
		out.Append(s.dates[i], s.values[i]/prev-1)
	}
	return out
}

// Align inner-joins two series on their common dates, returning parallel
// value slices in chronological order.
func Align(a, b *Series) (av, bv []float64) {
	for i := 0; i < a.Len(); i++ {
		if v, ok := b.At(a.dates[i]); ok {
			av = append(av, a.values[i])
			bv = append(bv, v)
		}
	}
	return av, bv
}

// Clone returns a deep copy of the series.
func (s *Series) Clone() *Series {
	return &Series{dates: slices.Clone(s.dates), values: slices.Clone(s.values)}
}

// ToMap returns the series as a date-string keyed map, the shape used in JSON
// responses.
func (s *Series) ToMap() map[string]float64 {
	out := make(map[string]float64, s.Len())
	for i, d := range s.dates {
		out[d.String()] = s.values[i]
	}
	return out
}
