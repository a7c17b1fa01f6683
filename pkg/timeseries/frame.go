package timeseries

import (
	"math"
	"slices"
	"sort"
)

// Frame is a date-by-symbol matrix of float64 values with NaN marking missing
// cells. It is the joint price table the valuation engine iterates over:
// rows are the union of all member series' dates, columns are symbols.
type Frame struct {
	symbols []string
	dates   []Date
	cells   [][]float64 // cells[row][col]
}

// NewFrame builds a frame from per-symbol series, on the union of all dates.
// Symbols are ordered alphabetically for deterministic iteration.
func NewFrame(series map[string]*Series) *Frame {
	symbols := make([]string, 0, len(series))
	for sym, s := range series {
		if s.Len() > 0 {
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)

	dateSet := make(map[Date]struct{})
	for _, sym := range symbols {
		for _, d := range series[sym].dates {
			dateSet[d] = struct{}{}
		}
	}
	dates := make([]Date, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	slices.SortFunc(dates, Date.Compare)

	cells := make([][]float64, len(dates))
	for r, d := range dates {
		row := make([]float64, len(symbols))
		for c, sym := range symbols {
			if v, ok := series[sym].At(d); ok {
				row[c] = v
			} else {
				row[c] = math.NaN()
			}
		}
		cells[r] = row
	}

	return &Frame{symbols: symbols, dates: dates, cells: cells}
}

// Symbols returns the column labels.
func (f *Frame) Symbols() []string { return slices.Clone(f.symbols) }

// Dates returns the row axis.
func (f *Frame) Dates() []Date { return slices.Clone(f.dates) }

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.dates)
}

// Empty reports whether the frame has no rows or no columns.
func (f *Frame) Empty() bool { return f.Len() == 0 || len(f.symbols) == 0 }

// At returns the value for (date, symbol); ok is false when the cell is
// missing (NaN) or out of axis.
func (f *Frame) At(on Date, symbol string) (float64, bool) {
	r := f.rowIndex(on)
	c := f.colIndex(symbol)
	if r < 0 || c < 0 {
		return 0, false
	}
	v := f.cells[r][c]
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// AtOrBefore returns the value for symbol at the latest date not after the
// given date, skipping missing cells. It is the frame counterpart of
// Series.AtOrBefore, used to value holdings on dates the price axis skips.
func (f *Frame) AtOrBefore(on Date, symbol string) (float64, bool) {
	c := f.colIndex(symbol)
	if c < 0 {
		return 0, false
	}
	r := sort.Search(len(f.dates), func(i int) bool { return f.dates[i].After(on) }) - 1
	for ; r >= 0; r-- {
		if v := f.cells[r][c]; !math.IsNaN(v) {
			return v, true
		}
	}
	return 0, false
}

// Set overwrites the cell for (date, symbol). Missing axis entries are ignored.
func (f *Frame) Set(on Date, symbol string, v float64) {
	r := f.rowIndex(on)
	c := f.colIndex(symbol)
	if r >= 0 && c >= 0 {
		f.cells[r][c] = v
	}
}

// ForwardFill replaces each NaN cell with the last non-NaN value above it in
// the same column.
func (f *Frame) ForwardFill() *Frame {
	for c := range f.symbols {
		last := math.NaN()
		for r := range f.dates {
			if math.IsNaN(f.cells[r][c]) {
				f.cells[r][c] = last
			} else {
				last = f.cells[r][c]
			}
		}
	}
	return f
}

// BackFill replaces each NaN cell with the first non-NaN value below it in
// the same column.
func (f *Frame) BackFill() *Frame {
	for c := range f.symbols {
		next := math.NaN()
		for r := len(f.dates) - 1; r >= 0; r-- {
			if math.IsNaN(f.cells[r][c]) {
				f.cells[r][c] = next
			} else {
				next = f.cells[r][c]
			}
		}
	}
	return f
}

// DropEmptyRows removes rows where every cell is NaN.
func (f *Frame) DropEmptyRows() *Frame {
	dates := f.dates[:0]
	cells := f.cells[:0]
	for r, row := range f.cells {
		empty := true
		for _, v := range row {
			if !math.IsNaN(v) {
				empty = false
				break
			}
		}
		if !empty {
			dates = append(dates, f.dates[r])
			cells = append(cells, row)
		}
	}
	f.dates = dates
	f.cells = cells
	return f
}

// From drops rows before the given date.
func (f *Frame) From(on Date) *Frame {
	i := sort.Search(len(f.dates), func(i int) bool { return !f.dates[i].Before(on) })
	f.dates = f.dates[i:]
	f.cells = f.cells[i:]
	return f
}

// Column returns one symbol's values as a series, skipping NaN cells.
func (f *Frame) Column(symbol string) *Series {
	c := f.colIndex(symbol)
	out := NewSeries(f.Len())
	if c < 0 {
		return out
	}
	for r, d := range f.dates {
		if v := f.cells[r][c]; !math.IsNaN(v) {
			out.Append(d, v)
		}
	}
	return out
}

// Returns computes per-column simple returns and keeps only rows where every
// column has a value, mirroring a pct_change().dropna() on a price table.
// The result is a map of aligned return slices plus the shared symbol order.
func (f *Frame) Returns() (symbols []string, rows [][]float64) {
	if f.Len() < 2 {
		return nil, nil
	}
	symbols = f.Symbols()
	for r := 1; r < f.Len(); r++ {
		row := make([]float64, len(f.symbols))
		complete := true
		for c := range f.symbols {
			prev, cur := f.cells[r-1][c], f.cells[r][c]
			if math.IsNaN(prev) || math.IsNaN(cur) || prev == 0 {
				complete = false
				break
			}
			row[c] = cur/prev - 1
		}
		if complete {
			rows = append(rows, row)
		}
	}
	return symbols, rows
}

func (f *Frame) rowIndex(on Date) int {
	i := sort.Search(len(f.dates), func(i int) bool { return !f.dates[i].Before(on) })
	if i < len(f.dates) && f.dates[i].Equal(on) {
		return i
	}
	return -1
}

func (f *Frame) colIndex(symbol string) int {
	return slices.Index(f.symbols, symbol)
}
