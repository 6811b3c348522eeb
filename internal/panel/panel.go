package panel

import (
	"math"
	"sort"
	"time"
)

// Panel is an ordered (asset, date) table of float64 values.
//
// It replaces the implicit index-alignment behavior of a dataframe with
// explicit operations: every cross-sectional computation iterates dates, and
// every time-series computation iterates the date index of one asset.
// A missing cell and a NaN cell are the same thing; Get returns NaN for both
// and Set with a NaN removes the cell.
type Panel struct {
	cells map[time.Time]map[string]float64

	dates  []time.Time
	assets []string
	dirty  bool
}

func New() *Panel {
	return &Panel{cells: make(map[time.Time]map[string]float64)}
}

// Day normalizes a timestamp to a UTC calendar date so that dates read from
// different sources compare equal as map keys.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (p *Panel) Set(date time.Time, asset string, v float64) {
	date = Day(date)
	if math.IsNaN(v) {
		if row, ok := p.cells[date]; ok {
			delete(row, asset)
		}
		return
	}
	row, ok := p.cells[date]
	if !ok {
		row = make(map[string]float64)
		p.cells[date] = row
		p.dirty = true
	}
	if _, ok := row[asset]; !ok {
		p.dirty = true
	}
	row[asset] = v
}

// Get returns the value at (date, asset), or NaN when absent.
func (p *Panel) Get(date time.Time, asset string) float64 {
	if row, ok := p.cells[Day(date)]; ok {
		if v, ok := row[asset]; ok {
			return v
		}
	}
	return math.NaN()
}

func (p *Panel) Has(date time.Time, asset string) bool {
	row, ok := p.cells[Day(date)]
	if !ok {
		return false
	}
	_, ok = row[asset]
	return ok
}

// Dates returns the ascending date index. The returned slice must not be
// modified by the caller.
func (p *Panel) Dates() []time.Time {
	p.reindex()
	return p.dates
}

// Assets returns the sorted union of asset identifiers across all dates.
func (p *Panel) Assets() []string {
	p.reindex()
	return p.assets
}

func (p *Panel) Len() int { return len(p.Dates()) }

// Row returns a copy of the cross-section at date: every asset with a present
// value on that date. The copy is safe to mutate.
func (p *Panel) Row(date time.Time) map[string]float64 {
	out := make(map[string]float64)
	for asset, v := range p.cells[Day(date)] {
		out[asset] = v
	}
	return out
}

// SetRow replaces the cross-section at date. NaN values are dropped.
func (p *Panel) SetRow(date time.Time, row map[string]float64) {
	date = Day(date)
	delete(p.cells, date)
	p.dirty = true
	for asset, v := range row {
		p.Set(date, asset, v)
	}
}

// Apply builds a new panel by transforming each cross-section independently.
// The function receives a mutable copy of the row and returns the replacement
// row; returning nil drops the date.
func (p *Panel) Apply(fn func(date time.Time, row map[string]float64) map[string]float64) *Panel {
	out := New()
	for _, d := range p.Dates() {
		row := fn(d, p.Row(d))
		if row == nil {
			continue
		}
		out.SetRow(d, row)
	}
	return out
}

// Shift moves every asset's series n steps forward along the date index
// (n < 0 moves backward, pulling future values onto earlier dates).
// The date index itself is preserved; cells shifted past either end are lost.
func (p *Panel) Shift(n int) *Panel {
	dates := p.Dates()
	out := New()
	for i, d := range dates {
		src := i - n
		if src < 0 || src >= len(dates) {
			continue
		}
		out.SetRow(d, p.Row(dates[src]))
	}
	return out
}

// FillForward expands the panel onto the given calendar: each calendar date
// takes the most recent row at or before it. Calendar dates earlier than the
// first row stay empty.
func (p *Panel) FillForward(calendar []time.Time) *Panel {
	dates := p.Dates()
	out := New()
	j := -1
	for _, c := range calendar {
		c = Day(c)
		for j+1 < len(dates) && !dates[j+1].After(c) {
			j++
		}
		if j < 0 {
			continue
		}
		out.SetRow(c, p.Row(dates[j]))
	}
	return out
}

// Clone returns a deep copy.
func (p *Panel) Clone() *Panel {
	out := New()
	for d := range p.cells {
		out.SetRow(d, p.Row(d))
	}
	return out
}

// Mask removes every cell for which the flag panel holds a non-zero value on
// the same (date, asset). Used to exclude suspended/ST assets from a price
// panel.
func (p *Panel) Mask(flags *Panel) *Panel {
	return p.Apply(func(d time.Time, row map[string]float64) map[string]float64 {
		for asset := range row {
			if f := flags.Get(d, asset); !math.IsNaN(f) && f != 0 {
				delete(row, asset)
			}
		}
		return row
	})
}

// Intersect keeps only the cells that are also present in other. Restricting
// a factor panel to an index-membership panel is the main use.
func (p *Panel) Intersect(other *Panel) *Panel {
	return p.Apply(func(d time.Time, row map[string]float64) map[string]float64 {
		for asset := range row {
			if !other.Has(d, asset) {
				delete(row, asset)
			}
		}
		return row
	})
}

// Mul multiplies cell-wise with another panel; cells missing on either side
// are dropped. Used to apply adjustment factors to raw prices.
func (p *Panel) Mul(other *Panel) *Panel {
	return p.Apply(func(d time.Time, row map[string]float64) map[string]float64 {
		for asset, v := range row {
			o := other.Get(d, asset)
			if math.IsNaN(o) {
				delete(row, asset)
				continue
			}
			row[asset] = v * o
		}
		return row
	})
}

func (p *Panel) reindex() {
	if !p.dirty && p.dates != nil {
		return
	}
	p.dates = p.dates[:0]
	seen := make(map[string]struct{})
	for d, row := range p.cells {
		if len(row) == 0 {
			continue
		}
		p.dates = append(p.dates, d)
		for asset := range row {
			seen[asset] = struct{}{}
		}
	}
	sort.Slice(p.dates, func(i, j int) bool { return p.dates[i].Before(p.dates[j]) })
	p.assets = p.assets[:0]
	for asset := range seen {
		p.assets = append(p.assets, asset)
	}
	sort.Strings(p.assets)
	p.dirty = false
}
