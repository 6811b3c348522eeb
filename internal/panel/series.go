package panel

import (
	"math"
	"time"
)

// Series is an ordered date-indexed float64 sequence. Unlike Panel cells, a
// Series may carry NaN entries; consumers decide whether to drop or propagate
// them.
type Series struct {
	Dates  []time.Time
	Values []float64
}

func (s *Series) Append(d time.Time, v float64) {
	s.Dates = append(s.Dates, Day(d))
	s.Values = append(s.Values, v)
}

func (s *Series) Len() int { return len(s.Values) }

// At returns the value on the given date, or NaN when the date is absent.
func (s *Series) At(d time.Time) float64 {
	d = Day(d)
	for i, sd := range s.Dates {
		if sd.Equal(d) {
			return s.Values[i]
		}
	}
	return math.NaN()
}

// DropNaN returns a copy without NaN entries.
func (s *Series) DropNaN() *Series {
	out := &Series{}
	for i, v := range s.Values {
		if !math.IsNaN(v) {
			out.Append(s.Dates[i], v)
		}
	}
	return out
}

// Mean ignores NaN entries; it returns NaN when nothing remains.
func (s *Series) Mean() float64 {
	var sum float64
	var n int
	for _, v := range s.Values {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// Std is the sample standard deviation, ignoring NaN entries.
func (s *Series) Std() float64 {
	m := s.Mean()
	if math.IsNaN(m) {
		return math.NaN()
	}
	var acc float64
	var n int
	for _, v := range s.Values {
		if math.IsNaN(v) {
			continue
		}
		d := v - m
		acc += d * d
		n++
	}
	if n < 2 {
		return math.NaN()
	}
	return math.Sqrt(acc / float64(n-1))
}

// CumProd compounds (1 + value) entries into a value curve starting at 1.
// NaN entries compound as zero return.
func (s *Series) CumProd() *Series {
	out := &Series{}
	acc := 1.0
	for i, v := range s.Values {
		if !math.IsNaN(v) {
			acc *= 1 + v
		}
		out.Append(s.Dates[i], acc)
	}
	return out
}

// Sub subtracts another series date-wise; dates missing on the right pass
// through unchanged, matching benchmark-relative return semantics where a
// missing benchmark day contributes zero.
func (s *Series) Sub(other *Series) *Series {
	idx := make(map[time.Time]float64, len(other.Dates))
	for i, d := range other.Dates {
		idx[d] = other.Values[i]
	}
	out := &Series{}
	for i, d := range s.Dates {
		v := s.Values[i]
		if b, ok := idx[d]; ok && !math.IsNaN(b) {
			v -= b
		}
		out.Append(d, v)
	}
	return out
}

// PctChange converts a level series (for example a benchmark index) into
// period returns, with the first period fixed at zero.
func (s *Series) PctChange() *Series {
	out := &Series{}
	for i, d := range s.Dates {
		if i == 0 || s.Values[i-1] == 0 {
			out.Append(d, 0)
			continue
		}
		out.Append(d, s.Values[i]/s.Values[i-1]-1)
	}
	return out
}
