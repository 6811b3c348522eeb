package preprocess

import (
	"fmt"
	"math"
	"sort"
	"time"

	"factor-backtest/internal/panel"
)

// OutlierMethod selects how cross-sectional outlier bounds are computed.
type OutlierMethod string

const (
	MethodMAD OutlierMethod = "mad"
	MethodSTD OutlierMethod = "std"
	MethodIQR OutlierMethod = "iqr"
)

// OutlierPolicy selects what happens to values outside the bounds.
type OutlierPolicy string

const (
	PolicyClip OutlierPolicy = "clip"
	PolicyDrop OutlierPolicy = "drop"
)

// Outlier treats cross-sectional outliers date by date. dev is the deviation
// multiplier (for IQR it is the total tail probability, split symmetrically).
// Values already absent stay absent; a date with zero dispersion leaves its
// row untouched rather than failing.
func Outlier(p *panel.Panel, method OutlierMethod, dev float64, policy OutlierPolicy) (*panel.Panel, error) {
	switch method {
	case MethodMAD, MethodSTD, MethodIQR:
	default:
		return nil, fmt.Errorf("unknown outlier method %q", method)
	}
	out := p.Apply(func(_ time.Time, row map[string]float64) map[string]float64 {
		lo, hi, ok := bounds(row, method, dev)
		if !ok {
			return row
		}
		for asset, v := range row {
			if v < lo || v > hi {
				if policy == PolicyDrop {
					delete(row, asset)
				} else {
					row[asset] = clamp(v, lo, hi)
				}
			}
		}
		return row
	})
	return out, nil
}

func bounds(row map[string]float64, method OutlierMethod, dev float64) (lo, hi float64, ok bool) {
	vals := values(row)
	if len(vals) == 0 {
		return 0, 0, false
	}
	switch method {
	case MethodMAD:
		m := median(vals)
		dev2 := make([]float64, len(vals))
		for i, v := range vals {
			dev2[i] = math.Abs(v - m)
		}
		mad := median(dev2)
		if mad == 0 {
			return 0, 0, false
		}
		return m - dev*mad, m + dev*mad, true
	case MethodSTD:
		m, s := meanStd(vals)
		if s == 0 {
			return 0, 0, false
		}
		return m - dev*s, m + dev*s, true
	case MethodIQR:
		sort.Float64s(vals)
		return quantile(vals, dev/2), quantile(vals, 1-dev/2), true
	}
	return 0, 0, false
}

// ZScore standardizes each cross-section to zero mean and unit standard
// deviation. A zero-variance date propagates as an empty row (NaN output),
// never as an error.
func ZScore(p *panel.Panel) *panel.Panel {
	return p.Apply(func(_ time.Time, row map[string]float64) map[string]float64 {
		m, s := meanStd(values(row))
		if s == 0 {
			return nil
		}
		for asset, v := range row {
			row[asset] = (v - m) / s
		}
		return row
	})
}

// MinMax rescales each cross-section to [0, 1]. A degenerate date (max equals
// min) drops out of the result.
func MinMax(p *panel.Panel) *panel.Panel {
	return p.Apply(func(_ time.Time, row map[string]float64) map[string]float64 {
		vals := values(row)
		if len(vals) == 0 {
			return nil
		}
		lo, hi := vals[0], vals[0]
		for _, v := range vals {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if hi == lo {
			return nil
		}
		for asset, v := range row {
			row[asset] = (v - lo) / (hi - lo)
		}
		return row
	})
}

// Replace substitutes every occurrence of from with to. Replacing with NaN
// removes the cell, which is how a raw factor's zero placeholder values are
// turned into missing data before the log transform.
func Replace(p *panel.Panel, from, to float64) *panel.Panel {
	return p.Apply(func(_ time.Time, row map[string]float64) map[string]float64 {
		for asset, v := range row {
			if v == from {
				if math.IsNaN(to) {
					delete(row, asset)
				} else {
					row[asset] = to
				}
			}
		}
		return row
	})
}

// Log applies the natural logarithm cell-wise; non-positive values drop out.
func Log(p *panel.Panel) *panel.Panel {
	return p.Apply(func(_ time.Time, row map[string]float64) map[string]float64 {
		for asset, v := range row {
			if v <= 0 {
				delete(row, asset)
				continue
			}
			row[asset] = math.Log(v)
		}
		return row
	})
}

func values(row map[string]float64) []float64 {
	out := make([]float64, 0, len(row))
	for _, v := range row {
		out = append(out, v)
	}
	return out
}

func median(vals []float64) float64 {
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	n := len(s)
	if n == 0 {
		return math.NaN()
	}
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

func meanStd(vals []float64) (mean, std float64) {
	n := float64(len(vals))
	if n == 0 {
		return math.NaN(), 0
	}
	for _, v := range vals {
		mean += v
	}
	mean /= n
	if n < 2 {
		return mean, 0
	}
	var acc float64
	for _, v := range vals {
		d := v - mean
		acc += d * d
	}
	return mean, math.Sqrt(acc / (n - 1))
}

// quantile interpolates linearly on a sorted slice, the same convention as a
// rank-based quantile cut.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[n-1]
	}
	pos := q * float64(n-1)
	i := int(math.Floor(pos))
	frac := pos - float64(i)
	if i+1 >= n {
		return sorted[n-1]
	}
	return sorted[i]*(1-frac) + sorted[i+1]*frac
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
