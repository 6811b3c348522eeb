package analysis

import (
	"fmt"
	"math"
	"sort"

	"factor-backtest/internal/panel"
)

// CorrMethod selects the per-date correlation estimator.
type CorrMethod string

const (
	Pearson  CorrMethod = "pearson"
	Spearman CorrMethod = "spearman"
)

// ICSummary aggregates the per-date information coefficient series.
type ICSummary struct {
	Mean float64 // average IC; its sign sets the long-short convention
	Std  float64
	IR   float64 // Mean / Std, the t-like reliability statistic
	N    int
}

// InfoCoef computes the cross-sectional correlation between factor values and
// forward returns for every date where both panels have at least two common
// assets. Dates with fewer valid pairs are dropped from the series.
func InfoCoef(factor, fwd *panel.Panel, method CorrMethod) (*panel.Series, error) {
	if method != Pearson && method != Spearman {
		return nil, fmt.Errorf("unknown correlation method %q", method)
	}
	out := &panel.Series{}
	for _, d := range factor.Dates() {
		frow := factor.Row(d)
		var xs, ys []float64
		// Deterministic pair order keeps the computation bit-stable.
		assets := make([]string, 0, len(frow))
		for a := range frow {
			assets = append(assets, a)
		}
		sort.Strings(assets)
		for _, a := range assets {
			r := fwd.Get(d, a)
			if math.IsNaN(r) {
				continue
			}
			xs = append(xs, frow[a])
			ys = append(ys, r)
		}
		if len(xs) < 2 {
			continue
		}
		if method == Spearman {
			xs = toRanks(xs)
			ys = toRanks(ys)
		}
		c := pearson(xs, ys)
		if math.IsNaN(c) {
			continue
		}
		out.Append(d, c)
	}
	return out, nil
}

// Summarize reduces an IC series to its reliability statistics.
func Summarize(ic *panel.Series) ICSummary {
	clean := ic.DropNaN()
	s := ICSummary{Mean: clean.Mean(), Std: clean.Std(), N: clean.Len()}
	if !math.IsNaN(s.Std) && s.Std > 0 {
		s.IR = s.Mean / s.Std
	}
	return s
}

func pearson(xs, ys []float64) float64 {
	n := float64(len(xs))
	var mx, my float64
	for i := range xs {
		mx += xs[i]
		my += ys[i]
	}
	mx /= n
	my /= n
	var sxy, sxx, syy float64
	for i := range xs {
		dx := xs[i] - mx
		dy := ys[i] - my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return math.NaN()
	}
	return sxy / math.Sqrt(sxx*syy)
}

// toRanks converts values to average ranks, the Spearman transform.
func toRanks(vals []float64) []float64 {
	idx := make([]int, len(vals))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return vals[idx[a]] < vals[idx[b]] })
	ranks := make([]float64, len(vals))
	i := 0
	for i < len(idx) {
		j := i
		for j+1 < len(idx) && vals[idx[j+1]] == vals[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}
