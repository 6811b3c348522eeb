package analysis

import (
	"sort"
	"time"

	"factor-backtest/internal/panel"
)

// rankOrder returns the assets of one cross-section ordered from most to
// least desirable. desc means larger factor values are better. Ties keep a
// stable alphabetical order so repeated runs produce identical buckets.
func rankOrder(row map[string]float64, desc bool) []string {
	assets := make([]string, 0, len(row))
	for a := range row {
		assets = append(assets, a)
	}
	sort.Strings(assets)
	sort.SliceStable(assets, func(i, j int) bool {
		if desc {
			return row[assets[i]] > row[assets[j]]
		}
		return row[assets[i]] < row[assets[j]]
	})
	return assets
}

// QuantileGroups partitions each date's cross-section into ngroup equal-count
// rank buckets and returns one equal-weight panel per bucket. Bucket 0 holds
// the most desirable names. Assets with no factor value on a date are
// excluded from every bucket for that date; a date with fewer eligible assets
// than ngroup simply yields some empty buckets rather than an error.
func QuantileGroups(factor *panel.Panel, ngroup int, desc bool) []*panel.Panel {
	groups := make([]*panel.Panel, ngroup)
	for i := range groups {
		groups[i] = panel.New()
	}
	for _, d := range factor.Dates() {
		row := factor.Row(d)
		ranked := rankOrder(row, desc)
		n := len(ranked)
		if n == 0 {
			continue
		}
		for g := 0; g < ngroup; g++ {
			lo := g * n / ngroup
			hi := (g + 1) * n / ngroup
			if hi <= lo {
				continue
			}
			w := 1.0 / float64(hi-lo)
			bucket := make(map[string]float64, hi-lo)
			for _, a := range ranked[lo:hi] {
				bucket[a] = w
			}
			groups[g].SetRow(d, bucket)
		}
	}
	return groups
}

// GroupOf reports the 1-based bucket assignment of each asset on one date,
// using the same rank-quantile cut points as QuantileGroups.
func GroupOf(row map[string]float64, ngroup int, desc bool) map[string]int {
	ranked := rankOrder(row, desc)
	n := len(ranked)
	out := make(map[string]int, n)
	for g := 0; g < ngroup; g++ {
		lo := g * n / ngroup
		hi := (g + 1) * n / ngroup
		for _, a := range ranked[lo:hi] {
			out[a] = g + 1
		}
	}
	return out
}

// TopK selects the K most desirable assets per date and assigns each weight
// 1/K (1/|selected| on dates with fewer than K eligible names, so the
// selection stays fully invested).
func TopK(factor *panel.Panel, k int, desc bool) *panel.Panel {
	return factor.Apply(func(_ time.Time, row map[string]float64) map[string]float64 {
		codes := topCodes(row, k, desc)
		if len(codes) == 0 {
			return nil
		}
		w := 1.0 / float64(len(codes))
		sel := make(map[string]float64, len(codes))
		for _, a := range codes {
			sel[a] = w
		}
		return sel
	})
}

// TopKCodes returns the K most desirable asset codes of one cross-section in
// rank order. The execution path uses this to build its target set.
func TopKCodes(row map[string]float64, k int, desc bool) []string {
	return topCodes(row, k, desc)
}

func topCodes(row map[string]float64, k int, desc bool) []string {
	ranked := rankOrder(row, desc)
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}
