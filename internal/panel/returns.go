package panel

import (
	"math"
	"time"
)

// ForwardReturns computes, for each date t in the buy panel's index, the
// single-period forward return realized by buying at buy[t+delay] and selling
// at sell[t+delay+1]. The result is keyed by the signal date t, so weights
// chosen from information available at t line up with the return they earn.
//
// Dates where either leg is missing or non-positive stay empty.
func ForwardReturns(buy, sell *Panel, delay int) *Panel {
	dates := buy.Dates()
	out := New()
	for i, d := range dates {
		bi := i + delay
		si := i + delay + 1
		if si >= len(dates) {
			break
		}
		row := make(map[string]float64)
		for asset, b := range buy.Row(dates[bi]) {
			s := sell.Get(dates[si], asset)
			if b <= 0 || math.IsNaN(s) || s <= 0 {
				continue
			}
			row[asset] = s/b - 1
		}
		out.SetRow(d, row)
	}
	return out
}

// SpanReturns computes the forward return over span periods on a single price
// panel: r[t] = price[t+span]/price[t] - 1, keyed by t. This is the horizon
// return the information coefficient is measured against.
func SpanReturns(prices *Panel, span int) *Panel {
	dates := prices.Dates()
	out := New()
	for i, d := range dates {
		j := i + span
		if j >= len(dates) {
			break
		}
		row := make(map[string]float64)
		for asset, p0 := range prices.Row(d) {
			p1 := prices.Get(dates[j], asset)
			if p0 <= 0 || math.IsNaN(p1) || p1 <= 0 {
				continue
			}
			row[asset] = p1/p0 - 1
		}
		out.SetRow(d, row)
	}
	return out
}

// Subsample keeps only every step-th date, starting from the first. Backtests
// use this to turn a daily factor panel into rebalance-date weights.
func Subsample(dates []time.Time, step int) []time.Time {
	if step <= 1 {
		return dates
	}
	out := make([]time.Time, 0, len(dates)/step+1)
	for i := 0; i < len(dates); i += step {
		out = append(out, dates[i])
	}
	return out
}
