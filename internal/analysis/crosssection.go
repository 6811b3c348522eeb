package analysis

import (
	"fmt"
	"sort"
	"time"

	"factor-backtest/internal/panel"
)

// CrossSectionRow pairs one asset's factor value with the forward return it
// went on to earn. A missing return is NaN, not an error.
type CrossSectionRow struct {
	Code         string
	Factor       float64
	FutureReturn float64
}

// CrossSection snapshots a single date: every asset's factor value alongside
// its span-period forward return, ordered by factor value descending. This is
// the per-date diagnostic artifact of a factor run.
func CrossSection(factor, prices *panel.Panel, span int, date time.Time) ([]CrossSectionRow, error) {
	date = panel.Day(date)
	row := factor.Row(date)
	if len(row) == 0 {
		return nil, fmt.Errorf("no factor values on %s", date.Format("2006-01-02"))
	}
	fwd := panel.SpanReturns(prices, span)
	out := make([]CrossSectionRow, 0, len(row))
	for code, v := range row {
		out = append(out, CrossSectionRow{Code: code, Factor: v, FutureReturn: fwd.Get(date, code)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Factor == out[j].Factor {
			return out[i].Code < out[j].Code
		}
		return out[i].Factor > out[j].Factor
	})
	return out, nil
}

// LastCrossDate picks the snapshot date for a report run: offset steps back
// from the end, never closer to the end than span dates. That is one date
// earlier than picking the span-th date from the end, so the full
// span-forward return at the snapshot lands inside the panel instead of
// coming back NaN for every asset.
func LastCrossDate(factor *panel.Panel, offset, span int) (time.Time, error) {
	dates := factor.Dates()
	if len(dates) == 0 {
		return time.Time{}, fmt.Errorf("empty factor panel")
	}
	back := offset
	if back < span {
		back = span
	}
	i := len(dates) - 1 - back
	if i < 0 {
		i = 0
	}
	return dates[i], nil
}
