package rebalance

import (
	"fmt"
	"time"

	"factor-backtest/internal/analysis"
	"factor-backtest/internal/panel"
	"factor-backtest/internal/store"
)

// Targets builds the target asset set for one rebalance date: the topk most
// desirable codes by stored factor value, restricted to the pool and with
// suspended/special-treatment names removed before ranking. Pool membership
// and tradability flags come from the quote store, the factor column from the
// factor store. desc means larger factor values are more desirable.
func Targets(quotes, factors *store.PanelStore, factorName, pool string, date time.Time, topk int, desc bool) ([]string, error) {
	date = panel.Day(date)

	var codes []string
	if pool != "" {
		poolPanel, err := quotes.Pool(pool, date, date)
		if err != nil {
			return nil, fmt.Errorf("read pool %s: %w", pool, err)
		}
		codes = store.PoolCodes(poolPanel)
		if len(codes) == 0 {
			return nil, fmt.Errorf("pool %s is empty on %s", pool, date.Format("2006-01-02"))
		}
	}

	cols, err := quotes.Columns()
	if err != nil {
		return nil, err
	}
	var flagCols []string
	for _, c := range cols {
		if c == store.FieldST || c == store.FieldSuspended {
			flagCols = append(flagCols, c)
		}
	}
	var flags map[string]*panel.Panel
	if len(flagCols) > 0 {
		flags, err = quotes.Read(flagCols, codes, date, date)
		if err != nil {
			return nil, err
		}
	}

	factorPanel, err := factors.ReadField(factorName, codes, date, date)
	if err != nil {
		return nil, fmt.Errorf("read factor %s: %w", factorName, err)
	}
	row := factorPanel.Row(date)
	if len(row) == 0 {
		return nil, fmt.Errorf("no %s values on %s", factorName, date.Format("2006-01-02"))
	}
	// Missing entries in a carried flag column read back as NaN != 0, which
	// excludes conservatively; columns absent from the store are not consulted.
	for _, fc := range flagCols {
		for code := range row {
			if flags[fc].Get(date, code) != 0 {
				delete(row, code)
			}
		}
	}
	if len(row) == 0 {
		return nil, fmt.Errorf("every candidate on %s is suspended or ST", date.Format("2006-01-02"))
	}
	return analysis.TopKCodes(row, topk, desc), nil
}
