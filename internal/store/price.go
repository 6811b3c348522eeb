package store

import (
	"time"

	"factor-backtest/internal/panel"
)

// Flag and quote field names shared by the daily quote table.
const (
	FieldAdjFactor = "adjfactor"
	FieldST        = "st"
	FieldSuspended = "suspended"
)

// Prices reads one price field and returns it adjusted and restricted to the
// tradable universe: adjusted price = raw price x adjfactor, with suspended
// and special-treatment names removed at the flagged dates. Masking consults
// only the flag columns the store actually carries; a (date, asset) with no
// entry in a carried column is treated as untradable, matching the
// conservative convention of the upstream data feed. A store with no flag
// columns at all skips the masking step.
func (s *PanelStore) Prices(field string, codes []string, start, stop time.Time) (*panel.Panel, error) {
	cols, err := s.Columns()
	if err != nil {
		return nil, err
	}
	has := func(name string) bool {
		for _, c := range cols {
			if c == name {
				return true
			}
		}
		return false
	}

	fields := []string{field}
	if has(FieldAdjFactor) {
		fields = append(fields, FieldAdjFactor)
	}
	var flagCols []string
	for _, name := range []string{FieldST, FieldSuspended} {
		if has(name) {
			flagCols = append(flagCols, name)
		}
	}
	fields = append(fields, flagCols...)

	panels, err := s.Read(fields, codes, start, stop)
	if err != nil {
		return nil, err
	}
	price := panels[field]
	if adj := panels[FieldAdjFactor]; adj != nil && adj.Len() > 0 {
		price = price.Mul(adj)
	}
	flags := make([]*panel.Panel, 0, len(flagCols))
	for _, name := range flagCols {
		flags = append(flags, panels[name])
	}
	return maskUntradable(price, flags), nil
}

func maskUntradable(price *panel.Panel, flags []*panel.Panel) *panel.Panel {
	if len(flags) == 0 {
		return price
	}
	return price.Apply(func(d time.Time, row map[string]float64) map[string]float64 {
		for asset := range row {
			for _, f := range flags {
				// A NaN flag reads back as NaN != 0, so a missing entry in a
				// carried column excludes too.
				if f.Get(d, asset) != 0 {
					delete(row, asset)
					break
				}
			}
		}
		return row
	})
}

// Pool reads an index-membership column (weights keyed by asset and date) and
// returns it as a panel. Assets appear only on dates they belong to the pool.
func (s *PanelStore) Pool(name string, start, stop time.Time) (*panel.Panel, error) {
	return s.ReadField(name, nil, start, stop)
}

// PoolCodes is the union of assets ever present in a pool panel.
func PoolCodes(pool *panel.Panel) []string {
	if pool == nil {
		return nil
	}
	return pool.Assets()
}
