package factor

import (
	"math"
	"time"

	"factor-backtest/internal/panel"
	"factor-backtest/internal/store"
)

// Builtin returns the registry of factors this repository computes from the
// daily quote table. Derived factors need history before the requested start
// (momentum and volatility look back 20 trading days), so computations read
// an extended window and trim the result.
func Builtin() *Registry {
	r := NewRegistry()
	r.MustRegister("momentum_20d", momentum(20))
	r.MustRegister("volatility_20d", volatility(20))
	r.MustRegister("logsize", logSize)
	r.MustRegister("tail_volume_percent", tailVolumePercent)
	return r
}

const lookbackPad = 45 // calendar days fetched before start to cover a 20-trading-day window

// momentum computes the trailing n-day price change on adjusted closes.
func momentum(n int) ComputeFunc {
	return func(s *store.PanelStore, start, stop time.Time) (*panel.Panel, error) {
		prices, err := s.Prices("close", nil, start.AddDate(0, 0, -lookbackPad), stop)
		if err != nil {
			return nil, err
		}
		dates := prices.Dates()
		out := panel.New()
		for i, d := range dates {
			if i < n || d.Before(panel.Day(start)) {
				continue
			}
			row := make(map[string]float64)
			for asset, p1 := range prices.Row(d) {
				p0 := prices.Get(dates[i-n], asset)
				if math.IsNaN(p0) || p0 <= 0 {
					continue
				}
				row[asset] = p1/p0 - 1
			}
			out.SetRow(d, row)
		}
		return out, nil
	}
}

// volatility computes the sample standard deviation of daily returns over a
// trailing n-day window.
func volatility(n int) ComputeFunc {
	return func(s *store.PanelStore, start, stop time.Time) (*panel.Panel, error) {
		prices, err := s.Prices("close", nil, start.AddDate(0, 0, -lookbackPad), stop)
		if err != nil {
			return nil, err
		}
		dates := prices.Dates()
		out := panel.New()
		for i, d := range dates {
			if i < n || d.Before(panel.Day(start)) {
				continue
			}
			row := make(map[string]float64)
			for asset := range prices.Row(d) {
				rets := make([]float64, 0, n)
				for j := i - n + 1; j <= i; j++ {
					p0 := prices.Get(dates[j-1], asset)
					p1 := prices.Get(dates[j], asset)
					if math.IsNaN(p0) || math.IsNaN(p1) || p0 <= 0 {
						continue
					}
					rets = append(rets, p1/p0-1)
				}
				if len(rets) < 2 {
					continue
				}
				row[asset] = stddev(rets)
			}
			out.SetRow(d, row)
		}
		return out, nil
	}
}

// logSize is the natural log of market capitalization.
func logSize(s *store.PanelStore, start, stop time.Time) (*panel.Panel, error) {
	caps, err := s.ReadField("market_cap", nil, start, stop)
	if err != nil {
		return nil, err
	}
	return caps.Apply(func(_ time.Time, row map[string]float64) map[string]float64 {
		for asset, v := range row {
			if v <= 0 {
				delete(row, asset)
				continue
			}
			row[asset] = math.Log(v)
		}
		return row
	}), nil
}

// tailVolumePercent is the share of the day's volume traded in the closing
// stretch. The intraday aggregation happens upstream; the quote table carries
// both columns ready to divide.
func tailVolumePercent(s *store.PanelStore, start, stop time.Time) (*panel.Panel, error) {
	panels, err := s.Read([]string{"volume", "tail_volume"}, nil, start, stop)
	if err != nil {
		return nil, err
	}
	total, tail := panels["volume"], panels["tail_volume"]
	return total.Apply(func(d time.Time, row map[string]float64) map[string]float64 {
		out := make(map[string]float64, len(row))
		for asset, v := range row {
			t := tail.Get(d, asset)
			if v <= 0 || math.IsNaN(t) {
				continue
			}
			out[asset] = t / v
		}
		return out
	}), nil
}

func stddev(vals []float64) float64 {
	var mean float64
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	var acc float64
	for _, v := range vals {
		d := v - mean
		acc += d * d
	}
	return math.Sqrt(acc / float64(len(vals)-1))
}
