package backtest

import (
	"math"

	"factor-backtest/internal/panel"
)

// Result bundles the per-period output series of one simulation.
// All series share the trading calendar of the price panel.
type Result struct {
	Returns  *panel.Series
	Turnover *panel.Series
	Value    *panel.Series

	// Benchmark-relative series; nil when no benchmark was supplied.
	ExcessReturns *panel.Series
	ExcessValue   *panel.Series

	Evaluation Evaluation
}

// Evaluation is the summary row of one simulated portfolio.
type Evaluation struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	MeanReturn       float64 `json:"mean_return"`
	Sharpe           float64 `json:"sharpe"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	TurnoverMean     float64 `json:"turnover_mean"`
	FinalValue       float64 `json:"final_value"`
	Periods          int     `json:"periods"`
}

func evaluate(r *Result, periodsPerYear int) Evaluation {
	ev := Evaluation{Periods: r.Returns.Len()}
	if ev.Periods == 0 {
		return ev
	}
	ev.FinalValue = r.Value.Values[r.Value.Len()-1]
	ev.TotalReturn = ev.FinalValue - 1
	ev.MeanReturn = r.Returns.Mean()
	ev.TurnoverMean = r.Turnover.Mean()

	years := float64(ev.Periods) / float64(periodsPerYear)
	if years > 0 && ev.FinalValue > 0 {
		ev.AnnualizedReturn = math.Pow(ev.FinalValue, 1/years) - 1
	}
	if std := r.Returns.Std(); !math.IsNaN(std) && std > 0 {
		ev.Sharpe = ev.MeanReturn / std * math.Sqrt(float64(periodsPerYear))
	}

	peak := math.Inf(-1)
	for _, v := range r.Value.Values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > ev.MaxDrawdown {
				ev.MaxDrawdown = dd
			}
		}
	}
	return ev
}
