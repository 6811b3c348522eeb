package backtest

import (
	"fmt"
	"math"

	"factor-backtest/internal/panel"
)

// Engine simulates one weight panel against buy/sell price panels. It is a
// pure function of its inputs: running it twice on the same data yields
// bit-identical results, which is what lets grouped runs fan out to workers.
type Engine struct {
	opts Options
}

// Options configures a simulation run.
type Options struct {
	// Delay is the number of trading days between the signal date and the
	// execution of the corresponding trade.
	Delay int
	// Commission is charged per unit of turnover each period.
	Commission float64
	// Benchmark, when set, is a per-period benchmark return series used to
	// produce the excess return and excess value curves.
	Benchmark *panel.Series
	// PeriodsPerYear is used for annualization; defaults to 252.
	PeriodsPerYear int
}

func (o Options) withDefaults() Options {
	if o.PeriodsPerYear <= 0 {
		o.PeriodsPerYear = 252
	}
	return o
}

func New(opts Options) *Engine { return &Engine{opts: opts.withDefaults()} }

// Run simulates a weight panel. The weight panel carries rebalance dates only;
// weights are held (forward-filled) between rebalances. The buy panel's date
// index is the trading calendar.
//
// Conventions (the historical variants disagreed; these are the ones used
// everywhere in this repository):
//   - the first simulated period's return is forced to zero, so the value
//     curve starts at exactly 1.0 with no lookahead from uninitialized weights;
//   - turnover on the first invested date is the full L1 norm of the weight
//     vector (1.0 when fully invested); afterwards it is half the L1 distance
//     to the previous day's weights.
func (e *Engine) Run(weights, buy, sell *panel.Panel) (*Result, error) {
	if weights == nil || buy == nil || sell == nil {
		return nil, fmt.Errorf("weights, buy and sell panels are all required")
	}
	calendar := buy.Dates()
	if len(calendar) == 0 {
		return nil, fmt.Errorf("empty price panel")
	}

	filled := weights.FillForward(calendar)
	fwd := panel.ForwardReturns(buy, sell, e.opts.Delay)

	returns := &panel.Series{}
	turnover := &panel.Series{}

	var prev map[string]float64
	invested := false
	first := true
	for _, d := range calendar {
		w := filled.Row(d)

		var to float64
		switch {
		case len(w) == 0:
			if prev != nil {
				to = l1Distance(nil, prev) / 2
			}
		case !invested:
			for _, v := range w {
				to += math.Abs(v)
			}
			invested = true
		default:
			to = l1Distance(w, prev) / 2
		}

		var ret float64
		if !first {
			for asset, v := range w {
				r := fwd.Get(d, asset)
				if math.IsNaN(r) {
					continue
				}
				ret += v * r
			}
			ret -= e.opts.Commission * to
		}
		first = first && len(w) == 0

		returns.Append(d, ret)
		turnover.Append(d, to)
		prev = w
	}

	res := &Result{
		Returns:  returns,
		Turnover: turnover,
		Value:    returns.CumProd(),
	}
	if e.opts.Benchmark != nil {
		res.ExcessReturns = returns.Sub(e.opts.Benchmark)
		res.ExcessValue = res.ExcessReturns.CumProd()
	}
	res.Evaluation = evaluate(res, e.opts.PeriodsPerYear)
	return res, nil
}

func l1Distance(a, b map[string]float64) float64 {
	var sum float64
	for k, v := range a {
		sum += math.Abs(v - b[k])
	}
	for k, v := range b {
		if _, ok := a[k]; !ok {
			sum += math.Abs(v)
		}
	}
	return sum
}
