package backtest

import (
	"fmt"
	"runtime"
	"sync"

	"factor-backtest/internal/analysis"
	"factor-backtest/internal/panel"
)

// GroupedOptions configures a full layered factor test: ngroup quantile
// portfolios, the top-K portfolio, the long-short spread and the information
// coefficient, all from one factor panel.
type GroupedOptions struct {
	Options

	NGroup     int
	TopK       int
	Descending bool // larger factor value is more desirable
	// Rebalance is the holding period in trading days between weight updates.
	Rebalance int
	// LongShort fixes the spread sign: +1 buys the best bucket against the
	// worst, -1 the reverse. Zero defers to the sign of the mean IC.
	LongShort int
	ICMethod  analysis.CorrMethod
	// Workers bounds the simulation pool; defaults to GOMAXPROCS.
	Workers int
}

func (o GroupedOptions) withDefaults() GroupedOptions {
	o.Options = o.Options.withDefaults()
	if o.NGroup <= 0 {
		o.NGroup = 5
	}
	if o.TopK <= 0 {
		o.TopK = 100
	}
	if o.Rebalance <= 0 {
		o.Rebalance = 1
	}
	if o.ICMethod == "" {
		o.ICMethod = analysis.Pearson
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	return o
}

// GroupedResult keys every sub-portfolio by its group index (Groups[0] is the
// most desirable bucket) regardless of worker completion order.
type GroupedResult struct {
	Groups []*Result
	TopK   *Result

	LongShortReturns *panel.Series
	LongShortValue   *panel.Series
	LongShortSign    int

	IC        *panel.Series
	ICSummary analysis.ICSummary
}

// RunGrouped runs the layered test. Each bucket's simulation is an
// independent pure function of read-only inputs, so they are dispatched to a
// bounded worker pool and joined; the execution order never affects results.
func RunGrouped(factor, buy, sell *panel.Panel, opts GroupedOptions) (*GroupedResult, error) {
	opts = opts.withDefaults()
	if factor == nil || factor.Len() == 0 {
		return nil, fmt.Errorf("empty factor panel")
	}

	rebDates := panel.Subsample(factor.Dates(), opts.Rebalance)
	rebFactor := panel.New()
	for _, d := range rebDates {
		rebFactor.SetRow(d, factor.Row(d))
	}

	groupWeights := analysis.QuantileGroups(rebFactor, opts.NGroup, opts.Descending)
	topWeights := analysis.TopK(rebFactor, opts.TopK, opts.Descending)

	fwd := panel.SpanReturns(buy, opts.Rebalance)
	ic, err := analysis.InfoCoef(factor, fwd, opts.ICMethod)
	if err != nil {
		return nil, err
	}

	out := &GroupedResult{
		Groups:    make([]*Result, opts.NGroup),
		IC:        ic,
		ICSummary: analysis.Summarize(ic),
	}

	jobs := make([]*panel.Panel, 0, opts.NGroup+1)
	jobs = append(jobs, groupWeights...)
	jobs = append(jobs, topWeights)
	results := make([]*Result, len(jobs))
	errs := make([]error, len(jobs))

	sem := make(chan struct{}, opts.Workers)
	var wg sync.WaitGroup
	engine := New(opts.Options)
	for i, w := range jobs {
		wg.Add(1)
		go func(i int, w *panel.Panel) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i], errs[i] = engine.Run(w, buy, sell)
		}(i, w)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("group %d: %w", i+1, err)
		}
	}
	copy(out.Groups, results[:opts.NGroup])
	out.TopK = results[opts.NGroup]

	out.LongShortSign = opts.LongShort
	if out.LongShortSign == 0 {
		if out.ICSummary.Mean < 0 {
			out.LongShortSign = -1
		} else {
			out.LongShortSign = 1
		}
	}
	out.LongShortReturns = spread(out.Groups[0].Returns, out.Groups[opts.NGroup-1].Returns, out.LongShortSign)
	out.LongShortValue = out.LongShortReturns.CumProd()
	return out, nil
}

// spread combines the best and worst bucket return series into one signed
// long-short series.
func spread(best, worst *panel.Series, sign int) *panel.Series {
	out := &panel.Series{}
	for i, d := range best.Dates {
		v := best.Values[i] - worst.At(d)
		out.Append(d, float64(sign)*v)
	}
	return out
}
