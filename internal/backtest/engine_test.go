package backtest

import (
	"math"
	"testing"
	"time"

	"factor-backtest/internal/panel"
)

func day(n int) time.Time {
	return panel.Day(time.Date(2024, 7, n, 0, 0, 0, 0, time.UTC))
}

func singleAssetPrices(pxs ...float64) *panel.Panel {
	p := panel.New()
	for i, px := range pxs {
		p.Set(day(i+1), "a", px)
	}
	return p
}

func TestRunValueStartsAtOne(t *testing.T) {
	prices := singleAssetPrices(10, 11, 12, 12)
	w := panel.New()
	w.Set(day(1), "a", 1)

	res, err := New(Options{}).Run(w, prices, prices)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Value.Values[0] != 1 {
		t.Fatalf("value curve must start at 1, got %v", res.Value.Values[0])
	}
	if res.Returns.Values[0] != 0 {
		t.Fatalf("first simulated return must be 0, got %v", res.Returns.Values[0])
	}
	// after the warmup period only the d2 signal earns 12/11-1
	final := res.Value.Values[len(res.Value.Values)-1]
	if math.Abs(final-12.0/11.0) > 1e-12 {
		t.Fatalf("final value should be 12/11, got %v", final)
	}
}

func TestRunFirstInvestedTurnoverIsFullL1(t *testing.T) {
	prices := singleAssetPrices(10, 10, 10)
	w := panel.New()
	w.Set(day(1), "a", 1)
	res, err := New(Options{}).Run(w, prices, prices)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Turnover.Values[0] != 1 {
		t.Fatalf("fully invested first date should turn over 1.0, got %v", res.Turnover.Values[0])
	}
	if res.Turnover.Values[1] != 0 {
		t.Fatalf("held weights should not turn over, got %v", res.Turnover.Values[1])
	}
}

func TestRunSwitchTurnoverIsHalfL1(t *testing.T) {
	prices := panel.New()
	for i := 1; i <= 4; i++ {
		prices.Set(day(i), "a", 10)
		prices.Set(day(i), "b", 10)
	}
	w := panel.New()
	w.Set(day(1), "a", 1)
	w.Set(day(3), "b", 1)
	res, err := New(Options{}).Run(w, prices, prices)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// |1-0| + |0-1| = 2, halved
	if got := res.Turnover.At(day(3)); math.Abs(got-1) > 1e-12 {
		t.Fatalf("full switch should turn over 1.0, got %v", got)
	}
}

func TestRunCommissionReducesReturns(t *testing.T) {
	prices := panel.New()
	for i := 1; i <= 4; i++ {
		prices.Set(day(i), "a", 10)
		prices.Set(day(i), "b", 10)
	}
	w := panel.New()
	w.Set(day(1), "a", 1)
	w.Set(day(3), "b", 1)
	res, err := New(Options{Commission: 0.01}).Run(w, prices, prices)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// flat prices: the only nonzero return is the commission on the switch
	if got := res.Returns.At(day(3)); math.Abs(got+0.01) > 1e-12 {
		t.Fatalf("switch day return should be -commission, got %v", got)
	}
}

func TestRunMissingForwardReturnContributesNothing(t *testing.T) {
	prices := panel.New()
	prices.Set(day(1), "a", 10)
	prices.Set(day(2), "a", 11)
	prices.Set(day(3), "a", 12)
	// b has no prices at all; its weight must not read as a zero return of 0
	w := panel.New()
	w.Set(day(1), "a", 0.5)
	w.Set(day(1), "b", 0.5)
	res, err := New(Options{}).Run(w, prices, prices)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := res.Returns.At(day(2)); math.Abs(got-0.5*(12.0/11.0-1)) > 1e-12 {
		t.Fatalf("only the priced leg should earn, got %v", got)
	}
}

func TestRunRejectsNilInputs(t *testing.T) {
	if _, err := New(Options{}).Run(nil, panel.New(), panel.New()); err == nil {
		t.Fatal("nil weights must error")
	}
}

func TestEvaluationBasics(t *testing.T) {
	prices := singleAssetPrices(10, 10, 11, 9.9)
	w := panel.New()
	w.Set(day(1), "a", 1)
	res, err := New(Options{}).Run(w, prices, prices)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ev := res.Evaluation
	last := res.Value.Values[len(res.Value.Values)-1]
	if math.Abs(ev.FinalValue-last) > 1e-12 {
		t.Fatalf("final value mismatch: %v vs %v", ev.FinalValue, last)
	}
	if math.Abs(ev.TotalReturn-(last-1)) > 1e-12 {
		t.Fatalf("total return should be final-1, got %v", ev.TotalReturn)
	}
	if ev.MaxDrawdown <= 0 {
		t.Fatalf("drop from 11 to 9.9 should register a drawdown, got %v", ev.MaxDrawdown)
	}
	if ev.Periods != 4 {
		t.Fatalf("expected 4 periods, got %d", ev.Periods)
	}
}

func TestRunBenchmarkExcess(t *testing.T) {
	prices := singleAssetPrices(10, 11, 12.1)
	w := panel.New()
	w.Set(day(1), "a", 1)
	bench := &panel.Series{}
	bench.Append(day(1), 0)
	bench.Append(day(2), 0.05)
	bench.Append(day(3), 0.05)
	res, err := New(Options{Benchmark: bench}).Run(w, prices, prices)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := res.ExcessReturns.At(day(2)); math.Abs(got-0.05) > 1e-12 {
		t.Fatalf("excess on d2 should be 0.10-0.05, got %v", got)
	}
}

func buildTrendingUniverse(assets, days int) (factor, prices *panel.Panel) {
	factor = panel.New()
	prices = panel.New()
	for i := 0; i < assets; i++ {
		code := string(rune('a' + i))
		drift := 0.001 * float64(i)
		px := 10.0
		for d := 1; d <= days; d++ {
			px *= 1 + drift
			prices.Set(day(d), code, px)
			factor.Set(day(d), code, float64(i))
		}
	}
	return factor, prices
}

func TestRunGroupedDeterministicAcrossWorkers(t *testing.T) {
	factor, prices := buildTrendingUniverse(6, 20)
	opts := GroupedOptions{NGroup: 3, TopK: 2, Descending: true, Rebalance: 2, Workers: 4}

	first, err := RunGrouped(factor, prices, prices, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	opts.Workers = 1
	second, err := RunGrouped(factor, prices, prices, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range first.TopK.Value.Values {
		if first.TopK.Value.Values[i] != second.TopK.Value.Values[i] {
			t.Fatalf("worker count changed results at %d", i)
		}
	}
	for g := range first.Groups {
		if first.Groups[g].Evaluation.FinalValue != second.Groups[g].Evaluation.FinalValue {
			t.Fatalf("group %d differs between runs", g)
		}
	}
}

func TestRunGroupedOrdersBucketsByDesirability(t *testing.T) {
	factor, prices := buildTrendingUniverse(6, 40)
	res, err := RunGrouped(factor, prices, prices, GroupedOptions{NGroup: 3, TopK: 2, Descending: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	best := res.Groups[0].Evaluation.FinalValue
	worst := res.Groups[2].Evaluation.FinalValue
	if best <= worst {
		t.Fatalf("higher-drift bucket should outperform: best=%v worst=%v", best, worst)
	}
	if res.LongShortSign != 1 {
		t.Fatalf("positive IC should give +1 spread sign, got %d", res.LongShortSign)
	}
	last := res.LongShortValue.Values[len(res.LongShortValue.Values)-1]
	if last <= 1 {
		t.Fatalf("spread value should compound above 1, got %v", last)
	}
}

func TestRunGroupedEmptyFactor(t *testing.T) {
	if _, err := RunGrouped(panel.New(), panel.New(), panel.New(), GroupedOptions{}); err == nil {
		t.Fatal("empty factor must error")
	}
}
