package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"factor-backtest/internal/config"
	"factor-backtest/internal/panel"
	"factor-backtest/internal/store"
	"factor-backtest/internal/task"
)

// Demo:
// - Seed a throwaway quote store with synthetic random-walk prices
// - Dump the built-in momentum factor into a factor store
// - Run the layered backtest end to end and print the evaluation
func main() {
	assets := flag.Int("assets", 30, "Number of synthetic assets")
	days := flag.Int("days", 250, "Number of trading days")
	seed := flag.Int64("seed", 42, "RNG seed")
	keep := flag.Bool("keep", false, "Keep the generated stores and report")
	flag.Parse()

	dir, err := os.MkdirTemp("", "factor-demo-")
	if err != nil {
		panic(err)
	}
	if !*keep {
		defer os.RemoveAll(dir)
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	sugar := log.Sugar()

	cfg := &config.Config{}
	cfg.Store.QuotePath = filepath.Join(dir, "quotes.db")
	cfg.Store.FactorPath = filepath.Join(dir, "factors.db")
	cfg.Preprocess.OutlierMethod = "mad"
	cfg.Preprocess.OutlierDev = 5
	cfg.Preprocess.OutlierPolicy = "clip"
	cfg.Preprocess.Standardize = "zscore"
	cfg.Backtest.Start = "2024-01-01"
	cfg.Backtest.Stop = "2025-12-31"
	cfg.Backtest.PriceField = "close"
	cfg.Backtest.Delay = 1
	cfg.Backtest.Rebalance = 5
	cfg.Output = filepath.Join(dir, "report")

	if err := seedQuotes(cfg.Store.QuotePath, sugar, *assets, *days, *seed); err != nil {
		panic(err)
	}

	tester, err := task.NewTester(cfg, nil, sugar)
	if err != nil {
		panic(err)
	}
	start, _ := cfg.StartTime()
	stop, _ := cfg.StopTime()
	if err := tester.Dump("momentum_20d", start, stop); err != nil {
		panic(err)
	}

	// Small universe: shrink the grouping so every bucket stays populated.
	cfg.Backtest.NGroup = 3
	cfg.Backtest.TopK = 5
	res, err := tester.Backtest("momentum_20d")
	if err != nil {
		panic(err)
	}

	eval := res.TopK.Evaluation
	fmt.Printf("assets=%d days=%d\n", *assets, *days)
	fmt.Printf("TopK: total=%.4f annualized=%.4f sharpe=%.3f maxdd=%.4f\n",
		eval.TotalReturn, eval.AnnualizedReturn, eval.Sharpe, eval.MaxDrawdown)
	fmt.Printf("IC: mean=%.4f ir=%.3f n=%d\n", res.ICSummary.Mean, res.ICSummary.IR, res.ICSummary.N)
	if *keep {
		fmt.Printf("artifacts kept under %s\n", dir)
	}
}

// seedQuotes fills a quote store with geometric random walks plus flat
// adjfactor and market cap columns, weekdays only.
func seedQuotes(path string, log *zap.SugaredLogger, assets, days int, seed int64) error {
	st, err := store.Open(path, log)
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(seed))

	var dates []time.Time
	d := panel.Day(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	for len(dates) < days {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			dates = append(dates, d)
		}
		d = d.AddDate(0, 0, 1)
	}

	closeP := panel.New()
	adj := panel.New()
	capP := panel.New()
	for i := 0; i < assets; i++ {
		code := fmt.Sprintf("%06d", 1+i)
		price := 10 + 40*rng.Float64()
		drift := (rng.Float64() - 0.45) * 0.002
		for _, dt := range dates {
			price *= math.Exp(drift + 0.02*rng.NormFloat64())
			closeP.Set(dt, code, price)
			adj.Set(dt, code, 1)
			capP.Set(dt, code, price*1e6)
		}
	}
	if err := st.Add("close", closeP); err != nil {
		return err
	}
	if err := st.Add(store.FieldAdjFactor, adj); err != nil {
		return err
	}
	return st.Add("market_cap", capP)
}
