package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"factor-backtest/internal/broker"
	"factor-backtest/internal/config"
	"factor-backtest/internal/task"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "dump":
		cmdDump(os.Args[2:])
	case "test":
		cmdTest(os.Args[2:])
	case "ic":
		cmdIC(os.Args[2:])
	case "rebalance":
		cmdRebalance(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("usage:")
	fmt.Println("  cli dump --config config.yaml --factor momentum_20d|all")
	fmt.Println("  cli test --config config.yaml --factor momentum_20d [--pool --ngroup --topk --rebalance --delay --commission --out]")
	fmt.Println("  cli ic --config config.yaml --factor momentum_20d")
	fmt.Println("  cli rebalance --config config.yaml --factor momentum_20d [--pool --topk --dry-run]")
	fmt.Println("")
	fmt.Println("notes:")
	fmt.Println("  - dump computes registered factors and writes them into the factor store")
	fmt.Println("  - test runs the layered backtest and writes CSV artifacts under output/")
	fmt.Println("  - rebalance submits real orders unless --dry-run is set; live runs need the broker token env")
}

func newLogger() *zap.SugaredLogger {
	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return log.Sugar()
}

func newTester(cfgPath string, log *zap.SugaredLogger) (*config.Config, *task.Tester) {
	if cfgPath == "" {
		fmt.Println("--config is required")
		os.Exit(2)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}
	tester, err := task.NewTester(cfg, nil, log)
	if err != nil {
		panic(err)
	}
	return cfg, tester
}

func cmdDump(args []string) {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML config")
	factor := fs.String("factor", "", "Registered factor name")
	start := fs.String("start", "", "Override start date (YYYY-MM-DD)")
	stop := fs.String("stop", "", "Override stop date (YYYY-MM-DD)")
	_ = fs.Parse(args)

	log := newLogger()
	cfg, tester := newTester(*cfgPath, log)
	if *factor == "" {
		fmt.Println("--factor is required")
		os.Exit(2)
	}
	if *start != "" {
		cfg.Backtest.Start = *start
	}
	if *stop != "" {
		cfg.Backtest.Stop = *stop
	}
	from, err := cfg.StartTime()
	if err != nil {
		panic(err)
	}
	to, err := cfg.StopTime()
	if err != nil {
		panic(err)
	}
	names := []string{*factor}
	if *factor == "all" {
		names = tester.Registry().Names()
	}
	for _, name := range names {
		if err := tester.Dump(name, from, to); err != nil {
			panic(err)
		}
		fmt.Printf("Dumped %s into %s\n", name, cfg.Store.FactorPath)
	}
}

func cmdTest(args []string) {
	fs := flag.NewFlagSet("test", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML config")
	factor := fs.String("factor", "", "Factor column to test")
	pool := fs.String("pool", "", "Override the universe pool column")
	ngroup := fs.Int("ngroup", 0, "Override the number of rank buckets")
	topk := fs.Int("topk", 0, "Override the top-K selection size")
	rebalance := fs.Int("rebalance", 0, "Override the holding period in trading days")
	delay := fs.Int("delay", 0, "Override the execution delay in trading days")
	commission := fs.Float64("commission", 0, "Override the per-turnover commission")
	out := fs.String("out", "", "Override the report output directory")
	_ = fs.Parse(args)

	log := newLogger()
	cfg, tester := newTester(*cfgPath, log)
	if *factor == "" {
		fmt.Println("--factor is required")
		os.Exit(2)
	}
	if *pool != "" {
		cfg.Store.Pool = *pool
	}
	if *ngroup > 0 {
		cfg.Backtest.NGroup = *ngroup
	}
	if *topk > 0 {
		cfg.Backtest.TopK = *topk
	}
	if *rebalance > 0 {
		cfg.Backtest.Rebalance = *rebalance
	}
	if *delay > 0 {
		cfg.Backtest.Delay = *delay
	}
	if *commission > 0 {
		cfg.Backtest.Commission = *commission
	}
	if *out != "" {
		cfg.Output = *out
	}
	res, err := tester.Backtest(*factor)
	if err != nil {
		panic(err)
	}
	eval := res.TopK.Evaluation
	fmt.Printf("TopK total return=%.4f annualized=%.4f sharpe=%.3f maxdd=%.4f turnover=%.4f\n",
		eval.TotalReturn, eval.AnnualizedReturn, eval.Sharpe, eval.MaxDrawdown, eval.TurnoverMean)
	fmt.Printf("IC mean=%.4f IR=%.3f over %d dates\n", res.ICSummary.Mean, res.ICSummary.IR, res.ICSummary.N)
}

func cmdIC(args []string) {
	fs := flag.NewFlagSet("ic", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML config")
	factor := fs.String("factor", "", "Factor column to evaluate")
	_ = fs.Parse(args)

	log := newLogger()
	cfg, tester := newTester(*cfgPath, log)
	if *factor == "" {
		fmt.Println("--factor is required")
		os.Exit(2)
	}
	_, summary, err := tester.InfoCoef(*factor)
	if err != nil {
		panic(err)
	}
	fmt.Printf("%s IC (%s): mean=%.4f std=%.4f ir=%.3f n=%d\n",
		*factor, cfg.Backtest.ICMethod, summary.Mean, summary.Std, summary.IR, summary.N)
}

func cmdRebalance(args []string) {
	fs := flag.NewFlagSet("rebalance", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML config")
	factor := fs.String("factor", "", "Factor column driving the target set")
	pool := fs.String("pool", "", "Override the universe pool column")
	topk := fs.Int("topk", 0, "Override the number of names to hold")
	dryRun := fs.Bool("dry-run", false, "Record orders against the live snapshot instead of submitting them")
	_ = fs.Parse(args)

	log := newLogger()
	cfg, tester := newTester(*cfgPath, log)
	if *factor == "" {
		fmt.Println("--factor is required")
		os.Exit(2)
	}
	if *pool != "" {
		cfg.Store.Pool = *pool
	}
	if *topk > 0 {
		cfg.Backtest.TopK = *topk
	}

	var client broker.Client
	if *dryRun {
		// Reads still hit the brokerage; only submissions are recorded.
		token, _ := cfg.BrokerToken()
		live := broker.NewHTTPClient(token, cfg.Broker.BaseURL, cfg.Broker.OrderInterval)
		client = broker.NewDryRunClient(live)
	} else {
		token, err := cfg.BrokerToken()
		if err != nil {
			panic(err)
		}
		client = broker.NewHTTPClient(token, cfg.Broker.BaseURL, cfg.Broker.OrderInterval)
	}

	started := time.Now()
	report, err := tester.Rebalance(client, *factor)
	if err != nil {
		if report != nil {
			fmt.Printf("rebalance stopped in state %s after %s: %v\n", report.State, time.Since(started), err)
		} else {
			fmt.Printf("rebalance failed: %v\n", err)
		}
		os.Exit(1)
	}
	fmt.Printf("rebalance %s: %d orders submitted, %d skipped, cash %s -> %s\n",
		report.State, len(report.Submitted), len(report.Skipped), report.CashStart, report.CashEnd)
	for _, skip := range report.Skipped {
		fmt.Printf("  skipped %s %s: %s\n", skip.Action, skip.Code, skip.Reason)
	}
}
