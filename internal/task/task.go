// Package task wires the stores, the preprocessing chain, the simulators and
// the execution reconciler into the operations the CLI and the API expose:
// dump a factor, test a factor, rebalance a live portfolio.
package task

import (
	"fmt"
	"math"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"factor-backtest/internal/analysis"
	"factor-backtest/internal/backtest"
	"factor-backtest/internal/broker"
	"factor-backtest/internal/config"
	"factor-backtest/internal/factor"
	"factor-backtest/internal/panel"
	"factor-backtest/internal/preprocess"
	"factor-backtest/internal/rebalance"
	"factor-backtest/internal/store"
)

// Tester owns the open stores and configuration for one run.
type Tester struct {
	cfg      *config.Config
	quotes   *store.PanelStore
	factors  *store.PanelStore
	registry *factor.Registry
	log      *zap.SugaredLogger
}

func NewTester(cfg *config.Config, reg *factor.Registry, log *zap.SugaredLogger) (*Tester, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if reg == nil {
		reg = factor.Builtin()
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	quotes, err := store.Open(cfg.Store.QuotePath, log)
	if err != nil {
		return nil, err
	}
	factors, err := store.Open(cfg.Store.FactorPath, log)
	if err != nil {
		return nil, err
	}
	return &Tester{cfg: cfg, quotes: quotes, factors: factors, registry: reg, log: log}, nil
}

// Close releases both store connection pools. A Tester is meant to live as
// long as its process (the API server opens one at startup); Close exists so
// that lifetime has an explicit end.
func (t *Tester) Close() error {
	qerr := t.quotes.Close()
	ferr := t.factors.Close()
	if qerr != nil {
		return qerr
	}
	return ferr
}

// WithConfig derives a Tester that runs under a different configuration while
// sharing the open stores, registry and logger. Per-request API overrides go
// through here so every request does not reopen the sqlite files.
func (t *Tester) WithConfig(cfg *config.Config) *Tester {
	clone := *t
	clone.cfg = cfg
	return &clone
}

// Config exposes the active configuration.
func (t *Tester) Config() *config.Config { return t.cfg }

// Registry exposes the factor registry (the API lists it).
func (t *Tester) Registry() *factor.Registry { return t.registry }

// Quotes exposes the quote store for calendar lookups.
func (t *Tester) Quotes() *store.PanelStore { return t.quotes }

// Factors exposes the factor store (the API lists its columns).
func (t *Tester) Factors() *store.PanelStore { return t.factors }

// Dump computes a registered factor over [start, stop] and writes it into the
// factor store, creating or overwriting its column.
func (t *Tester) Dump(name string, start, stop time.Time) error {
	fn, ok := t.registry.Get(name)
	if !ok {
		return fmt.Errorf("factor %q is not registered", name)
	}
	t.log.Infow("dumping factor", "factor", name, "start", start, "stop", stop)
	p, err := fn(t.quotes, start, stop)
	if err != nil {
		return fmt.Errorf("compute %s: %w", name, err)
	}
	cols, err := t.factors.Columns()
	if err != nil {
		return err
	}
	for _, c := range cols {
		if c == name {
			return t.factors.Update(name, p)
		}
	}
	return t.factors.Add(name, p)
}

// Prepared bundles the cleaned inputs of one factor test.
type Prepared struct {
	Factor    *panel.Panel
	Buy       *panel.Panel
	Sell      *panel.Panel
	Benchmark *panel.Series // per-period returns; nil without a benchmark column
}

// Prepare loads and cleans everything a historical test needs: the pooled raw
// factor run through the preprocessing chain, adjusted tradable prices for
// both legs, and the benchmark return series.
func (t *Tester) Prepare(factorName string) (*Prepared, error) {
	start, _ := t.cfg.StartTime()
	stop, _ := t.cfg.StopTime()

	var pool *panel.Panel
	var codes []string
	if t.cfg.Store.Pool != "" {
		var err error
		pool, err = t.quotes.Pool(t.cfg.Store.Pool, start, stop)
		if err != nil {
			return nil, fmt.Errorf("read pool %s: %w", t.cfg.Store.Pool, err)
		}
		codes = store.PoolCodes(pool)
	}

	raw, err := t.factors.ReadField(factorName, codes, start, stop)
	if err != nil {
		return nil, fmt.Errorf("read factor %s: %w", factorName, err)
	}
	if raw.Len() == 0 {
		return nil, fmt.Errorf("factor %q has no data in range", factorName)
	}
	if pool != nil {
		raw = raw.Intersect(pool)
	}

	cleaned, err := t.preprocessChain(raw)
	if err != nil {
		return nil, err
	}

	buy, err := t.quotes.Prices(t.cfg.Backtest.PriceField, codes, start, stop)
	if err != nil {
		return nil, fmt.Errorf("read prices: %w", err)
	}
	// The same field serves both legs; a separate sell-side field would be
	// read here if configured.
	sell := buy

	var bench *panel.Series
	if t.cfg.Store.Benchmark != "" {
		levels, err := t.quotes.ReadField(t.cfg.Store.Benchmark, nil, start, stop)
		if err != nil {
			return nil, fmt.Errorf("read benchmark %s: %w", t.cfg.Store.Benchmark, err)
		}
		bench = levelSeries(levels).PctChange()
	}

	return &Prepared{Factor: cleaned, Buy: buy, Sell: sell, Benchmark: bench}, nil
}

func (t *Tester) preprocessChain(p *panel.Panel) (*panel.Panel, error) {
	pc := t.cfg.Preprocess
	if pc.ReplaceZero {
		p = preprocess.Replace(p, 0, math.NaN())
	}
	if pc.Log {
		p = preprocess.Log(p)
	}
	p, err := preprocess.Outlier(p, preprocess.OutlierMethod(pc.OutlierMethod), pc.OutlierDev, preprocess.OutlierPolicy(pc.OutlierPolicy))
	if err != nil {
		return nil, err
	}
	switch pc.Standardize {
	case "zscore":
		p = preprocess.ZScore(p)
	case "minmax":
		p = preprocess.MinMax(p)
	}
	return p, nil
}

// Backtest runs the full layered test for one factor and writes the CSV
// artifacts under the output directory.
func (t *Tester) Backtest(factorName string) (*backtest.GroupedResult, error) {
	prep, err := t.Prepare(factorName)
	if err != nil {
		return nil, err
	}
	bc := t.cfg.Backtest
	res, err := backtest.RunGrouped(prep.Factor, prep.Buy, prep.Sell, backtest.GroupedOptions{
		Options: backtest.Options{
			Delay:      bc.Delay,
			Commission: bc.Commission,
			Benchmark:  prep.Benchmark,
		},
		NGroup:     bc.NGroup,
		TopK:       bc.TopK,
		Descending: bc.Descending,
		Rebalance:  bc.Rebalance,
		LongShort:  bc.LongShort,
		ICMethod:   analysis.CorrMethod(bc.ICMethod),
		Workers:    bc.Workers,
	})
	if err != nil {
		return nil, err
	}
	dir := t.outputDir(factorName)
	if err := backtest.WriteGroupedCSV(dir, res); err != nil {
		return nil, fmt.Errorf("write artifacts: %w", err)
	}

	crossDate, err := analysis.LastCrossDate(prep.Factor, 0, bc.Rebalance)
	if err == nil {
		if rows, err := analysis.CrossSection(prep.Factor, prep.Buy, bc.Rebalance, crossDate); err == nil {
			if err := backtest.WriteCrossSectionCSV(filepath.Join(dir, "cross_section.csv"), rows); err != nil {
				return nil, fmt.Errorf("write cross section: %w", err)
			}
		}
	}
	t.log.Infow("backtest finished", "factor", factorName,
		"ic_mean", res.ICSummary.Mean, "ic_ir", res.ICSummary.IR,
		"topk_total_return", res.TopK.Evaluation.TotalReturn, "out", dir)
	return res, nil
}

// InfoCoef runs just the information-coefficient evaluation.
func (t *Tester) InfoCoef(factorName string) (*panel.Series, analysis.ICSummary, error) {
	prep, err := t.Prepare(factorName)
	if err != nil {
		return nil, analysis.ICSummary{}, err
	}
	fwd := panel.SpanReturns(prep.Buy, t.cfg.Backtest.Rebalance)
	ic, err := analysis.InfoCoef(prep.Factor, fwd, analysis.CorrMethod(t.cfg.Backtest.ICMethod))
	if err != nil {
		return nil, analysis.ICSummary{}, err
	}
	return ic, analysis.Summarize(ic), nil
}

// TargetsAsOf resolves the rebalance date (the most recent completed trading
// day) and the factor's top-K target set on it. topk <= 0 falls back to the
// configured value.
func (t *Tester) TargetsAsOf(factorName string, topk int) (time.Time, []string, error) {
	if topk <= 0 {
		topk = t.cfg.Backtest.TopK
	}
	date, err := t.quotes.TradingDaysRollback(time.Now(), 1)
	if err != nil {
		return time.Time{}, nil, err
	}
	target, err := rebalance.Targets(t.quotes, t.factors, factorName, t.cfg.Store.Pool, date, topk, t.cfg.Backtest.Descending)
	if err != nil {
		return time.Time{}, nil, err
	}
	return date, target, nil
}

// Rebalance reconciles the configured brokerage group toward the factor's
// top-K selection as of the most recent completed trading day. The caller
// supplies the client so the dry-run path can substitute a recording one.
func (t *Tester) Rebalance(client broker.Client, factorName string) (*rebalance.Report, error) {
	date, target, err := t.TargetsAsOf(factorName, 0)
	if err != nil {
		return nil, err
	}
	t.log.Infow("rebalance targets", "factor", factorName, "date", date, "targets", target)

	group := t.cfg.Broker.Group
	if group == "" {
		groups, err := client.GroupList()
		if err != nil {
			return nil, fmt.Errorf("list groups: %w", err)
		}
		if len(groups) == 0 {
			return nil, fmt.Errorf("broker returned no groups")
		}
		group = groups[0].ID
	}
	rec := rebalance.New(client, t.log, t.cfg.Broker.LotSize)
	return rec.Run(group, target)
}

func (t *Tester) outputDir(factorName string) string {
	exp := fmt.Sprintf("%s-%s-%s-%d", t.cfg.Backtest.Start, t.cfg.Backtest.Stop, t.cfg.Store.Pool, t.cfg.Backtest.Rebalance)
	return filepath.Join(t.cfg.Output, factorName, exp)
}

// levelSeries flattens a single-asset panel (an index level table) into a
// series, averaging in the unexpected case of several assets.
func levelSeries(p *panel.Panel) *panel.Series {
	out := &panel.Series{}
	for _, d := range p.Dates() {
		row := p.Row(d)
		if len(row) == 0 {
			continue
		}
		var sum float64
		for _, v := range row {
			sum += v
		}
		out.Append(d, sum/float64(len(row)))
	}
	return out
}
