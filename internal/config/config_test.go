package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimal = `
store:
  quote_path: quotes.db
  factor_path: factors.db
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Preprocess.OutlierMethod != "mad" || cfg.Preprocess.OutlierDev != 5 {
		t.Fatalf("outlier defaults wrong: %+v", cfg.Preprocess)
	}
	if cfg.Preprocess.Standardize != "zscore" {
		t.Fatalf("standardize should default to zscore, got %q", cfg.Preprocess.Standardize)
	}
	if cfg.Backtest.NGroup != 10 || cfg.Backtest.TopK != 100 || cfg.Backtest.Rebalance != 5 {
		t.Fatalf("backtest defaults wrong: %+v", cfg.Backtest)
	}
	if cfg.Backtest.Delay != 1 || cfg.Backtest.Commission != 0.005 {
		t.Fatalf("delay/commission defaults wrong: %+v", cfg.Backtest)
	}
	if cfg.Broker.LotSize != 100 || cfg.Broker.OrderInterval != 2*time.Second {
		t.Fatalf("broker defaults wrong: %+v", cfg.Broker)
	}
	if cfg.Output != "./report" {
		t.Fatalf("output default wrong: %q", cfg.Output)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal+`
preprocess:
  outlier_method: iqr
  outlier_dev: 0.05
  outlier_policy: drop
backtest:
  start: "2023-01-01"
  stop: "2024-01-01"
  ngroup: 5
  ic_method: spearman
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Preprocess.OutlierMethod != "iqr" || cfg.Preprocess.OutlierPolicy != "drop" {
		t.Fatalf("overrides lost: %+v", cfg.Preprocess)
	}
	start, err := cfg.StartTime()
	if err != nil || start.Year() != 2023 {
		t.Fatalf("start parse: %v %v", start, err)
	}
}

func TestLoadKeepsExplicitZeros(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal+`
backtest:
  delay: 0
  commission: 0
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backtest.Delay != 0 {
		t.Fatalf("explicit delay 0 re-defaulted to %d", cfg.Backtest.Delay)
	}
	if cfg.Backtest.Commission != 0 {
		t.Fatalf("explicit commission 0 re-defaulted to %v", cfg.Backtest.Commission)
	}
	// Untouched siblings in the same section still default.
	if cfg.Backtest.Rebalance != 5 || cfg.Backtest.NGroup != 10 {
		t.Fatalf("sibling defaults lost: %+v", cfg.Backtest)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	bad := []string{
		"store:\n  factor_path: f.db\n", // missing quote_path
		minimal + "preprocess:\n  outlier_method: winsor\n",
		minimal + "preprocess:\n  standardize: rank\n",
		minimal + "backtest:\n  ic_method: kendall\n",
		minimal + "backtest:\n  ngroup: 1\n",
		minimal + "backtest:\n  longshort: 2\n",
		minimal + "backtest:\n  start: 01/02/2023\n",
	}
	for i, body := range bad {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("case %d should fail validation", i)
		}
	}
}

func TestBrokerTokenFromEnv(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Setenv("BROKER_TOKEN", "")
	if _, err := cfg.BrokerToken(); err == nil {
		t.Fatal("empty token env must error")
	}
	t.Setenv("BROKER_TOKEN", "secret")
	tok, err := cfg.BrokerToken()
	if err != nil || tok != "secret" {
		t.Fatalf("token resolution failed: %q %v", tok, err)
	}
}
