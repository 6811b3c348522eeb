package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"factor-backtest/internal/analysis"
	"factor-backtest/internal/preprocess"
)

// Config is the on-disk configuration shape (YAML). Everything the engine
// needs is an explicit field here; components receive the relevant section by
// value at construction time and there is no other configuration channel.
type Config struct {
	Store      StoreConfig      `yaml:"store"`
	Preprocess PreprocessConfig `yaml:"preprocess"`
	Backtest   BacktestConfig   `yaml:"backtest"`
	Broker     BrokerConfig     `yaml:"broker"`
	Output     string           `yaml:"output"`
}

type StoreConfig struct {
	// QuotePath holds daily quotes (open/close, adjfactor, st, suspended)
	// and index weights; FactorPath holds computed factor columns.
	QuotePath  string `yaml:"quote_path"`
	FactorPath string `yaml:"factor_path"`
	// Pool restricts the universe to one index-membership column; empty
	// means the full store.
	Pool string `yaml:"pool"`
	// Benchmark names the index level column used for excess returns.
	Benchmark string `yaml:"benchmark"`
}

type PreprocessConfig struct {
	ReplaceZero   bool    `yaml:"replace_zero"` // treat raw zeros as missing
	Log           bool    `yaml:"log"`
	OutlierMethod string  `yaml:"outlier_method"` // mad | std | iqr
	OutlierDev    float64 `yaml:"outlier_dev"`
	OutlierPolicy string  `yaml:"outlier_policy"` // clip | drop
	Standardize   string  `yaml:"standardize"`    // zscore | minmax | none
}

type BacktestConfig struct {
	Start      string  `yaml:"start"` // YYYY-MM-DD
	Stop       string  `yaml:"stop"`  // empty = today
	PriceField string  `yaml:"price_field"`
	Delay      int     `yaml:"delay"`
	Rebalance  int     `yaml:"rebalance"`
	NGroup     int     `yaml:"ngroup"`
	TopK       int     `yaml:"topk"`
	Commission float64 `yaml:"commission"`
	Descending bool    `yaml:"descending"`
	LongShort  int     `yaml:"longshort"` // +1 | -1 | 0 = IC sign
	ICMethod   string  `yaml:"ic_method"` // pearson | spearman
	Workers    int     `yaml:"workers"`
}

type BrokerConfig struct {
	BaseURL string `yaml:"base_url"`
	// TokenEnv names the environment variable holding the API token, so the
	// token itself never lands in a config file.
	TokenEnv      string        `yaml:"token_env"`
	Group         string        `yaml:"group"`
	LotSize       int64         `yaml:"lot_size"`
	OrderInterval time.Duration `yaml:"order_interval"`
}

// Load reads, defaults and validates a config file. The file is unmarshaled
// over a fully defaulted Config, so keys absent from the file keep their
// defaults while explicit zeros (delay: 0, commission: 0) survive as set.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Defaults()
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if c.Backtest.Stop == "" {
		c.Backtest.Stop = time.Now().Format("2006-01-02")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked loads without defaulting or validation. Useful for printing
// partial configs while debugging.
func LoadUnchecked(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &c, nil
}

// Defaults returns a Config with every default filled in. Loading unmarshals
// the file over this value, which is what makes zero a configurable setting
// for the numeric fields where zero is meaningful.
func Defaults() *Config {
	c := &Config{}
	c.Preprocess.OutlierMethod = string(preprocess.MethodMAD)
	c.Preprocess.OutlierDev = 5
	c.Preprocess.OutlierPolicy = string(preprocess.PolicyClip)
	c.Preprocess.Standardize = "zscore"

	c.Backtest.PriceField = "open"
	c.Backtest.Delay = 1
	c.Backtest.Rebalance = 5
	c.Backtest.NGroup = 10
	c.Backtest.TopK = 100
	c.Backtest.Commission = 0.005
	c.Backtest.ICMethod = string(analysis.Pearson)

	c.Broker.LotSize = 100
	c.Broker.TokenEnv = "BROKER_TOKEN"
	c.Broker.OrderInterval = 2 * time.Second

	c.Output = "./report"
	return c
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Store.QuotePath == "" {
		return errors.New("store.quote_path is required")
	}
	if c.Store.FactorPath == "" {
		return errors.New("store.factor_path is required")
	}
	switch preprocess.OutlierMethod(c.Preprocess.OutlierMethod) {
	case preprocess.MethodMAD, preprocess.MethodSTD, preprocess.MethodIQR:
	default:
		return fmt.Errorf("preprocess.outlier_method %q is not mad|std|iqr", c.Preprocess.OutlierMethod)
	}
	switch preprocess.OutlierPolicy(c.Preprocess.OutlierPolicy) {
	case preprocess.PolicyClip, preprocess.PolicyDrop:
	default:
		return fmt.Errorf("preprocess.outlier_policy %q is not clip|drop", c.Preprocess.OutlierPolicy)
	}
	switch c.Preprocess.Standardize {
	case "zscore", "minmax", "none":
	default:
		return fmt.Errorf("preprocess.standardize %q is not zscore|minmax|none", c.Preprocess.Standardize)
	}
	switch analysis.CorrMethod(c.Backtest.ICMethod) {
	case analysis.Pearson, analysis.Spearman:
	default:
		return fmt.Errorf("backtest.ic_method %q is not pearson|spearman", c.Backtest.ICMethod)
	}
	if c.Backtest.NGroup < 2 {
		return errors.New("backtest.ngroup must be at least 2")
	}
	if c.Backtest.TopK < 1 {
		return errors.New("backtest.topk must be at least 1")
	}
	if c.Backtest.LongShort < -1 || c.Backtest.LongShort > 1 {
		return errors.New("backtest.longshort must be -1, 0 or 1")
	}
	if _, err := c.StartTime(); err != nil {
		return err
	}
	if _, err := c.StopTime(); err != nil {
		return err
	}
	return nil
}

// StartTime parses backtest.start; the zero time means "from the beginning".
func (c *Config) StartTime() (time.Time, error) {
	return parseDate(c.Backtest.Start, "backtest.start")
}

// StopTime parses backtest.stop.
func (c *Config) StopTime() (time.Time, error) {
	return parseDate(c.Backtest.Stop, "backtest.stop")
}

// BrokerToken resolves the API token from the configured environment
// variable.
func (c *Config) BrokerToken() (string, error) {
	tok := os.Getenv(c.Broker.TokenEnv)
	if tok == "" {
		return "", fmt.Errorf("environment variable %s is not set", c.Broker.TokenEnv)
	}
	return tok, nil
}

func parseDate(s, field string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %q is not YYYY-MM-DD", field, s)
	}
	return t, nil
}
