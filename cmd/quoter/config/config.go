package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator"
	"github.com/defistate/fixedrate-client-go/protocols/fixedrate/calculator/fixedpointmath"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// QuoterConfig is the quoter's configuration file.
type QuoterConfig struct {
	// Snapshots are read in order. The first is the base; each later one is diffed against
	// and patched onto the running state.
	Snapshots   []string         `yaml:"snapshots"`
	ChainID     uint64           `yaml:"chainId"`
	MetricsAddr string           `yaml:"metricsAddr"` // optional, serves /metrics until interrupted
	Calculator  CalculatorConfig `yaml:"calculator"`
	Quotes      QuoteConfig      `yaml:"quotes"`
}

// CalculatorConfig overrides calculator.DefaultConfig. Unset fields keep their defaults.
type CalculatorConfig struct {
	YearLength             uint64 `yaml:"yearLength"`
	MaxLongIterations      *int   `yaml:"maxLongIterations"`
	MaxShortIterations     *int   `yaml:"maxShortIterations"`
	DistributeIterations   *int   `yaml:"distributeIterations"`
	ShareProceedsTolerance string `yaml:"shareProceedsTolerance"` // decimal, in shares
}

// QuoteConfig holds the trade sizes quoted against every pool, as decimals.
type QuoteConfig struct {
	OpenLongShares string `yaml:"openLongShares"`
	OpenShortBonds string `yaml:"openShortBonds"`
}

// LoadConfig reads, defaults and validates the configuration at path.
func LoadConfig(path string) (*QuoterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var cfg QuoterConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *QuoterConfig) applyDefaults() {
	if c.Quotes.OpenLongShares == "" {
		c.Quotes.OpenLongShares = "1"
	}
	if c.Quotes.OpenShortBonds == "" {
		c.Quotes.OpenShortBonds = "1"
	}
}

func (c *QuoterConfig) validate() error {
	if len(c.Snapshots) == 0 {
		return errors.New("config: at least one snapshot is required")
	}
	if c.ChainID == 0 {
		return errors.New("config: chainId is required")
	}
	if _, err := c.CalculatorConfig(); err != nil {
		return err
	}
	if _, _, err := c.QuoteAmounts(); err != nil {
		return err
	}
	return nil
}

// QuoteAmounts returns the configured open long shares and open short bonds in fixed point.
func (c *QuoterConfig) QuoteAmounts() (longShares, shortBonds *big.Int, err error) {
	longShares, err = ParseAmount(c.Quotes.OpenLongShares)
	if err != nil {
		return nil, nil, fmt.Errorf("config: quotes.openLongShares: %w", err)
	}
	shortBonds, err = ParseAmount(c.Quotes.OpenShortBonds)
	if err != nil {
		return nil, nil, fmt.Errorf("config: quotes.openShortBonds: %w", err)
	}
	return longShares, shortBonds, nil
}

// CalculatorConfig returns the calculator configuration with the overrides applied.
func (c *QuoterConfig) CalculatorConfig() (calculator.Config, error) {
	cfg := calculator.DefaultConfig()
	o := c.Calculator
	if o.YearLength != 0 {
		cfg.YearLength = o.YearLength
	}
	if o.MaxLongIterations != nil {
		cfg.MaxLongIterations = *o.MaxLongIterations
	}
	if o.MaxShortIterations != nil {
		cfg.MaxShortIterations = *o.MaxShortIterations
	}
	if o.DistributeIterations != nil {
		cfg.DistributeIterations = *o.DistributeIterations
	}
	if o.ShareProceedsTolerance != "" {
		tolerance, err := ParseAmount(o.ShareProceedsTolerance)
		if err != nil {
			return calculator.Config{}, fmt.Errorf("config: calculator.shareProceedsTolerance: %w", err)
		}
		cfg.ShareProceedsTolerance = tolerance
	}
	if cfg.MaxLongIterations < 0 || cfg.MaxShortIterations < 0 || cfg.DistributeIterations < 0 {
		return calculator.Config{}, errors.New("config: calculator iteration budgets cannot be negative")
	}
	return cfg, nil
}

// ParseAmount reads a decimal such as "12.5" into an 18 decimal fixed-point integer.
func ParseAmount(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	v, err := fixedpointmath.FromDecimal(d)
	if err != nil {
		return nil, err
	}
	return v.ToBig(), nil
}
