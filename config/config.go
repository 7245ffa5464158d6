package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/tradebook/ledger"
	"github.com/rustyeddy/tradebook/market"
	"github.com/rustyeddy/tradebook/portfolio"
	"github.com/rustyeddy/tradebook/strategy"
)

// Config describes one backtest run.
type Config struct {
	Capital     float64         `json:"capital" yaml:"capital"`
	Symbols     []SymbolConfig  `json:"symbols" yaml:"symbols"`
	Period      PeriodConfig    `json:"period" yaml:"period"`
	Strategy    StrategyConfig  `json:"strategy" yaml:"strategy"`
	Weighting   WeightingConfig `json:"weighting" yaml:"weighting"`
	Rebalance   RebalanceConfig `json:"rebalance" yaml:"rebalance"`
	Journal     JournalConfig   `json:"journal" yaml:"journal"`
	Log         LogConfig       `json:"log" yaml:"log"`
	MergeTrades bool            `json:"merge_trades" yaml:"merge_trades"`
	ExitPolicy  string          `json:"exit_policy,omitempty" yaml:"exit_policy,omitempty"` // fifo or lifo
	Benchmark   bool            `json:"benchmark" yaml:"benchmark"`                         // also run buy-and-hold
}

// SymbolConfig points at a daily CSV file. Weight is only read by the fixed
// weighting policy.
type SymbolConfig struct {
	Symbol string  `json:"symbol" yaml:"symbol"`
	Path   string  `json:"path" yaml:"path"`
	Weight float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// PeriodConfig bounds the trading period, YYYY-MM-DD. Either end may be
// empty. Bars before Start still warm up indicators.
type PeriodConfig struct {
	Start string `json:"start,omitempty" yaml:"start,omitempty"`
	End   string `json:"end,omitempty" yaml:"end,omitempty"`
}

type StrategyConfig struct {
	Name         string `json:"name" yaml:"name"`
	Period       int    `json:"period,omitempty" yaml:"period,omitempty"`
	SMAPeriod    int    `json:"sma_period,omitempty" yaml:"sma_period,omitempty"`
	MaxPositions int    `json:"max_positions,omitempty" yaml:"max_positions,omitempty"`
	Trend        string `json:"trend,omitempty" yaml:"trend,omitempty"` // sma or ema
	TrendDays    int    `json:"trend_days,omitempty" yaml:"trend_days,omitempty"`
}

type WeightingConfig struct {
	Policy       string `json:"policy" yaml:"policy"` // equal, fixed, volatility or volatility-atr
	MaxPositions int    `json:"max_positions,omitempty" yaml:"max_positions,omitempty"`
	Lookback     int    `json:"lookback,omitempty" yaml:"lookback,omitempty"`
}

type RebalanceConfig struct {
	Schedule string `json:"schedule" yaml:"schedule"` // never, every or month-end
	Every    int    `json:"every,omitempty" yaml:"every,omitempty"`
}

type JournalConfig struct {
	Type   string `json:"type" yaml:"type"` // "none", "csv" or "sqlite"
	Dir    string `json:"dir,omitempty" yaml:"dir,omitempty"`
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

func (s StrategyConfig) Params() strategy.Params {
	return strategy.Params{
		Period:       s.Period,
		SMAPeriod:    s.SMAPeriod,
		MaxPositions: s.MaxPositions,
		Trend:        s.Trend,
		TrendDays:    s.TrendDays,
	}
}

// Weights returns the per-symbol weights for the fixed policy.
func (c *Config) Weights() map[string]float64 {
	w := make(map[string]float64, len(c.Symbols))
	for _, s := range c.Symbols {
		w[s.Symbol] = s.Weight
	}
	return w
}

func (c *Config) Policy() (portfolio.WeightPolicy, error) {
	return portfolio.PolicyByName(c.Weighting.Policy, c.Weighting.MaxPositions, c.Weighting.Lookback, c.Weights())
}

func (c *Config) Schedule() (portfolio.Schedule, error) {
	return portfolio.ScheduleByName(c.Rebalance.Schedule, c.Rebalance.Every)
}

// Dates parses the trading period. Missing ends are zero.
func (c *Config) Dates() (start, end time.Time, err error) {
	if c.Period.Start != "" {
		if start, err = time.Parse(market.DateLayout, c.Period.Start); err != nil {
			return start, end, fmt.Errorf("period.start: %w", err)
		}
	}
	if c.Period.End != "" {
		if end, err = time.Parse(market.DateLayout, c.Period.End); err != nil {
			return start, end, fmt.Errorf("period.end: %w", err)
		}
	}
	return start, end, nil
}

// LoadFromFile loads configuration from a YAML or JSON file. Relative
// symbol paths are resolved against the file's directory.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	base := filepath.Dir(path)
	for i, s := range cfg.Symbols {
		if s.Path != "" && !filepath.IsAbs(s.Path) {
			cfg.Symbols[i].Path = filepath.Join(base, s.Path)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Capital <= 0 {
		return errors.New("capital must be positive")
	}
	if len(c.Symbols) == 0 {
		return errors.New("at least one symbol is required")
	}
	seen := map[string]bool{}
	for i, s := range c.Symbols {
		if s.Symbol == "" {
			return fmt.Errorf("symbols[%d].symbol is required", i)
		}
		if s.Path == "" {
			return fmt.Errorf("symbols[%d].path is required", i)
		}
		if s.Weight < 0 {
			return fmt.Errorf("symbols[%d].weight must not be negative", i)
		}
		if seen[s.Symbol] {
			return fmt.Errorf("symbol %s listed twice", s.Symbol)
		}
		seen[s.Symbol] = true
	}

	start, end, err := c.Dates()
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return errors.New("period.end is before period.start")
	}

	if _, err := strategy.New(c.Strategy.Name, c.Strategy.Params()); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	if _, err := c.Policy(); err != nil {
		return fmt.Errorf("weighting: %w", err)
	}
	if strings.EqualFold(c.Weighting.Policy, "fixed") {
		var sum float64
		for _, s := range c.Symbols {
			sum += s.Weight
		}
		if sum > 1+1e-9 {
			return fmt.Errorf("symbol weights sum to %.4f, must not exceed 1", sum)
		}
	}
	if c.Weighting.MaxPositions < 0 || c.Weighting.Lookback < 0 {
		return errors.New("weighting.max_positions and weighting.lookback must not be negative")
	}
	if _, err := c.Schedule(); err != nil {
		return fmt.Errorf("rebalance: %w", err)
	}
	if _, ok := ledger.ExitPolicyByName(strings.ToLower(c.ExitPolicy)); !ok {
		return fmt.Errorf("exit_policy must be 'fifo' or 'lifo', got %q", c.ExitPolicy)
	}

	switch c.Journal.Type {
	case "", "none":
	case "csv":
		if c.Journal.Dir == "" {
			return errors.New("journal dir required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return errors.New("journal db_path required for SQLite type")
		}
	default:
		return errors.New("journal.type must be 'none', 'csv' or 'sqlite'")
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q must be debug, info, warn or error", c.Log.Level)
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Capital: 10000,
		Symbols: []SymbolConfig{
			{Symbol: "SPY", Path: "data/SPY.csv"},
		},
		Strategy: StrategyConfig{
			Name:         strategy.PyramidName,
			Period:       7,
			SMAPeriod:    200,
			MaxPositions: 4,
		},
		Weighting: WeightingConfig{Policy: "equal"},
		Rebalance: RebalanceConfig{Schedule: "never"},
		Journal: JournalConfig{
			Type: "csv",
			Dir:  "./results",
		},
		Log:         LogConfig{Level: "info"},
		MergeTrades: true,
		ExitPolicy:  "fifo",
		Benchmark:   true,
	}
}
