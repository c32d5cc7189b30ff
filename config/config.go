package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/breakout/broker"
	"github.com/rustyeddy/breakout/broker/sim"
	"github.com/rustyeddy/breakout/engine"
	"github.com/rustyeddy/breakout/indicators"
	"github.com/rustyeddy/breakout/internal/logging"
	"github.com/rustyeddy/breakout/risk"
	"github.com/rustyeddy/breakout/strategy"
)

// Config represents the complete application configuration
type Config struct {
	Account    AccountConfig             `json:"account" yaml:"account"`
	Symbols    []string                  `json:"symbols" yaml:"symbols"`
	Timeframe  time.Duration             `json:"timeframe" yaml:"timeframe"`
	Strategy   strategy.Config           `json:"strategy" yaml:"strategy"`
	Indicators indicators.ProviderConfig `json:"indicators" yaml:"indicators"`
	Risk       risk.Params               `json:"risk" yaml:"risk"`
	Journal    JournalConfig             `json:"journal" yaml:"journal"`
	Backtest   BacktestConfig            `json:"backtest" yaml:"backtest"`
	Live       LiveConfig                `json:"live" yaml:"live"`
	Log        logging.Config            `json:"log" yaml:"log"`
}

// AccountConfig contains account initialization parameters
type AccountConfig struct {
	ID       string  `json:"id" yaml:"id"`
	Currency string  `json:"currency" yaml:"currency"`
	Balance  float64 `json:"balance" yaml:"balance"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "csv", "sqlite" or "memory"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`

	// CSVMirror also writes trades_file/equity_file when the type is sqlite.
	CSVMirror bool `json:"csv_mirror,omitempty" yaml:"csv_mirror,omitempty"`
}

// BacktestConfig points the replay at candle files. Files maps a symbol to a
// CSV path; symbols without an entry use DataDir/<SYMBOL>.csv.
type BacktestConfig struct {
	DataDir     string            `json:"data_dir" yaml:"data_dir"`
	Files       map[string]string `json:"files,omitempty" yaml:"files,omitempty"`
	From        time.Time         `json:"from,omitempty" yaml:"from,omitempty"`
	To          time.Time         `json:"to,omitempty" yaml:"to,omitempty"`
	SummaryFile string            `json:"summary_file,omitempty" yaml:"summary_file,omitempty"`
	CloseAtEnd  bool              `json:"close_at_end" yaml:"close_at_end"`
}

// LiveConfig drives the polling loop.
type LiveConfig struct {
	WSURL        string             `json:"ws_url" yaml:"ws_url"`
	PollInterval time.Duration      `json:"poll_interval" yaml:"poll_interval"`
	SymbolDelay  time.Duration      `json:"symbol_delay" yaml:"symbol_delay"`
	Window       int                `json:"window" yaml:"window"`
	StateFile    string             `json:"state_file" yaml:"state_file"`
	MetricsAddr  string             `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty"`
	Guard        broker.GuardConfig `json:"guard" yaml:"guard"`
	Lots         map[string]sim.Lot `json:"lots,omitempty" yaml:"lots,omitempty"`
}

// Engine returns the engine section of the configuration.
func (c *Config) Engine() engine.Config {
	return engine.Config{Strategy: c.Strategy, Risk: c.Risk}
}

// DataFile is the candle file for symbol.
func (b BacktestConfig) DataFile(symbol string) string {
	if f, ok := b.Files[symbol]; ok {
		return f
	}
	dir := b.DataDir
	if dir == "" {
		dir = "."
	}
	return strings.TrimRight(dir, "/") + "/" + symbol + ".csv"
}

// LoadFromFile loads configuration from a file (YAML, falling back to JSON).
// Missing sections keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.Balance <= 0 {
		return fmt.Errorf("account.balance must be positive")
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols: at least one symbol is required")
	}
	seen := map[string]bool{}
	for _, s := range c.Symbols {
		if s == "" || seen[s] {
			return fmt.Errorf("symbols: empty or duplicate symbol %q", s)
		}
		seen[s] = true
	}
	if c.Timeframe <= 0 {
		return fmt.Errorf("timeframe must be positive")
	}
	if err := c.Strategy.Validate(); err != nil {
		return err
	}
	if c.Indicators.RSIPeriod < 1 || c.Indicators.VolumePeriod < 1 || c.Indicators.ATRPeriod < 1 {
		return fmt.Errorf("indicators: periods must be at least 1")
	}
	if err := c.Risk.Validate(); err != nil {
		return err
	}

	switch c.Journal.Type {
	case "memory":
	case "csv":
		if c.Journal.TradesFile == "" {
			return fmt.Errorf("journal trades_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
		if c.Journal.CSVMirror && c.Journal.TradesFile == "" {
			return fmt.Errorf("journal trades_file required for csv_mirror")
		}
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'memory'")
	}

	if !c.Backtest.From.IsZero() && !c.Backtest.To.IsZero() && !c.Backtest.From.Before(c.Backtest.To) {
		return fmt.Errorf("backtest.from must be before backtest.to")
	}
	if c.Live.PollInterval <= 0 {
		return fmt.Errorf("live.poll_interval must be positive")
	}
	if c.Live.SymbolDelay < 0 {
		return fmt.Errorf("live.symbol_delay must not be negative")
	}
	if c.Live.Window < c.Indicators.RSIPeriod+1 {
		return fmt.Errorf("live.window %d is shorter than the RSI warmup %d", c.Live.Window, c.Indicators.RSIPeriod+1)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			ID:       "PAPER-001",
			Currency: "USDT",
			Balance:  10000,
		},
		Symbols:    []string{"BTCUSDT", "ETHUSDT"},
		Timeframe:  time.Hour,
		Strategy:   strategy.DefaultConfig(),
		Indicators: indicators.DefaultProviderConfig(),
		Risk:       risk.DefaultParams(),
		Journal: JournalConfig{
			Type:       "csv",
			TradesFile: "./trades.csv",
			EquityFile: "./equity.csv",
		},
		Backtest: BacktestConfig{
			DataDir:     "./data",
			SummaryFile: "./summary.json",
			CloseAtEnd:  true,
		},
		Live: LiveConfig{
			WSURL:        "wss://stream.bybit.com/v5/public/linear",
			PollInterval: time.Minute,
			SymbolDelay:  2 * time.Second,
			Window:       100,
			StateFile:    "./state.json",
			Guard:        broker.DefaultGuardConfig(),
			Lots: map[string]sim.Lot{
				"BTCUSDT": {MinQty: 0.001, QtyStep: 0.001},
				"ETHUSDT": {MinQty: 0.01, QtyStep: 0.01},
			},
		},
		Log: logging.DefaultConfig(),
	}
}
