package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.01, cfg.Risk.RiskFraction)
	assert.Equal(t, 3.0, cfg.Risk.Leverage)
	assert.Equal(t, 24*time.Hour, cfg.Risk.PauseDuration)
	assert.Equal(t, 30.0, cfg.Strategy.Oversold)
	assert.Equal(t, 14, cfg.Indicators.RSIPeriod)
	assert.Equal(t, cfg.Strategy, cfg.Engine().Strategy)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"config.yaml", "config.json"} {
		name := name
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), name)
			cfg := Default()
			cfg.Symbols = []string{"SOLUSDT"}
			cfg.Risk.PauseDuration = 12 * time.Hour
			require.NoError(t, cfg.SaveToFile(path))

			got, err := LoadFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, []string{"SOLUSDT"}, got.Symbols)
			assert.Equal(t, 12*time.Hour, got.Risk.PauseDuration)
			assert.Equal(t, cfg.Strategy, got.Strategy)
			assert.Equal(t, cfg.Live.Lots, got.Live.Lots)
		})
	}
}

func TestLoadPartialYAMLKeepsDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "breakout.yaml")
	body := `
account:
  balance: 2500
symbols: [BTCUSDT]
risk:
  risk_fraction: 0.02
  leverage: 2
  taker_fee: 0.0004
  max_consecutive_losses: 4
  pause_duration: 6h
backtest:
  from: 2024-01-01T00:00:00Z
  to: 2024-02-01T00:00:00Z
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2500.0, cfg.Account.Balance)
	assert.Equal(t, 4, cfg.Risk.MaxConsecutiveLosses)
	assert.Equal(t, 6*time.Hour, cfg.Risk.PauseDuration)
	assert.Equal(t, time.Hour, cfg.Timeframe)
	assert.Equal(t, 60.0, cfg.Strategy.Overbought)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), cfg.Backtest.To.UTC())
	assert.Equal(t, "data/BTCUSDT.csv", filepath.Clean(cfg.Backtest.DataFile("BTCUSDT")))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero balance", func(c *Config) { c.Account.Balance = 0 }},
		{"no symbols", func(c *Config) { c.Symbols = nil }},
		{"duplicate symbol", func(c *Config) { c.Symbols = []string{"BTCUSDT", "BTCUSDT"} }},
		{"bad strategy", func(c *Config) { c.Strategy.Overbought = 10 }},
		{"bad risk", func(c *Config) { c.Risk.Leverage = 0 }},
		{"bad journal", func(c *Config) { c.Journal.Type = "kafka" }},
		{"sqlite without path", func(c *Config) { c.Journal = JournalConfig{Type: "sqlite"} }},
		{"csv mirror without trades file", func(c *Config) {
			c.Journal = JournalConfig{Type: "sqlite", DBPath: "j.db", CSVMirror: true}
		}},
		{"inverted range", func(c *Config) {
			c.Backtest.From = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
			c.Backtest.To = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		}},
		{"short window", func(c *Config) { c.Live.Window = 5 }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDataFileOverride(t *testing.T) {
	t.Parallel()

	b := BacktestConfig{DataDir: "/data/", Files: map[string]string{"ETHUSDT": "/tmp/eth.csv"}}
	assert.Equal(t, "/tmp/eth.csv", b.DataFile("ETHUSDT"))
	assert.Equal(t, "/data/BTCUSDT.csv", b.DataFile("BTCUSDT"))
}
