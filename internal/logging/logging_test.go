package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNewStderrJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = "json"
	cfg.Level = "warn"

	log, closer, err := New(cfg, &buf)
	require.NoError(t, err)
	defer closer.Close()

	log.Info("dropped")
	log.Warn("kept", "symbol", "BTCUSDT")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "BTCUSDT", rec["symbol"])
}

func TestNewFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "breakout.log")
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.File = path
	cfg.Quiet = true

	log, closer, err := New(cfg, &buf)
	require.NoError(t, err)
	log.Info("position opened", "symbol", "ETHUSDT")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "position opened")
	assert.Contains(t, string(data), "symbol=ETHUSDT")
	assert.Zero(t, buf.Len(), "quiet skips stderr")
}

func TestNewBadFormat(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Format = "xml"
	_, _, err := New(cfg, nil)
	assert.Error(t, err)
}
