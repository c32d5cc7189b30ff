package strategy

import (
	"testing"
	"time"

	"github.com/rustyeddy/breakout/indicators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var entryTime = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

func snap(price, rsi, vol float64) indicators.Snapshot {
	return indicators.Snapshot{
		Time:        entryTime,
		Price:       price,
		RSI:         rsi,
		RSIReady:    true,
		VolumeRatio: vol,
		VolumeReady: true,
	}
}

func openAt(t *testing.T, price float64) Position {
	t.Helper()
	cfg := DefaultConfig()
	req := OpenRequestFor("BTCUSDT", snap(price, 25, 2.5), cfg)
	req.Quantity = 1
	return NewPosition(req, price, 1, entryTime, cfg)
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30.0, cfg.Oversold)
	assert.Equal(t, 60.0, cfg.Overbought)
	assert.Equal(t, 1.8, cfg.VolumeMultiplier)

	bad := cfg
	bad.Overbought = 20
	assert.ErrorIs(t, bad.Validate(), ErrConfig)
}

func TestEntrySignal(t *testing.T) {
	t.Parallel()

	e := NewEvaluator(DefaultConfig())

	tests := []struct {
		name string
		snap indicators.Snapshot
		want bool
	}{
		{"oversold breakout", snap(100, 25, 2.0), true},
		{"rsi at threshold", snap(100, 30, 2.0), false},
		{"volume at threshold", snap(100, 25, 1.8), false},
		{"rsi too high", snap(100, 45, 3.0), false},
		{"rsi undefined", indicators.Snapshot{Price: 100, RSI: 0, VolumeRatio: 3, VolumeReady: true}, false},
		{"volume undefined", indicators.Snapshot{Price: 100, RSI: 10, RSIReady: true}, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, e.EntrySignal(tt.snap))
		})
	}
}

func TestEvaluate_Flat(t *testing.T) {
	t.Parallel()

	e := NewEvaluator(DefaultConfig())

	d := e.Evaluate("BTCUSDT", indicators.Snapshot{Price: 100}, nil, false)
	assert.Equal(t, None, d.Kind)
	assert.Equal(t, NoteWarmup, d.Note, "unevaluable candle is distinct from a declined one")

	d = e.Evaluate("BTCUSDT", snap(100, 50, 1), nil, false)
	assert.Equal(t, None, d.Kind)
	assert.Equal(t, NoteDeclined, d.Note)

	d = e.Evaluate("BTCUSDT", snap(100, 20, 2), nil, true)
	assert.Equal(t, None, d.Kind)
	assert.Equal(t, NotePaused, d.Note)

	d = e.Evaluate("BTCUSDT", snap(100, 20, 2), nil, false)
	require.Equal(t, Open, d.Kind)
	require.NotNil(t, d.Open)
	assert.Equal(t, "BTCUSDT", d.Open.Symbol)
	assert.Equal(t, 100.0, d.Open.EntryPrice)
	assert.InDelta(t, 97.0, d.Open.StopLoss, 1e-9)
	assert.InDelta(t, 106.0, d.Open.TakeProfit, 1e-9)
	assert.Equal(t, 20.0, d.Open.Snapshot.RSI)
}

func TestNewPosition(t *testing.T) {
	t.Parallel()

	p := openAt(t, 200)
	assert.Equal(t, 200.0, p.HighestPrice)
	assert.False(t, p.TrailingActive)
	assert.InDelta(t, 194.0, p.StopLoss, 1e-9)
	assert.InDelta(t, 212.0, p.TakeProfit, 1e-9)
	assert.Equal(t, 25.0, p.EntryRSI)
	assert.Equal(t, 2.5, p.EntryVolumeRatio)
}

func TestExitPriority(t *testing.T) {
	t.Parallel()

	e := NewEvaluator(DefaultConfig())
	pos := openAt(t, 100)

	t.Run("rsi exit beats take profit", func(t *testing.T) {
		d := e.Evaluate("BTCUSDT", snap(107, 65, 1), &pos, false)
		require.Equal(t, Close, d.Kind)
		assert.Equal(t, ReasonRSIExit, d.Close.Reason)
		assert.Equal(t, 107.0, d.Close.ExitPrice)
	})

	t.Run("rsi exit beats stop loss", func(t *testing.T) {
		d := e.Evaluate("BTCUSDT", snap(90, 61, 1), &pos, false)
		assert.Equal(t, ReasonRSIExit, d.Close.Reason)
	})

	t.Run("take profit fills at target", func(t *testing.T) {
		d := e.Evaluate("BTCUSDT", snap(110, 55, 1), &pos, false)
		require.Equal(t, Close, d.Kind)
		assert.Equal(t, ReasonTakeProfit, d.Close.Reason)
		assert.InDelta(t, 106.0, d.Close.ExitPrice, 1e-9)
		assert.Equal(t, pos.Quantity, d.Close.Quantity)
	})

	t.Run("stop loss fills at stop", func(t *testing.T) {
		d := e.Evaluate("BTCUSDT", snap(95, 40, 1), &pos, false)
		require.Equal(t, Close, d.Kind)
		assert.Equal(t, ReasonStopLoss, d.Close.Reason)
		assert.InDelta(t, 97.0, d.Close.ExitPrice, 1e-9)
	})

	t.Run("holding", func(t *testing.T) {
		d := e.Evaluate("BTCUSDT", snap(101, 45, 1), &pos, false)
		assert.Equal(t, None, d.Kind)
		assert.Equal(t, NoteHolding, d.Note)
		require.NotNil(t, d.Position)
		assert.Equal(t, 101.0, d.Position.HighestPrice)
	})

	t.Run("pause does not block exits", func(t *testing.T) {
		d := e.Evaluate("BTCUSDT", snap(95, 40, 1), &pos, true)
		assert.Equal(t, Close, d.Kind)
	})

	t.Run("warmup suppresses exits", func(t *testing.T) {
		d := e.Evaluate("BTCUSDT", indicators.Snapshot{Price: 50}, &pos, false)
		assert.Equal(t, None, d.Kind)
		assert.Equal(t, NoteWarmup, d.Note)
		require.NotNil(t, d.Position)
		assert.Equal(t, 100.0, d.Position.HighestPrice)
	})
}

func TestTrailingActivation(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	pos := openAt(t, 100)

	p, moved := pos.Observe(102, cfg)
	assert.False(t, moved)
	assert.False(t, p.TrailingActive)
	assert.Equal(t, 102.0, p.HighestPrice)

	p, moved = p.Observe(104, cfg)
	assert.True(t, moved)
	assert.True(t, p.TrailingActive)
	// locked at entry*(1+distance), not high*(1-distance)
	assert.InDelta(t, 101.5, p.StopLoss, 1e-9)

	p, moved = p.Observe(110, cfg)
	assert.True(t, moved)
	assert.InDelta(t, 110*0.985, p.StopLoss, 1e-9)

	p, moved = p.Observe(105, cfg)
	assert.False(t, moved, "no new high, stop unchanged")
	assert.InDelta(t, 110*0.985, p.StopLoss, 1e-9)
	assert.Equal(t, 110.0, p.HighestPrice)

	assert.True(t, pos.StopLoss < p.StopLoss, "Observe does not mutate the receiver")
	assert.False(t, pos.TrailingActive)
}

func TestTrailingRatchetMonotonic(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	p := openAt(t, 100)

	prices := []float64{101, 103.5, 103.2, 103.6, 102, 104, 101.8, 108, 107.9, 108.1, 99}
	prevStop := p.StopLoss
	for _, px := range prices {
		p, _ = p.Observe(px, cfg)
		if p.TrailingActive {
			assert.GreaterOrEqual(t, p.StopLoss, prevStop, "price %v", px)
		}
		assert.GreaterOrEqual(t, p.HighestPrice, p.EntryPrice)
		prevStop = p.StopLoss
	}
}

func TestTrailingExit(t *testing.T) {
	t.Parallel()

	e := NewEvaluator(DefaultConfig())
	pos := openAt(t, 100)

	d := e.Evaluate("BTCUSDT", snap(105, 50, 1), &pos, false)
	require.Equal(t, None, d.Kind)
	armed := *d.Position
	require.True(t, armed.TrailingActive)

	level := 105 * (1 - 0.015)
	d = e.Evaluate("BTCUSDT", snap(103, 50, 1), &armed, false)
	require.Equal(t, Close, d.Kind)
	assert.Equal(t, ReasonTrailing, d.Close.Reason)
	assert.InDelta(t, level, d.Close.ExitPrice, 1e-9)

	d = e.Evaluate("BTCUSDT", snap(103.5, 50, 1), &armed, false)
	assert.Equal(t, None, d.Kind, "above trailing level keeps holding")

	// trailing never fires before it is armed
	_, ok := e.Exit(snap(100.5, 50, 1), Position{Symbol: "BTCUSDT", EntryPrice: 100, Quantity: 1, HighestPrice: 102.9})
	assert.False(t, ok)
}

func TestEvaluateIdempotent(t *testing.T) {
	t.Parallel()

	e := NewEvaluator(DefaultConfig())
	pos := openAt(t, 100)
	s := snap(104, 50, 1)

	first := e.Evaluate("BTCUSDT", s, &pos, false)
	second := e.Evaluate("BTCUSDT", s, &pos, false)
	assert.Equal(t, first, second)
	assert.False(t, pos.TrailingActive)

	flat1 := e.Evaluate("ETHUSDT", snap(10, 20, 3), nil, false)
	flat2 := e.Evaluate("ETHUSDT", snap(10, 20, 3), nil, false)
	assert.Equal(t, flat1, flat2)
}
