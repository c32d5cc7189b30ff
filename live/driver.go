// Package live runs the engine against a streaming candle source on a
// coarse timer, one symbol at a time.
package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/rustyeddy/breakout/broker"
	"github.com/rustyeddy/breakout/engine"
	"github.com/rustyeddy/breakout/indicators"
	"github.com/rustyeddy/breakout/market"
)

// CandleSource returns the closed candles for a symbol, oldest first.
type CandleSource interface {
	Candles(ctx context.Context, symbol string) ([]market.Candle, error)
}

// Driver polls the source and steps the engine for each new closed candle.
type Driver struct {
	Engine       *engine.Engine
	Adapter      broker.Adapter
	Source       CandleSource
	Provider     *indicators.Provider
	Symbols      []string
	PollInterval time.Duration
	SymbolDelay  time.Duration
	StateFile    string // empty disables persistence
	Log          *slog.Logger
	Now          func() time.Time

	lastSeen map[string]time.Time
}

func (d *Driver) init() error {
	if d.Engine == nil || d.Adapter == nil || d.Source == nil {
		return fmt.Errorf("live: Engine, Adapter and Source are required")
	}
	if len(d.Symbols) == 0 {
		return fmt.Errorf("live: no symbols")
	}
	if d.Provider == nil {
		d.Provider = indicators.NewProvider(indicators.DefaultProviderConfig())
	}
	if d.Log == nil {
		d.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.PollInterval <= 0 {
		d.PollInterval = time.Minute
	}
	if d.lastSeen == nil {
		d.lastSeen = make(map[string]time.Time, len(d.Symbols))
	}
	return nil
}

// Run ticks immediately and then every PollInterval until ctx is done.
func (d *Driver) Run(ctx context.Context) error {
	if err := d.init(); err != nil {
		return err
	}
	d.Log.Info("live driver started", "symbols", d.Symbols, "poll", d.PollInterval, "symbol_delay", d.SymbolDelay)

	ticker := time.NewTicker(d.PollInterval)
	defer ticker.Stop()
	for {
		if err := d.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.Log.Error("tick failed", "err", err)
		}
		select {
		case <-ctx.Done():
			d.saveState()
			d.Log.Info("live driver stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick evaluates every symbol once. A symbol whose newest candle was
// already processed is skipped; a failed step is retried on the next tick.
func (d *Driver) Tick(ctx context.Context) error {
	if err := d.init(); err != nil {
		return err
	}
	var first error
	for i, sym := range d.Symbols {
		if i > 0 && d.SymbolDelay > 0 {
			t := time.NewTimer(d.SymbolDelay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if err := d.step(ctx, sym); err != nil {
			d.Log.Warn("step failed", "symbol", sym, "err", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (d *Driver) step(ctx context.Context, sym string) error {
	candles, err := d.Source.Candles(ctx, sym)
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return nil
	}
	last := candles[len(candles)-1]
	if seen, ok := d.lastSeen[sym]; ok && !last.Time.After(seen) {
		return nil
	}

	snap := d.Provider.Compute(candles)
	res, err := d.Engine.Step(ctx, d.Adapter, sym, snap, d.Now())
	if err != nil {
		if res.StopMoved {
			d.saveState()
		}
		return err
	}
	d.lastSeen[sym] = last.Time

	if res.Opened != nil || res.Closed != nil || res.StopMoved {
		d.saveState()
	}
	return nil
}

func (d *Driver) saveState() {
	if d.StateFile == "" {
		return
	}
	if err := engine.SaveState(d.StateFile, d.Engine.Snapshot(d.Now())); err != nil {
		d.Log.Error("save state failed", "path", d.StateFile, "err", err)
	}
}
