// Package backtest replays historical candles through the engine with a
// paper adapter and reports performance statistics.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/rustyeddy/breakout/broker"
	"github.com/rustyeddy/breakout/engine"
	"github.com/rustyeddy/breakout/indicators"
	"github.com/rustyeddy/breakout/journal"
	"github.com/rustyeddy/breakout/market"
	"github.com/rustyeddy/breakout/risk"
	"github.com/rustyeddy/breakout/strategy"
)

// RunnerOptions controls how the replay behaves.
type RunnerOptions struct {
	// If true, close all open positions at the last close of their symbol
	// once the data ends, with reason END_OF_REPLAY.
	CloseEnd bool
}

// Runner drives one engine over several symbol feeds. Candles from all
// feeds are merged by open time, ties broken by symbol, so the shared
// breaker sees closes in the order they would have happened.
type Runner struct {
	Engine   *engine.Engine
	Adapter  broker.Adapter
	Provider *indicators.Provider
	Feeds    map[string]CandleFeed
	Journal  journal.Journal // optional, receives equity points
	Options  RunnerOptions
	Log      *slog.Logger
}

// Result is the outcome of a replay.
type Result struct {
	Trades         []journal.ClosedTrade
	Equity         []journal.EquityPoint
	InitialBalance float64
	FinalBalance   float64
	Start          time.Time
	End            time.Time
	Candles        int
	Warmup         int // candles that could not be evaluated
	Rejected       int // candles dropped as malformed or out of order
	Stats          Stats
}

type head struct {
	c    market.Candle
	ok   bool
	feed CandleFeed
}

// Run executes the replay. Adapter and sizing failures on a candle are
// logged and the candle is skipped; feed errors abort the run.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.Engine == nil {
		return Result{}, fmt.Errorf("backtest: Engine is required")
	}
	if r.Adapter == nil {
		return Result{}, fmt.Errorf("backtest: Adapter is required")
	}
	if len(r.Feeds) == 0 {
		return Result{}, fmt.Errorf("backtest: at least one feed is required")
	}
	provider := r.Provider
	if provider == nil {
		provider = indicators.NewProvider(indicators.DefaultProviderConfig())
	}
	log := r.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	defer func() {
		for _, f := range r.Feeds {
			_ = f.Close()
		}
	}()

	symbols := make([]string, 0, len(r.Feeds))
	for s := range r.Feeds {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	heads := make(map[string]*head, len(symbols))
	streams := make(map[string]*indicators.Stream, len(symbols))
	last := make(map[string]market.Candle, len(symbols))
	for _, s := range symbols {
		h := &head{feed: r.Feeds[s]}
		if err := h.advance(); err != nil {
			return Result{}, fmt.Errorf("backtest: %s: %w", s, err)
		}
		heads[s] = h
		streams[s] = provider.NewStream()
	}

	res := Result{InitialBalance: r.Engine.Balance()}
	var seq market.Sequence

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		sym := ""
		for _, s := range symbols {
			h := heads[s]
			if !h.ok {
				continue
			}
			if sym == "" || h.c.Time.Before(heads[sym].c.Time) {
				sym = s
			}
		}
		if sym == "" {
			break
		}

		h := heads[sym]
		c := h.c
		c.Symbol = sym
		if err := h.advance(); err != nil {
			return res, fmt.Errorf("backtest: %s: %w", sym, err)
		}

		if err := seq.Accept(c); err != nil {
			res.Rejected++
			log.Warn("candle rejected", "symbol", sym, "err", err)
			continue
		}
		res.Candles++
		if res.Start.IsZero() || c.Time.Before(res.Start) {
			res.Start = c.Time
		}
		if c.Time.After(res.End) {
			res.End = c.Time
		}
		last[sym] = c

		snap := streams[sym].Update(c)
		step, err := r.Engine.Step(ctx, r.Adapter, sym, snap, c.Time)
		if step.Decision.Note == strategy.NoteWarmup {
			res.Warmup++
		}
		if err != nil {
			if errors.Is(err, engine.ErrInput) {
				return res, err
			}
			if errors.Is(err, broker.ErrAdapter) || errors.Is(err, risk.ErrInput) || errors.Is(err, risk.ErrSizing) {
				log.Warn("step failed", "symbol", sym, "time", c.Time, "err", err)
				continue
			}
			return res, err
		}
		if step.Closed != nil {
			r.recordClose(&res, *step.Closed, log)
		}
	}

	if r.Options.CloseEnd {
		for _, p := range r.Engine.Positions() {
			c, ok := last[p.Symbol]
			if !ok {
				continue
			}
			tr, err := r.Engine.Close(ctx, r.Adapter, strategy.CloseRequest{
				Symbol:    p.Symbol,
				Reason:    strategy.ReasonEndOfReplay,
				ExitPrice: c.Close,
				Quantity:  p.Quantity,
			}, c.Time)
			if err != nil {
				return res, fmt.Errorf("backtest: close %s at end: %w", p.Symbol, err)
			}
			r.recordClose(&res, tr, log)
		}
	}

	journal.SortByExit(res.Trades)
	res.FinalBalance = r.Engine.Balance()
	res.Stats = ComputeStats(res.Trades, res.InitialBalance)
	return res, nil
}

func (r *Runner) recordClose(res *Result, tr journal.ClosedTrade, log *slog.Logger) {
	res.Trades = append(res.Trades, tr)
	pt := journal.EquityPoint{Time: tr.ExitTime, Balance: tr.Balance}
	res.Equity = append(res.Equity, pt)
	if r.Journal != nil {
		if err := r.Journal.RecordEquity(pt); err != nil {
			log.Error("record equity failed", "err", err)
		}
	}
}

func (h *head) advance() error {
	c, ok, err := h.feed.Next()
	if err != nil {
		h.ok = false
		return err
	}
	h.c, h.ok = c, ok
	return nil
}
