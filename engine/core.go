// Package engine ties the evaluator, the sizer, the position state machine,
// and the loss breaker into one decision loop. Decide and Settle are pure;
// Engine commits their results.
package engine

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/breakout/broker"
	"github.com/rustyeddy/breakout/indicators"
	"github.com/rustyeddy/breakout/journal"
	"github.com/rustyeddy/breakout/risk"
	"github.com/rustyeddy/breakout/strategy"
)

var (
	// ErrInput reports a malformed snapshot or request. Nothing is mutated.
	ErrInput = errors.New("invalid engine input")

	// ErrNoTransition is returned for an open while OPEN or a close while FLAT.
	ErrNoTransition = errors.New("no position transition")
)

// Config is the full engine configuration.
type Config struct {
	Strategy strategy.Config `yaml:"strategy" json:"strategy"`
	Risk     risk.Params     `yaml:"risk" json:"risk"`
}

func DefaultConfig() Config {
	return Config{Strategy: strategy.DefaultConfig(), Risk: risk.DefaultParams()}
}

func (c Config) Validate() error {
	if err := c.Strategy.Validate(); err != nil {
		return err
	}
	return c.Risk.Validate()
}

// Input is everything one evaluation depends on.
type Input struct {
	Symbol   string
	Snapshot indicators.Snapshot
	Position *strategy.Position // nil when flat
	Risk     risk.State
	Balance  float64
	Now      time.Time
}

// Output is the decision and the risk state after any expired pause was cleared.
type Output struct {
	Decision strategy.Decision
	Risk     risk.State
	Resumed  bool
}

// Decide evaluates one candle. The same Input always yields the same Output.
// A sizing failure returns a None decision and the sizing error; the risk
// state is still returned so a resume is not lost.
func Decide(ev *strategy.Evaluator, p risk.Params, in Input) (Output, error) {
	if in.Symbol == "" {
		return Output{Risk: in.Risk}, fmt.Errorf("%w: empty symbol", ErrInput)
	}
	if px := in.Snapshot.Price; px <= 0 || math.IsNaN(px) || math.IsInf(px, 0) {
		return Output{Risk: in.Risk}, fmt.Errorf("%w: %s price %.8f must be positive", ErrInput, in.Symbol, px)
	}

	state, resumed := in.Risk.Resume(in.Now)
	out := Output{Risk: state, Resumed: resumed}

	d := ev.Evaluate(in.Symbol, in.Snapshot, in.Position, state.Paused(in.Now))
	if d.Note == strategy.NotePaused {
		if v := state.CheckEntry(in.Now); v != nil {
			d.Detail = v.Error()
		}
	}

	if d.Kind == strategy.Open {
		size, err := risk.Size(risk.SizeInputs{
			Balance:      in.Balance,
			EntryPrice:   d.Open.EntryPrice,
			StopPrice:    d.Open.StopLoss,
			RiskFraction: p.RiskFraction,
			Leverage:     p.Leverage,
		})
		if err != nil {
			out.Decision = strategy.Decision{Kind: strategy.None, Note: strategy.NoteDeclined, Detail: err.Error()}
			return out, err
		}
		d.Open.Quantity = size.Units
	}

	out.Decision = d
	return out, nil
}

// Settle turns an open position and its exit fill into a ClosedTrade and
// folds the result into the breaker state.
func Settle(p risk.Params, pos strategy.Position, reason string, fill broker.Fill, state risk.State, now time.Time) (journal.ClosedTrade, risk.State) {
	qty := fill.Quantity
	if qty <= 0 {
		qty = pos.Quantity
	}
	exitTime := fill.Time
	if exitTime.IsZero() {
		exitTime = now
	}

	pnl := risk.Realize(pos.EntryPrice, fill.Price, qty, p.TakerFee)
	trade := journal.ClosedTrade{
		ID:               pos.TradeID,
		Symbol:           pos.Symbol,
		EntryPrice:       pos.EntryPrice,
		ExitPrice:        fill.Price,
		Quantity:         qty,
		EntryTime:        pos.EntryTime,
		ExitTime:         exitTime,
		PnLGross:         pnl.Gross,
		Commission:       pnl.Commission,
		PnLNet:           pnl.Net,
		PnLPercent:       pnl.Percent,
		Reason:           reason,
		EntryRSI:         pos.EntryRSI,
		EntryVolumeRatio: pos.EntryVolumeRatio,
	}
	return trade, state.RecordClose(pnl.Net, exitTime, p)
}
