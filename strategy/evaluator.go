package strategy

import "github.com/rustyeddy/breakout/indicators"

// Evaluator applies the entry and exit rules. It holds no state and every
// method is a pure function of its arguments.
type Evaluator struct {
	cfg Config
}

func NewEvaluator(cfg Config) *Evaluator {
	return &Evaluator{cfg: cfg}
}

func (e *Evaluator) Config() Config { return e.cfg }

// EntrySignal reports whether snap is an oversold volume breakout.
func (e *Evaluator) EntrySignal(snap indicators.Snapshot) bool {
	if !snap.RSIReady || !snap.VolumeReady {
		return false
	}
	return snap.RSI < e.cfg.Oversold && snap.VolumeRatio > e.cfg.VolumeMultiplier
}

// Exit checks the exit conditions for an already observed position. The
// first matching condition wins and later ones are not evaluated.
func (e *Evaluator) Exit(snap indicators.Snapshot, pos Position) (CloseRequest, bool) {
	price := snap.Price
	req := CloseRequest{Symbol: pos.Symbol, Quantity: pos.Quantity}

	if snap.RSI > e.cfg.Overbought {
		req.Reason, req.ExitPrice = ReasonRSIExit, price
		return req, true
	}

	profit := pos.ProfitPct(price)
	if profit >= e.cfg.TakeProfitPct {
		// resting limit order fills at the target, not the close
		req.Reason, req.ExitPrice = ReasonTakeProfit, pos.EntryPrice*(1+e.cfg.TakeProfitPct)
		return req, true
	}
	if profit <= -e.cfg.StopLossPct {
		req.Reason, req.ExitPrice = ReasonStopLoss, pos.EntryPrice*(1-e.cfg.StopLossPct)
		return req, true
	}
	if pos.TrailingActive {
		if level := pos.TrailingLevel(e.cfg); price <= level {
			req.Reason, req.ExitPrice = ReasonTrailing, level
			return req, true
		}
	}
	return CloseRequest{}, false
}

// Evaluate produces the decision for one candle. pos is the committed open
// position for the symbol or nil when flat; paused is the breaker gate.
// Sizing of an Open decision is left to the caller.
func (e *Evaluator) Evaluate(symbol string, snap indicators.Snapshot, pos *Position, paused bool) Decision {
	if !snap.Evaluable() {
		d := Decision{Kind: None, Note: NoteWarmup}
		if pos != nil {
			cp := *pos
			d.Position = &cp
		}
		return d
	}

	if pos != nil {
		observed, _ := pos.Observe(snap.Price, e.cfg)
		if req, ok := e.Exit(snap, observed); ok {
			return Decision{Kind: Close, Note: NoteSignal, Close: &req, Position: &observed}
		}
		return Decision{Kind: None, Note: NoteHolding, Position: &observed}
	}

	if !e.EntrySignal(snap) {
		return Decision{Kind: None, Note: NoteDeclined}
	}
	if paused {
		return Decision{Kind: None, Note: NotePaused}
	}
	req := OpenRequestFor(symbol, snap, e.cfg)
	return Decision{Kind: Open, Note: NoteSignal, Open: &req}
}
