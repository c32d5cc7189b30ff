package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/breakout/broker"
	"github.com/rustyeddy/breakout/indicators"
	"github.com/rustyeddy/breakout/journal"
	"github.com/rustyeddy/breakout/metrics"
	"github.com/rustyeddy/breakout/pkg/id"
	"github.com/rustyeddy/breakout/risk"
	"github.com/rustyeddy/breakout/strategy"
)

// Engine holds the per-symbol positions, the shared breaker state, and the
// account balance used for sizing. All methods are safe for concurrent use;
// calls are serialized so the breaker has a single writer.
type Engine struct {
	mu        sync.Mutex
	cfg       Config
	eval      *strategy.Evaluator
	positions map[string]strategy.Position
	risk      risk.State
	balance   float64
	realized  float64 // net PnL closed by this process

	ledger journal.Ledger
	log    *slog.Logger
	m      *metrics.Metrics
	newID  func(symbol string, at time.Time) string
}

type Option func(*Engine)

// WithLedger sets where closed trades are appended.
func WithLedger(l journal.Ledger) Option { return func(e *Engine) { e.ledger = l } }

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.m = m } }

// WithIDs sets the trade ID generator used when a fill carries no ID.
func WithIDs(f func(symbol string, at time.Time) string) Option {
	return func(e *Engine) { e.newID = f }
}

// New returns a flat engine with the given starting balance.
func New(cfg Config, balance float64, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if balance <= 0 {
		return nil, fmt.Errorf("%w: balance %.2f must be positive", ErrInput, balance)
	}
	e := &Engine{
		cfg:       cfg,
		eval:      strategy.NewEvaluator(cfg.Strategy),
		positions: make(map[string]strategy.Position),
		balance:   balance,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		newID:     func(symbol string, at time.Time) string { return id.Deterministic(symbol, at) },
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

func (e *Engine) Config() Config { return e.cfg }

// Evaluate decides what to do with one candle for symbol. Only an expired
// pause is committed; positions and trailing updates are left to the caller.
func (e *Engine) Evaluate(symbol string, snap indicators.Snapshot, now time.Time) (strategy.Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evaluateLocked(symbol, snap, now)
}

func (e *Engine) evaluateLocked(symbol string, snap indicators.Snapshot, now time.Time) (strategy.Decision, error) {
	var pos *strategy.Position
	if p, ok := e.positions[symbol]; ok {
		pos = &p
	}

	out, err := Decide(e.eval, e.cfg.Risk, Input{
		Symbol:   symbol,
		Snapshot: snap,
		Position: pos,
		Risk:     e.risk,
		Balance:  e.balance,
		Now:      now,
	})
	if out.Resumed {
		e.log.Info("entries resumed", "symbol", symbol, "at", now)
	}
	e.risk = out.Risk
	e.observeRisk()

	if err != nil {
		e.log.Warn("evaluation rejected", "symbol", symbol, "err", err)
		return out.Decision, err
	}

	d := out.Decision
	if e.m != nil {
		e.m.Decisions.WithLabelValues(d.Kind.String(), string(d.Note)).Inc()
	}
	switch d.Note {
	case strategy.NoteWarmup:
		e.log.Debug("no decision", "symbol", symbol, "time", snap.Time, "reason", "indicators warming up")
	case strategy.NotePaused:
		e.log.Info("entry suppressed", "symbol", symbol, "detail", d.Detail)
	}
	return d, nil
}

// Open sends req to the adapter and creates the position once it fills.
func (e *Engine) Open(ctx context.Context, a broker.Adapter, req strategy.OpenRequest, now time.Time) (strategy.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.openLocked(ctx, a, req, now)
}

func (e *Engine) openLocked(ctx context.Context, a broker.Adapter, req strategy.OpenRequest, now time.Time) (strategy.Position, error) {
	if _, ok := e.positions[req.Symbol]; ok {
		return strategy.Position{}, fmt.Errorf("%w: %s already open", ErrNoTransition, req.Symbol)
	}
	if req.Quantity <= 0 {
		return strategy.Position{}, fmt.Errorf("%w: %s quantity %.8f must be positive", ErrInput, req.Symbol, req.Quantity)
	}

	fill, err := a.Open(ctx, req)
	if err != nil {
		e.log.Warn("open failed", "symbol", req.Symbol, "err", err)
		return strategy.Position{}, adapterErr(err)
	}

	at := fill.Time
	if at.IsZero() {
		at = now
	}
	pos := strategy.NewPosition(req, fill.Price, fill.Quantity, at, e.cfg.Strategy)
	pos.TradeID = fill.TradeID
	if pos.TradeID == "" {
		pos.TradeID = e.newID(req.Symbol, at)
	}
	e.positions[req.Symbol] = pos

	if e.m != nil {
		e.m.Opens.WithLabelValues(req.Symbol).Inc()
		e.m.OpenPositions.Set(float64(len(e.positions)))
	}
	e.log.Info("position opened",
		"symbol", pos.Symbol, "trade_id", pos.TradeID,
		"entry", pos.EntryPrice, "qty", pos.Quantity,
		"stop", pos.StopLoss, "target", pos.TakeProfit,
		"rsi", pos.EntryRSI, "volume_ratio", pos.EntryVolumeRatio)
	return pos, nil
}

// Close sends req to the adapter and settles the position once it fills.
// A failed close leaves the position open.
func (e *Engine) Close(ctx context.Context, a broker.Adapter, req strategy.CloseRequest, now time.Time) (journal.ClosedTrade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeLocked(ctx, a, req, now)
}

func (e *Engine) closeLocked(ctx context.Context, a broker.Adapter, req strategy.CloseRequest, now time.Time) (journal.ClosedTrade, error) {
	pos, ok := e.positions[req.Symbol]
	if !ok {
		return journal.ClosedTrade{}, fmt.Errorf("%w: %s is flat", ErrNoTransition, req.Symbol)
	}
	if req.Quantity <= 0 {
		req.Quantity = pos.Quantity
	}

	fill, err := a.Close(ctx, req)
	if err != nil {
		e.log.Warn("close failed; position stays open", "symbol", req.Symbol, "reason", req.Reason, "err", err)
		return journal.ClosedTrade{}, adapterErr(err)
	}
	if fill.Price <= 0 {
		fill.Price = req.ExitPrice
	}
	return e.settleLocked(pos, req.Reason, fill, now), nil
}

// Reconcile settles a position the venue already closed, such as a resting
// take-profit or stop order, into the same ClosedTrade shape.
func (e *Engine) Reconcile(symbol, reason string, fill broker.Fill, now time.Time) (journal.ClosedTrade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[symbol]
	if !ok {
		return journal.ClosedTrade{}, fmt.Errorf("%w: %s is flat", ErrNoTransition, symbol)
	}
	if fill.Price <= 0 {
		return journal.ClosedTrade{}, fmt.Errorf("%w: %s fill price %.8f must be positive", ErrInput, symbol, fill.Price)
	}
	return e.settleLocked(pos, reason, fill, now), nil
}

func (e *Engine) settleLocked(pos strategy.Position, reason string, fill broker.Fill, now time.Time) journal.ClosedTrade {
	wasPaused := e.risk.Paused(now)

	trade, state := Settle(e.cfg.Risk, pos, reason, fill, e.risk, now)
	delete(e.positions, pos.Symbol)
	e.risk = state
	e.balance += trade.PnLNet
	e.realized += trade.PnLNet
	trade.Balance = e.balance

	if e.m != nil {
		e.m.Closes.WithLabelValues(trade.Symbol, trade.Reason).Inc()
		e.m.OpenPositions.Set(float64(len(e.positions)))
		e.m.RealizedPnL.Set(e.realized)
	}
	e.observeRisk()

	e.log.Info("position closed",
		"symbol", trade.Symbol, "trade_id", trade.ID, "reason", trade.Reason,
		"entry", trade.EntryPrice, "exit", trade.ExitPrice, "qty", trade.Quantity,
		"pnl_net", trade.PnLNet, "commission", trade.Commission, "balance", trade.Balance)

	if !wasPaused && e.risk.Paused(trade.ExitTime) {
		e.log.Warn("entries paused",
			"consecutive_losses", e.risk.ConsecutiveLosses,
			"until", e.risk.PausedUntil)
	}

	if e.ledger != nil {
		if err := e.ledger.Append(trade); err != nil {
			if e.m != nil {
				e.m.LedgerFailures.Inc()
			}
			e.log.Error("ledger append failed", "trade_id", trade.ID, "err", err)
		}
	}
	return trade
}

// commitTrailingLocked stores an observed position and reports whether its
// stop moved. It fails if the symbol is flat or holds a different trade.
func (e *Engine) commitTrailingLocked(pos strategy.Position) (bool, error) {
	cur, ok := e.positions[pos.Symbol]
	if !ok || cur.TradeID != pos.TradeID {
		return false, fmt.Errorf("%w: %s has no trade %q", ErrNoTransition, pos.Symbol, pos.TradeID)
	}
	if pos.StopLoss < cur.StopLoss {
		return false, fmt.Errorf("%w: %s stop %.8f below committed %.8f", ErrInput, pos.Symbol, pos.StopLoss, cur.StopLoss)
	}
	e.positions[pos.Symbol] = pos
	return pos.StopLoss != cur.StopLoss, nil
}

// StepResult reports what one Step did.
type StepResult struct {
	Decision  strategy.Decision
	Opened    *strategy.Position
	Closed    *journal.ClosedTrade
	StopMoved bool
}

// Step runs one full cycle for a candle: evaluate, commit trailing, then
// open, close, or move the stop through a.
func (e *Engine) Step(ctx context.Context, a broker.Adapter, symbol string, snap indicators.Snapshot, now time.Time) (StepResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.evaluateLocked(symbol, snap, now)
	res := StepResult{Decision: d}
	if err != nil {
		return res, err
	}

	if d.Position != nil && d.Note != strategy.NoteWarmup {
		moved, err := e.commitTrailingLocked(*d.Position)
		if err != nil {
			return res, err
		}
		res.StopMoved = moved
	}

	switch d.Kind {
	case strategy.Open:
		pos, err := e.openLocked(ctx, a, *d.Open, now)
		if err != nil {
			return res, err
		}
		res.Opened = &pos
		return res, nil
	case strategy.Close:
		trade, err := e.closeLocked(ctx, a, *d.Close, now)
		if err != nil {
			return res, err
		}
		res.Closed = &trade
		return res, nil
	}

	if res.StopMoved {
		stop := d.Position.StopLoss
		if e.m != nil {
			e.m.StopAdjustments.WithLabelValues(symbol).Inc()
		}
		e.log.Info("stop raised", "symbol", symbol, "stop", stop,
			"highest", d.Position.HighestPrice, "trailing", d.Position.TrailingActive)
		if err := a.AdjustStop(ctx, symbol, stop); err != nil {
			// the engine enforces the stop itself; the venue catches up next move
			e.log.Warn("stop sync failed", "symbol", symbol, "stop", stop, "err", err)
		}
	}
	return res, nil
}

// Position returns the open position for symbol.
func (e *Engine) Position(symbol string) (strategy.Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.positions[symbol]
	return p, ok
}

// Positions returns the open positions sorted by symbol.
func (e *Engine) Positions() []strategy.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionsLocked()
}

func (e *Engine) positionsLocked() []strategy.Position {
	out := make([]strategy.Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (e *Engine) RiskState() risk.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.risk
}

func (e *Engine) Balance() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance
}

// SetBalance replaces the sizing balance, for example after an account sync.
func (e *Engine) SetBalance(b float64) error {
	if b <= 0 {
		return fmt.Errorf("%w: balance %.2f must be positive", ErrInput, b)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balance = b
	return nil
}

func (e *Engine) observeRisk() {
	if e.m == nil {
		return
	}
	e.m.ConsecutiveLosses.Set(float64(e.risk.ConsecutiveLosses))
	if e.risk.PausedUntil.IsZero() {
		e.m.Paused.Set(0)
	} else {
		e.m.Paused.Set(1)
	}
}

func adapterErr(err error) error {
	if errors.Is(err, broker.ErrAdapter) {
		return err
	}
	return fmt.Errorf("%w: %w", broker.ErrAdapter, err)
}
