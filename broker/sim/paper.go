// Package sim is a paper execution adapter. It fills every order at the
// requested price and keeps open trades in memory.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/breakout/broker"
	"github.com/rustyeddy/breakout/pkg/id"
	"github.com/rustyeddy/breakout/strategy"
)

var (
	ErrTradeNotFound = errors.New("no open trade")
	ErrTradeExists   = errors.New("trade already open")
	ErrBelowMinQty   = errors.New("quantity below minimum lot")
)

// Lot describes an exchange's quantity constraints for one symbol.
type Lot struct {
	MinQty  float64 `yaml:"min_qty" json:"min_qty"`
	QtyStep float64 `yaml:"qty_step" json:"qty_step"`
}

// Round floors qty to the step and raises it to MinQty. The result is zero
// only when qty is not positive.
func (l Lot) Round(qty float64) float64 {
	if qty <= 0 {
		return 0
	}
	q := decimal.NewFromFloat(qty)
	if l.QtyStep > 0 {
		step := decimal.NewFromFloat(l.QtyStep)
		q = q.Div(step).Floor().Mul(step)
	}
	if floor := decimal.NewFromFloat(l.MinQty); q.LessThan(floor) {
		q = floor
	}
	out, _ := q.Float64()
	return out
}

// Trade is an open paper trade.
type Trade struct {
	ID         string
	Symbol     string
	EntryPrice float64
	Quantity   float64
	StopLoss   float64
	TakeProfit float64
	OpenTime   time.Time
}

// Paper implements broker.Adapter without a venue.
type Paper struct {
	mu     sync.Mutex
	trades map[string]*Trade // by symbol
	lots   map[string]Lot
	def    Lot
	clock  func() time.Time
	seq    int
}

type Option func(*Paper)

// WithLot sets the lot constraints for symbol. Symbols without one use
// the default lot.
func WithLot(symbol string, l Lot) Option {
	return func(p *Paper) { p.lots[symbol] = l }
}

func WithDefaultLot(l Lot) Option {
	return func(p *Paper) { p.def = l }
}

// WithClock stamps fills with clock(). Without it fills carry a zero time
// and the caller's clock is used.
func WithClock(clock func() time.Time) Option {
	return func(p *Paper) { p.clock = clock }
}

func NewPaper(opts ...Option) *Paper {
	p := &Paper{
		trades: make(map[string]*Trade),
		lots:   make(map[string]Lot),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Paper) lot(symbol string) Lot {
	if l, ok := p.lots[symbol]; ok {
		return l
	}
	return p.def
}

func (p *Paper) stamp() time.Time {
	if p.clock == nil {
		return time.Time{}
	}
	return p.clock()
}

func (p *Paper) Open(ctx context.Context, req strategy.OpenRequest) (broker.Fill, error) {
	if err := ctx.Err(); err != nil {
		return broker.Fill{}, fmt.Errorf("%w: %w", broker.ErrAdapter, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.trades[req.Symbol]; ok {
		return broker.Fill{}, fmt.Errorf("%w: %w: %s", broker.ErrAdapter, ErrTradeExists, req.Symbol)
	}
	qty := p.lot(req.Symbol).Round(req.Quantity)
	if qty <= 0 {
		return broker.Fill{}, fmt.Errorf("%w: %w: %s qty %.8f", broker.ErrAdapter, ErrBelowMinQty, req.Symbol, req.Quantity)
	}

	at := p.stamp()
	p.seq++
	key := fmt.Sprintf("%s#%d", req.Symbol, p.seq)
	t := &Trade{
		ID:         id.Deterministic(key, req.Snapshot.Time),
		Symbol:     req.Symbol,
		EntryPrice: req.EntryPrice,
		Quantity:   qty,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		OpenTime:   at,
	}
	p.trades[req.Symbol] = t

	return broker.Fill{
		TradeID:  t.ID,
		Symbol:   t.Symbol,
		Price:    t.EntryPrice,
		Quantity: t.Quantity,
		Time:     at,
	}, nil
}

// Close flattens the whole trade for req.Symbol at req.ExitPrice.
func (p *Paper) Close(ctx context.Context, req strategy.CloseRequest) (broker.Fill, error) {
	if err := ctx.Err(); err != nil {
		return broker.Fill{}, fmt.Errorf("%w: %w", broker.ErrAdapter, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.trades[req.Symbol]
	if !ok {
		return broker.Fill{}, fmt.Errorf("%w: %w: %s", broker.ErrAdapter, ErrTradeNotFound, req.Symbol)
	}
	delete(p.trades, req.Symbol)

	return broker.Fill{
		TradeID:  t.ID,
		Symbol:   t.Symbol,
		Price:    req.ExitPrice,
		Quantity: t.Quantity,
		Time:     p.stamp(),
	}, nil
}

func (p *Paper) AdjustStop(ctx context.Context, symbol string, stop float64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", broker.ErrAdapter, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.trades[symbol]
	if !ok {
		return fmt.Errorf("%w: %w: %s", broker.ErrAdapter, ErrTradeNotFound, symbol)
	}
	t.StopLoss = stop
	return nil
}

// Trades returns a copy of the open trades sorted by symbol.
func (p *Paper) Trades() []Trade {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Trade, 0, len(p.trades))
	for _, t := range p.trades {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Trade returns the open trade for symbol.
func (p *Paper) Trade(symbol string) (Trade, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.trades[symbol]
	if !ok {
		return Trade{}, false
	}
	return *t, true
}

var _ broker.Adapter = (*Paper)(nil)

// Adopt registers an already open position, for restarts from saved state.
func (p *Paper) Adopt(pos strategy.Position) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.trades[pos.Symbol]; ok {
		return fmt.Errorf("%w: %s", ErrTradeExists, pos.Symbol)
	}
	tid := pos.TradeID
	if tid == "" {
		tid = id.Deterministic(pos.Symbol, pos.EntryTime)
	}
	p.trades[pos.Symbol] = &Trade{
		ID:         tid,
		Symbol:     pos.Symbol,
		EntryPrice: pos.EntryPrice,
		Quantity:   pos.Quantity,
		StopLoss:   pos.StopLoss,
		TakeProfit: pos.TakeProfit,
		OpenTime:   pos.EntryTime,
	}
	return nil
}
