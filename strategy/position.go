package strategy

import (
	"time"

	"github.com/rustyeddy/breakout/indicators"
)

// Position is the open long for one symbol. It exists only while open.
type Position struct {
	Symbol     string    `json:"symbol"`
	TradeID    string    `json:"trade_id,omitempty"`
	EntryPrice float64   `json:"entry_price"`
	Quantity   float64   `json:"quantity"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	EntryTime  time.Time `json:"entry_time"`

	EntryRSI         float64 `json:"entry_rsi"`
	EntryVolumeRatio float64 `json:"entry_volume_ratio"`

	TrailingActive bool    `json:"trailing_active"`
	HighestPrice   float64 `json:"highest_price"`
}

// Levels returns the initial stop and target for an entry.
func (c Config) Levels(entry float64) (stop, target float64) {
	return entry * (1 - c.StopLossPct), entry * (1 + c.TakeProfitPct)
}

// NewPosition builds the FLAT->OPEN record from a filled entry.
func NewPosition(req OpenRequest, fillPrice, quantity float64, at time.Time, cfg Config) Position {
	if fillPrice <= 0 {
		fillPrice = req.EntryPrice
	}
	if quantity <= 0 {
		quantity = req.Quantity
	}
	stop, target := cfg.Levels(fillPrice)
	return Position{
		Symbol:           req.Symbol,
		EntryPrice:       fillPrice,
		Quantity:         quantity,
		StopLoss:         stop,
		TakeProfit:       target,
		EntryTime:        at,
		EntryRSI:         req.Snapshot.RSI,
		EntryVolumeRatio: req.Snapshot.VolumeRatio,
		HighestPrice:     fillPrice,
	}
}

// ProfitPct is the unrealized move from entry as a fraction.
func (p Position) ProfitPct(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.EntryPrice
}

// TrailingLevel is the exit level implied by the highest price seen.
func (p Position) TrailingLevel(cfg Config) float64 {
	return p.HighestPrice * (1 - cfg.TrailingDistancePct)
}

// Observe returns the position after seeing price, and whether StopLoss moved.
//
// A new high raises HighestPrice. The first time profit reaches the trigger,
// trailing is armed and the stop is locked at entry*(1+distance). After that,
// each new high proposes high*(1-distance) and the stop only ever moves up.
func (p Position) Observe(price float64, cfg Config) (Position, bool) {
	oldStop := p.StopLoss

	newHigh := price > p.HighestPrice
	if newHigh {
		p.HighestPrice = price
	}

	switch {
	case !p.TrailingActive && p.ProfitPct(price) >= cfg.TrailingTriggerPct:
		p.TrailingActive = true
		if locked := p.EntryPrice * (1 + cfg.TrailingDistancePct); locked > p.StopLoss {
			p.StopLoss = locked
		}
	case p.TrailingActive && newHigh:
		if candidate := price * (1 - cfg.TrailingDistancePct); candidate > p.StopLoss {
			p.StopLoss = candidate
		}
	}

	return p, p.StopLoss != oldStop
}

// OpenRequestFor builds an entry request for snap. Sizing is left to the caller.
func OpenRequestFor(symbol string, snap indicators.Snapshot, cfg Config) OpenRequest {
	stop, target := cfg.Levels(snap.Price)
	return OpenRequest{
		Symbol:     symbol,
		EntryPrice: snap.Price,
		StopLoss:   stop,
		TakeProfit: target,
		Snapshot:   snap,
	}
}
