// Package journal records closed trades and equity points. A Ledger is
// append-only; backends are in-memory, CSV, and SQLite.
package journal

import (
	"sort"
	"sync"
	"time"
)

// ClosedTrade is one completed round trip.
type ClosedTrade struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Quantity   float64   `json:"quantity"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`

	PnLGross   float64 `json:"pnl_gross"`
	Commission float64 `json:"commission"`
	PnLNet     float64 `json:"pnl_net"`
	PnLPercent float64 `json:"pnl_percent"`
	Reason     string  `json:"reason"`

	EntryRSI         float64 `json:"entry_rsi"`
	EntryVolumeRatio float64 `json:"entry_volume_ratio"`

	// Balance is the account balance after this trade, when known.
	Balance float64 `json:"balance,omitempty"`
}

// Holding is the time the position was open.
func (t ClosedTrade) Holding() time.Duration { return t.ExitTime.Sub(t.EntryTime) }

// HoldingHours truncates Holding to whole hours.
func (t ClosedTrade) HoldingHours() int { return int(t.Holding() / time.Hour) }

type EquityPoint struct {
	Time    time.Time `json:"time"`
	Balance float64   `json:"balance"`
}

// Ledger receives every closed trade. Append failures are reported but never
// undo the close that produced the trade.
type Ledger interface {
	Append(ClosedTrade) error
}

// Journal is a Ledger that also keeps the equity curve.
type Journal interface {
	Ledger
	RecordEquity(EquityPoint) error
	Close() error
}

// Memory keeps trades and equity in process. It is safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	trades []ClosedTrade
	equity []EquityPoint
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Append(t ClosedTrade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, t)
	return nil
}

func (m *Memory) RecordEquity(e EquityPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equity = append(m.equity, e)
	return nil
}

func (m *Memory) Close() error { return nil }

// Trades returns a copy of the trades in append order.
func (m *Memory) Trades() []ClosedTrade {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ClosedTrade(nil), m.trades...)
}

func (m *Memory) Equity() []EquityPoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EquityPoint(nil), m.equity...)
}

// Multi fans every record out to all journals and returns the first error.
type Multi []Journal

func (m Multi) Append(t ClosedTrade) error {
	var first error
	for _, j := range m {
		if err := j.Append(t); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) RecordEquity(e EquityPoint) error {
	var first error
	for _, j := range m {
		if err := j.RecordEquity(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) Close() error {
	var first error
	for _, j := range m {
		if err := j.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// SortByExit orders trades by exit time, then symbol, in place.
func SortByExit(trades []ClosedTrade) {
	sort.SliceStable(trades, func(i, k int) bool {
		if !trades[i].ExitTime.Equal(trades[k].ExitTime) {
			return trades[i].ExitTime.Before(trades[k].ExitTime)
		}
		return trades[i].Symbol < trades[k].Symbol
	})
}
