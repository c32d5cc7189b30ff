package market

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInput is returned for malformed or out-of-order market data.
var ErrInput = errors.New("invalid input")

// Candle represents one closed OHLCV bar for a symbol.
type Candle struct {
	Symbol string    `json:"symbol"`
	Time   time.Time `json:"time"` // open time

	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`

	Volume float64 `json:"volume"`
}

// Validate checks that prices are positive and the bar is internally consistent.
func (c Candle) Validate() error {
	if c.Time.IsZero() {
		return fmt.Errorf("%w: candle %s has no open time", ErrInput, c.Symbol)
	}
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close} {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: candle %s@%s has non-positive price", ErrInput, c.Symbol, c.Time.Format(time.RFC3339))
		}
	}
	if c.Volume < 0 || math.IsNaN(c.Volume) {
		return fmt.Errorf("%w: candle %s@%s has negative volume", ErrInput, c.Symbol, c.Time.Format(time.RFC3339))
	}
	if c.High < c.Low {
		return fmt.Errorf("%w: candle %s@%s high %.8f below low %.8f", ErrInput, c.Symbol, c.Time.Format(time.RFC3339), c.High, c.Low)
	}
	return nil
}

// Sequence enforces strictly increasing open times per symbol.
// The zero value is ready to use.
type Sequence struct {
	last map[string]time.Time
}

// Accept validates c and records its time. A candle that repeats or precedes
// the last accepted open time for its symbol is rejected and nothing changes.
func (s *Sequence) Accept(c Candle) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if s.last == nil {
		s.last = make(map[string]time.Time)
	}
	if prev, ok := s.last[c.Symbol]; ok && !c.Time.After(prev) {
		return fmt.Errorf("%w: candle %s@%s not after %s", ErrInput,
			c.Symbol, c.Time.Format(time.RFC3339), prev.Format(time.RFC3339))
	}
	s.last[c.Symbol] = c.Time
	return nil
}

// Window is a bounded rolling window of candles, oldest first.
type Window struct {
	size    int
	candles []Candle
}

// NewWindow returns a window holding at most size candles. A size <= 0 means unbounded.
func NewWindow(size int) *Window {
	w := &Window{size: size}
	if size > 0 {
		w.candles = make([]Candle, 0, size)
	}
	return w
}

// Push appends c, evicting the oldest candle when full.
func (w *Window) Push(c Candle) {
	w.candles = append(w.candles, c)
	if w.size > 0 && len(w.candles) > w.size {
		w.candles = w.candles[len(w.candles)-w.size:]
	}
}

// Candles returns the current window contents. The slice must not be modified.
func (w *Window) Candles() []Candle { return w.candles }

func (w *Window) Len() int { return len(w.candles) }
