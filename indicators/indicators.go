// Package indicators provides the technical indicators the breakout strategy
// consumes: RSI on closes, a simple moving average of volume, and ATR.
package indicators

import "github.com/rustyeddy/breakout/market"

// Indicator computes a single streaming value from candles.
// It is deterministic and safe to use in live, replay, and backtests.
type Indicator interface {
	// Name returns a stable identifier like "RSI(14)" or "ATR(14)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next *closed* candle and updates internal state.
	Update(c market.Candle)

	// Ready reports whether Value() is meaningful (warmup completed).
	Ready() bool

	// Value returns the current indicator value, or 0 before Ready().
	Value() float64
}

// Calculate feeds every candle to ind after a Reset and returns the final value.
func Calculate(ind Indicator, candles []market.Candle) (float64, bool) {
	ind.Reset()
	for _, c := range candles {
		ind.Update(c)
	}
	return ind.Value(), ind.Ready()
}
