// Package risk implements fixed-fractional position sizing, the PnL and
// commission model, and the consecutive-loss circuit breaker.
package risk

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInput reports a non-positive balance or price, or an out of range parameter.
	ErrInput = errors.New("invalid risk input")

	// ErrSizing reports a stop placed at the entry price.
	ErrSizing = errors.New("zero stop distance")
)

// Params are the account level risk settings.
type Params struct {
	RiskFraction         float64       `json:"risk_fraction" yaml:"risk_fraction"`                   // 0.01
	Leverage             float64       `json:"leverage" yaml:"leverage"`                             // 3
	TakerFee             float64       `json:"taker_fee" yaml:"taker_fee"`                           // 0.0004 per leg
	MaxConsecutiveLosses int           `json:"max_consecutive_losses" yaml:"max_consecutive_losses"` // 3
	PauseDuration        time.Duration `json:"pause_duration" yaml:"pause_duration"`                 // 24h
}

// DefaultParams returns 1% risk, 3x leverage, 0.04% taker fee and a 24h
// pause after three straight losses.
func DefaultParams() Params {
	return Params{
		RiskFraction:         0.01,
		Leverage:             3,
		TakerFee:             0.0004,
		MaxConsecutiveLosses: 3,
		PauseDuration:        24 * time.Hour,
	}
}

func (p Params) Validate() error {
	if p.RiskFraction <= 0 || p.RiskFraction >= 1 {
		return fmt.Errorf("%w: risk_fraction %.4f must be in (0,1)", ErrInput, p.RiskFraction)
	}
	if p.Leverage < 1 {
		return fmt.Errorf("%w: leverage %.2f must be >= 1", ErrInput, p.Leverage)
	}
	if p.TakerFee < 0 {
		return fmt.Errorf("%w: taker_fee must not be negative", ErrInput)
	}
	if p.MaxConsecutiveLosses < 1 {
		return fmt.Errorf("%w: max_consecutive_losses must be >= 1", ErrInput)
	}
	if p.PauseDuration <= 0 {
		return fmt.Errorf("%w: pause_duration must be positive", ErrInput)
	}
	return nil
}
