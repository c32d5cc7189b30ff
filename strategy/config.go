// Package strategy holds the RSI + volume breakout rules: the entry and exit
// evaluator, the per-symbol Position record, and its trailing stop ratchet.
//
//	Entry:  RSI < Oversold and volume ratio > VolumeMultiplier, no open
//	        position for the symbol, and the loss breaker not tripped.
//	Exit:   first match wins, in this order
//	          RSI_EXIT     RSI > Overbought
//	          TP           profit >= TakeProfitPct
//	          SL           profit <= -StopLossPct
//	          TRAILING_SL  trailing active and price <= high*(1-TrailingDistancePct)
package strategy

import (
	"errors"
	"fmt"
)

var ErrConfig = errors.New("invalid strategy config")

// Config carries every threshold the evaluator uses. Percentages are
// fractions (0.06 == 6%).
type Config struct {
	Oversold         float64 `json:"oversold" yaml:"oversold"`
	Overbought       float64 `json:"overbought" yaml:"overbought"`
	VolumeMultiplier float64 `json:"volume_multiplier" yaml:"volume_multiplier"`

	TakeProfitPct       float64 `json:"take_profit_pct" yaml:"take_profit_pct"`
	StopLossPct         float64 `json:"stop_loss_pct" yaml:"stop_loss_pct"`
	TrailingTriggerPct  float64 `json:"trailing_trigger_pct" yaml:"trailing_trigger_pct"`
	TrailingDistancePct float64 `json:"trailing_distance_pct" yaml:"trailing_distance_pct"`
}

// DefaultConfig returns RSI 30/60, a 1.8x volume breakout, 6% target,
// 3% stop, and a 1.5% trail armed at 3% profit.
func DefaultConfig() Config {
	return Config{
		Oversold:            30,
		Overbought:          60,
		VolumeMultiplier:    1.8,
		TakeProfitPct:       0.06,
		StopLossPct:         0.03,
		TrailingTriggerPct:  0.03,
		TrailingDistancePct: 0.015,
	}
}

func (c Config) Validate() error {
	if c.Oversold <= 0 || c.Oversold >= 100 {
		return fmt.Errorf("%w: oversold %.2f must be in (0,100)", ErrConfig, c.Oversold)
	}
	if c.Overbought <= c.Oversold || c.Overbought >= 100 {
		return fmt.Errorf("%w: overbought %.2f must be in (oversold,100)", ErrConfig, c.Overbought)
	}
	if c.VolumeMultiplier <= 0 {
		return fmt.Errorf("%w: volume_multiplier must be positive", ErrConfig)
	}
	if c.TakeProfitPct <= 0 {
		return fmt.Errorf("%w: take_profit_pct must be positive", ErrConfig)
	}
	if c.StopLossPct <= 0 || c.StopLossPct >= 1 {
		return fmt.Errorf("%w: stop_loss_pct must be in (0,1)", ErrConfig)
	}
	if c.TrailingTriggerPct <= 0 {
		return fmt.Errorf("%w: trailing_trigger_pct must be positive", ErrConfig)
	}
	if c.TrailingDistancePct <= 0 || c.TrailingDistancePct >= 1 {
		return fmt.Errorf("%w: trailing_distance_pct must be in (0,1)", ErrConfig)
	}
	return nil
}
