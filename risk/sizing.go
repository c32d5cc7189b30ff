package risk

import (
	"fmt"
	"math"
)

type SizeInputs struct {
	Balance      float64
	EntryPrice   float64
	StopPrice    float64
	RiskFraction float64
	Leverage     float64
}

// SizeResult holds the position size in quote currency (Notional) and in
// base asset units (Units = Notional / entry).
type SizeResult struct {
	BaseNotional float64 // before leverage
	Notional     float64 // leveraged
	Units        float64 // leveraged, base asset
	RiskAmount   float64
	StopDistance float64
}

// Size computes the position that loses RiskAmount, before leverage, when
// price moves from entry to stop, then scales it by leverage:
//
//	base     = balance*fraction / (|entry-stop| / entry)
//	notional = base * leverage
//	units    = notional / entry
//
// Exchange lot floors are applied by the execution adapter.
func Size(in SizeInputs) (SizeResult, error) {
	if in.Balance <= 0 || math.IsNaN(in.Balance) {
		return SizeResult{}, fmt.Errorf("%w: balance %.2f must be positive", ErrInput, in.Balance)
	}
	if in.EntryPrice <= 0 || in.StopPrice <= 0 {
		return SizeResult{}, fmt.Errorf("%w: entry %.8f and stop %.8f must be positive", ErrInput, in.EntryPrice, in.StopPrice)
	}
	if in.RiskFraction <= 0 || in.RiskFraction >= 1 {
		return SizeResult{}, fmt.Errorf("%w: risk fraction %.4f must be in (0,1)", ErrInput, in.RiskFraction)
	}
	if in.Leverage < 1 {
		return SizeResult{}, fmt.Errorf("%w: leverage %.2f must be >= 1", ErrInput, in.Leverage)
	}

	dist := math.Abs(in.EntryPrice - in.StopPrice)
	if dist == 0 {
		return SizeResult{}, fmt.Errorf("%w: entry and stop both %.8f", ErrSizing, in.EntryPrice)
	}

	riskAmt := in.Balance * in.RiskFraction
	base := riskAmt / (dist / in.EntryPrice)

	notional := base * in.Leverage
	return SizeResult{
		BaseNotional: base,
		Notional:     notional,
		Units:        notional / in.EntryPrice,
		RiskAmount:   riskAmt,
		StopDistance: dist,
	}, nil
}
