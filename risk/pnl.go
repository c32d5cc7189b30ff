package risk

// PnL is the realized result of a long round trip.
type PnL struct {
	Gross      float64
	Commission float64
	Net        float64
	Percent    float64 // price move as a fraction of entry
}

// Realize applies the taker fee to both legs:
//
//	gross      = (exit-entry) * qty
//	commission = (entry+exit) * qty * fee
//	net        = gross - commission
func Realize(entry, exit, qty, takerFee float64) PnL {
	gross := (exit - entry) * qty
	commission := (entry + exit) * qty * takerFee
	if commission < 0 {
		commission = -commission
	}
	pct := 0.0
	if entry != 0 {
		pct = (exit - entry) / entry
	}
	return PnL{
		Gross:      gross,
		Commission: commission,
		Net:        gross - commission,
		Percent:    pct,
	}
}
