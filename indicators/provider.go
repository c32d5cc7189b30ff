package indicators

import (
	"time"

	"github.com/rustyeddy/breakout/market"
)

// Snapshot is the indicator state for the newest candle of a window.
type Snapshot struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"` // latest close

	RSI      float64 `json:"rsi"`
	RSIReady bool    `json:"rsi_ready"`

	VolumeRatio float64 `json:"volume_ratio"`
	VolumeReady bool    `json:"volume_ready"`

	ATR      float64 `json:"atr,omitempty"`
	ATRReady bool    `json:"atr_ready,omitempty"`
}

// Evaluable reports whether the oscillator is defined for this candle.
func (s Snapshot) Evaluable() bool { return s.RSIReady }

// ProviderConfig holds the indicator periods.
type ProviderConfig struct {
	RSIPeriod    int `json:"rsi_period" yaml:"rsi_period"`
	VolumePeriod int `json:"volume_period" yaml:"volume_period"`
	ATRPeriod    int `json:"atr_period" yaml:"atr_period"`
}

// DefaultProviderConfig returns RSI(14), a 20 bar volume average and ATR(14).
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{RSIPeriod: 14, VolumePeriod: 20, ATRPeriod: 14}
}

// Provider turns a candle window into a Snapshot. Compute is a pure function
// of the window.
type Provider struct {
	cfg ProviderConfig
}

func NewProvider(cfg ProviderConfig) *Provider {
	return &Provider{cfg: cfg}
}

// Warmup is the minimum window length for a defined oscillator.
func (p *Provider) Warmup() int { return p.cfg.RSIPeriod + 1 }

// Compute evaluates every indicator over window, oldest first.
func (p *Provider) Compute(window []market.Candle) Snapshot {
	s := p.NewStream()
	var snap Snapshot
	for _, c := range window {
		snap = s.Update(c)
	}
	return snap
}

// Stream is the incremental form of Provider.Compute: after n updates its
// snapshot equals Compute over those n candles.
type Stream struct {
	rsi *RSI
	vol *SMA
	atr *ATR
}

func (p *Provider) NewStream() *Stream {
	return &Stream{
		rsi: NewRSI(p.cfg.RSIPeriod),
		vol: NewVolumeSMA(p.cfg.VolumePeriod),
		atr: NewATR(p.cfg.ATRPeriod),
	}
}

// Update consumes the next closed candle and returns the snapshot for it.
func (s *Stream) Update(c market.Candle) Snapshot {
	s.rsi.Update(c)
	s.vol.Update(c)
	s.atr.Update(c)

	snap := Snapshot{
		Time:     c.Time,
		Price:    c.Close,
		RSI:      s.rsi.Value(),
		RSIReady: s.rsi.Ready(),
		ATR:      s.atr.Value(),
		ATRReady: s.atr.Ready(),
	}
	if s.vol.Ready() {
		if avg := s.vol.Value(); avg > 0 {
			snap.VolumeRatio = c.Volume / avg
			snap.VolumeReady = true
		}
	}
	return snap
}

func (s *Stream) Reset() {
	s.rsi.Reset()
	s.vol.Reset()
	s.atr.Reset()
}
