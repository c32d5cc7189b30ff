package indicators

import (
	"fmt"

	"github.com/rustyeddy/breakout/market"
)

// Field selects which candle value a moving average tracks.
type Field func(market.Candle) float64

func CloseField(c market.Candle) float64  { return c.Close }
func VolumeField(c market.Candle) float64 { return c.Volume }

// SMA is a streaming simple moving average over a candle field.
type SMA struct {
	name   string
	period int
	field  Field
	values []float64
	sum    float64
}

// NewSMA creates a moving average of closes with the given period.
func NewSMA(period int) *SMA {
	return newSMA("SMA", period, CloseField)
}

// NewVolumeSMA creates a moving average of volume with the given period.
func NewVolumeSMA(period int) *SMA {
	return newSMA("VolSMA", period, VolumeField)
}

func newSMA(name string, period int, field Field) *SMA {
	return &SMA{
		name:   name,
		period: period,
		field:  field,
		values: make([]float64, 0, period),
	}
}

func (m *SMA) Name() string { return fmt.Sprintf("%s(%d)", m.name, m.period) }

func (m *SMA) Warmup() int { return m.period }

func (m *SMA) Reset() {
	m.values = m.values[:0]
	m.sum = 0
}

func (m *SMA) Update(c market.Candle) {
	v := m.field(c)
	m.values = append(m.values, v)
	m.sum += v
	if len(m.values) > m.period {
		m.sum -= m.values[0]
		m.values = m.values[1:]
	}
}

func (m *SMA) Ready() bool { return m.period > 0 && len(m.values) >= m.period }

func (m *SMA) Value() float64 {
	if !m.Ready() {
		return 0
	}
	// recompute to avoid drift from the running sum
	sum := 0.0
	for _, v := range m.values {
		sum += v
	}
	return sum / float64(len(m.values))
}
