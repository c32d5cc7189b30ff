package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/breakout/broker/sim"
	"github.com/rustyeddy/breakout/engine"
	"github.com/rustyeddy/breakout/indicators"
	"github.com/rustyeddy/breakout/journal"
	"github.com/rustyeddy/breakout/market"
	"github.com/rustyeddy/breakout/strategy"
)

// falling builds n hourly candles closing at 200-2i with a volume spike at
// each index in spikes. With 3-period indicators every spike after warmup
// is an entry signal and every entry stops out three candles later.
func falling(sym string, n int, spikes ...int) []market.Candle {
	spike := map[int]bool{}
	for _, i := range spikes {
		spike[i] = true
	}
	out := make([]market.Candle, n)
	for i := range out {
		px := 200 - 2*float64(i)
		vol := 10.0
		if spike[i] {
			vol = 100
		}
		out[i] = market.Candle{
			Symbol: sym,
			Time:   t0.Add(time.Duration(i) * time.Hour),
			Open:   px + 1, High: px + 1, Low: px, Close: px,
			Volume: vol,
		}
	}
	return out
}

func testProvider() *indicators.Provider {
	return indicators.NewProvider(indicators.ProviderConfig{RSIPeriod: 3, VolumePeriod: 3, ATRPeriod: 3})
}

func newRunner(t *testing.T, closeEnd bool, feeds map[string][]market.Candle) (*Runner, *journal.Memory) {
	t.Helper()
	mem := journal.NewMemory()
	eng, err := engine.New(engine.DefaultConfig(), 10000, engine.WithLedger(mem))
	require.NoError(t, err)

	fs := make(map[string]CandleFeed, len(feeds))
	for s, cs := range feeds {
		fs[s] = NewSliceFeed(cs)
	}
	return &Runner{
		Engine:   eng,
		Adapter:  sim.NewPaper(),
		Provider: testProvider(),
		Feeds:    fs,
		Journal:  mem,
		Options:  RunnerOptions{CloseEnd: closeEnd},
	}, mem
}

func TestRunnerSharedBreaker(t *testing.T) {
	t.Parallel()

	r, mem := newRunner(t, true, map[string][]market.Candle{
		"BTCUSDT": falling("BTCUSDT", 42, 3, 13, 40),
		"ETHUSDT": falling("ETHUSDT", 30, 8, 20),
	})
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Trades, 4)
	var reasons, symbols []string
	for _, tr := range res.Trades {
		reasons = append(reasons, tr.Reason)
		symbols = append(symbols, tr.Symbol)
	}
	assert.Equal(t, []string{"SL", "SL", "SL", strategy.ReasonEndOfReplay}, reasons)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "BTCUSDT", "BTCUSDT"}, symbols)

	// the third loss at hour 16 pauses every symbol until hour 40, so the
	// ETH spike at hour 20 is skipped and BTC re-enters exactly at the deadline
	third := res.Trades[2]
	assert.Equal(t, t0.Add(16*time.Hour), third.ExitTime)
	assert.Equal(t, t0.Add(40*time.Hour), res.Trades[3].EntryTime)
	assert.Equal(t, 120.0, res.Trades[3].EntryPrice)
	assert.Equal(t, 118.0, res.Trades[3].ExitPrice)
	assert.Equal(t, 1, r.Engine.RiskState().ConsecutiveLosses, "streak restarts from zero after the resume")

	for _, tr := range res.Trades[:3] {
		assert.Less(t, tr.PnLNet, 0.0)
	}
	assert.Equal(t, 4, res.Stats.MaxConsecutiveLosses)
	assert.Equal(t, 72, res.Candles)
	assert.Equal(t, 6, res.Warmup)
	assert.Equal(t, t0, res.Start)
	assert.Equal(t, t0.Add(41*time.Hour), res.End)

	require.Len(t, res.Equity, 4)
	assert.InDelta(t, res.Trades[3].Balance, res.FinalBalance, 1e-9)
	assert.InDelta(t, res.Stats.FinalBalance, res.FinalBalance, 1e-6)
	assert.Len(t, mem.Trades(), 4)
	assert.Len(t, mem.Equity(), 4)
	assert.Empty(t, r.Engine.Positions())
}

func TestRunnerCompoundsBalance(t *testing.T) {
	t.Parallel()

	r, _ := newRunner(t, false, map[string][]market.Candle{
		"BTCUSDT": falling("BTCUSDT", 12, 3, 8),
	})
	res, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Trades, 2)

	first, second := res.Trades[0], res.Trades[1]
	assert.InDelta(t, 10000+first.PnLNet, first.Balance, 1e-9)
	assert.InDelta(t, first.Balance+second.PnLNet, second.Balance, 1e-9)

	// second entry is sized on the reduced balance
	wantQty := first.Balance * 0.01 / 0.03 * 3 / second.EntryPrice
	assert.InDelta(t, wantQty, second.Quantity, 1e-9)
}

func TestRunnerLeavesOpenWithoutCloseEnd(t *testing.T) {
	t.Parallel()

	r, _ := newRunner(t, false, map[string][]market.Candle{
		"BTCUSDT": falling("BTCUSDT", 5, 3),
	})
	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	require.Len(t, r.Engine.Positions(), 1)
	assert.Equal(t, 194.0, r.Engine.Positions()[0].EntryPrice)
}

func TestRunnerDeterministic(t *testing.T) {
	t.Parallel()

	feeds := func() map[string][]market.Candle {
		return map[string][]market.Candle{
			"BTCUSDT": falling("BTCUSDT", 42, 3, 13, 40),
			"ETHUSDT": falling("ETHUSDT", 30, 8, 20),
		}
	}
	a, _ := newRunner(t, true, feeds())
	b, _ := newRunner(t, true, feeds())

	ra, err := a.Run(context.Background())
	require.NoError(t, err)
	rb, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ra.Trades, rb.Trades)
	assert.Equal(t, ra.Stats, rb.Stats)
}

func TestRunnerRejectsOutOfOrder(t *testing.T) {
	t.Parallel()

	cs := falling("BTCUSDT", 6)
	cs[4].Time = cs[2].Time
	r, _ := newRunner(t, false, map[string][]market.Candle{"BTCUSDT": cs})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rejected)
	assert.Equal(t, 5, res.Candles)
}

func TestRunnerRequiresInputs(t *testing.T) {
	t.Parallel()

	_, err := (&Runner{}).Run(context.Background())
	assert.Error(t, err)
}
