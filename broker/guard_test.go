package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/breakout/metrics"
	"github.com/rustyeddy/breakout/strategy"
)

var errVenue = errors.New("venue unavailable")

// flaky fails the first n calls of every operation.
type flaky struct {
	n     int
	calls map[string]int
}

func newFlaky(n int) *flaky { return &flaky{n: n, calls: map[string]int{}} }

func (f *flaky) hit(op string) error {
	f.calls[op]++
	if f.calls[op] <= f.n {
		return errVenue
	}
	return nil
}

func (f *flaky) Open(_ context.Context, req strategy.OpenRequest) (Fill, error) {
	if err := f.hit("open"); err != nil {
		return Fill{}, err
	}
	return Fill{TradeID: "t1", Symbol: req.Symbol, Price: req.EntryPrice, Quantity: req.Quantity}, nil
}

func (f *flaky) Close(_ context.Context, req strategy.CloseRequest) (Fill, error) {
	if err := f.hit("close"); err != nil {
		return Fill{}, err
	}
	return Fill{TradeID: "t1", Symbol: req.Symbol, Price: req.ExitPrice, Quantity: req.Quantity}, nil
}

func (f *flaky) AdjustStop(context.Context, string, float64) error { return f.hit("adjust_stop") }

func newTestGuard(inner Adapter, cfg GuardConfig) (*Guard, *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g := NewGuard(inner, cfg, metrics.New())
	g.now = func() time.Time { return now }
	g.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return g, &now
}

func TestGuardRetries(t *testing.T) {
	t.Parallel()

	inner := newFlaky(2)
	g, _ := newTestGuard(inner, GuardConfig{MaxRetries: 2})

	fill, err := g.Open(context.Background(), strategy.OpenRequest{Symbol: "BTCUSDT", EntryPrice: 100, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, 100.0, fill.Price)
	assert.Equal(t, 3, inner.calls["open"])
}

func TestGuardGivesUp(t *testing.T) {
	t.Parallel()

	inner := newFlaky(5)
	g, _ := newTestGuard(inner, GuardConfig{MaxRetries: 1})

	_, err := g.Close(context.Background(), strategy.CloseRequest{Symbol: "BTCUSDT", ExitPrice: 99})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAdapter)
	assert.ErrorIs(t, err, errVenue)
	assert.Equal(t, 2, inner.calls["close"])

	err = g.AdjustStop(context.Background(), "BTCUSDT", 101)
	assert.ErrorIs(t, err, ErrAdapter)
}

func TestGuardDuplicateAndRate(t *testing.T) {
	t.Parallel()

	g, now := newTestGuard(newFlaky(0), GuardConfig{PerMinuteCap: 2, DupWindow: 5 * time.Second})
	ctx := context.Background()

	_, err := g.Open(ctx, strategy.OpenRequest{Symbol: "BTCUSDT", EntryPrice: 1, Quantity: 1})
	require.NoError(t, err)

	_, err = g.Open(ctx, strategy.OpenRequest{Symbol: "BTCUSDT", EntryPrice: 1, Quantity: 1})
	assert.ErrorIs(t, err, ErrDuplicate)

	*now = now.Add(10 * time.Second)
	_, err = g.Open(ctx, strategy.OpenRequest{Symbol: "BTCUSDT", EntryPrice: 1, Quantity: 1})
	require.NoError(t, err, "a refused duplicate does not use up a rate slot")

	_, err = g.Open(ctx, strategy.OpenRequest{Symbol: "ETHUSDT", EntryPrice: 1, Quantity: 1})
	assert.ErrorIs(t, err, ErrRateLimited)

	*now = now.Add(time.Minute)
	_, err = g.Open(ctx, strategy.OpenRequest{Symbol: "ETHUSDT", EntryPrice: 1, Quantity: 1})
	assert.NoError(t, err)
}
