package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/breakout/metrics"
	"github.com/rustyeddy/breakout/strategy"
)

var (
	ErrRateLimited = errors.New("order rate limit hit")
	ErrDuplicate   = errors.New("duplicate order suppressed")
)

// GuardConfig controls retries and order throttling.
type GuardConfig struct {
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	Backoff      time.Duration `yaml:"backoff" json:"backoff"`
	PerMinuteCap int           `yaml:"per_minute_cap" json:"per_minute_cap"` // 0 disables
	DupWindow    time.Duration `yaml:"dup_window" json:"dup_window"`         // 0 disables
}

func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		MaxRetries:   2,
		Backoff:      500 * time.Millisecond,
		PerMinuteCap: 30,
		DupWindow:    5 * time.Second,
	}
}

// Guard wraps an Adapter with retries, a per-minute order cap, and
// suppression of repeated entries for the same symbol.
type Guard struct {
	inner Adapter
	cfg   GuardConfig
	m     *metrics.Metrics
	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	mu         sync.Mutex
	orderTimes []time.Time
	lastOpen   map[string]time.Time
}

func NewGuard(inner Adapter, cfg GuardConfig, m *metrics.Metrics) *Guard {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Guard{
		inner:    inner,
		cfg:      cfg,
		m:        m,
		now:      time.Now,
		sleep:    sleepCtx,
		lastOpen: make(map[string]time.Time),
	}
}

func (g *Guard) Open(ctx context.Context, req strategy.OpenRequest) (Fill, error) {
	now := g.now()

	g.mu.Lock()
	if last, ok := g.lastOpen[req.Symbol]; ok && g.cfg.DupWindow > 0 && now.Sub(last) < g.cfg.DupWindow {
		g.mu.Unlock()
		return Fill{}, fmt.Errorf("%w: %w: open %s", ErrAdapter, ErrDuplicate, req.Symbol)
	}
	g.mu.Unlock()

	// duplicates are refused before they take a rate slot
	if err := g.admit(now); err != nil {
		return Fill{}, err
	}

	var fill Fill
	err := g.retry(ctx, "open", func() error {
		var err error
		fill, err = g.inner.Open(ctx, req)
		return err
	})
	if err != nil {
		return Fill{}, err
	}

	g.mu.Lock()
	g.lastOpen[req.Symbol] = now
	g.mu.Unlock()
	return fill, nil
}

// Close is never throttled; exits must always be attempted.
func (g *Guard) Close(ctx context.Context, req strategy.CloseRequest) (Fill, error) {
	var fill Fill
	err := g.retry(ctx, "close", func() error {
		var err error
		fill, err = g.inner.Close(ctx, req)
		return err
	})
	return fill, err
}

func (g *Guard) AdjustStop(ctx context.Context, symbol string, stop float64) error {
	return g.retry(ctx, "adjust_stop", func() error {
		return g.inner.AdjustStop(ctx, symbol, stop)
	})
}

func (g *Guard) admit(now time.Time) error {
	if g.cfg.PerMinuteCap <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := now.Add(-time.Minute)
	kept := g.orderTimes[:0]
	for _, t := range g.orderTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	g.orderTimes = kept
	if len(g.orderTimes) >= g.cfg.PerMinuteCap {
		return fmt.Errorf("%w: %w: %d orders in the last minute", ErrAdapter, ErrRateLimited, len(g.orderTimes))
	}
	g.orderTimes = append(g.orderTimes, now)
	return nil
}

func (g *Guard) retry(ctx context.Context, op string, call func() error) error {
	var err error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if g.m != nil {
			g.m.AdapterAttempts.WithLabelValues(op).Inc()
		}
		if err = call(); err == nil {
			return nil
		}
		if attempt == g.cfg.MaxRetries {
			break
		}
		backoff := g.cfg.Backoff * time.Duration(attempt+1)
		if serr := g.sleep(ctx, backoff); serr != nil {
			err = serr
			break
		}
	}
	if g.m != nil {
		g.m.AdapterFailures.WithLabelValues(op).Inc()
	}
	if errors.Is(err, ErrAdapter) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrAdapter, op, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
