package live

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rustyeddy/breakout/market"
)

// BybitInterval maps a timeframe to a Bybit v5 kline interval.
func BybitInterval(d time.Duration) (string, error) {
	switch d {
	case 24 * time.Hour:
		return "D", nil
	case 7 * 24 * time.Hour:
		return "W", nil
	}
	switch m := int(d / time.Minute); m {
	case 1, 3, 5, 15, 30, 60, 120, 240, 360, 720:
		if d%time.Minute == 0 {
			return strconv.Itoa(m), nil
		}
	}
	return "", fmt.Errorf("unsupported kline interval %s", d)
}

type klineMsg struct {
	Topic string      `json:"topic"`
	Data  []klineData `json:"data"`
}

type klineData struct {
	Start   int64  `json:"start"`
	Open    string `json:"open"`
	High    string `json:"high"`
	Low     string `json:"low"`
	Close   string `json:"close"`
	Volume  string `json:"volume"`
	Confirm bool   `json:"confirm"`
}

func (k klineData) candle(symbol string) (market.Candle, error) {
	var vals [5]float64
	for i, s := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return market.Candle{}, fmt.Errorf("%w: %s kline field %q: %v", market.ErrInput, symbol, s, err)
		}
		vals[i] = v
	}
	return market.Candle{
		Symbol: symbol,
		Time:   time.UnixMilli(k.Start).UTC(),
		Open:   vals[0], High: vals[1], Low: vals[2], Close: vals[3],
		Volume: vals[4],
	}, nil
}

// KlineStream subscribes to Bybit v5 public kline topics and keeps a
// rolling window of confirmed candles per symbol.
type KlineStream struct {
	URL        string
	Interval   string
	Symbols    []string
	PingPeriod time.Duration
	PongWait   time.Duration
	Reconnect  time.Duration
	Log        *slog.Logger

	mu      sync.Mutex
	windows map[string]*market.Window
	seq     market.Sequence
	writeMu sync.Mutex
}

func NewKlineStream(url, interval string, symbols []string, window int, log *slog.Logger) *KlineStream {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &KlineStream{
		URL:        url,
		Interval:   interval,
		Symbols:    symbols,
		PingPeriod: 20 * time.Second,
		PongWait:   60 * time.Second,
		Reconnect:  5 * time.Second,
		Log:        log,
		windows:    make(map[string]*market.Window, len(symbols)),
	}
	for _, sym := range symbols {
		s.windows[sym] = market.NewWindow(window)
	}
	return s
}

func (s *KlineStream) topics() []string {
	out := make([]string, 0, len(s.Symbols))
	for _, sym := range s.Symbols {
		out = append(out, "kline."+s.Interval+"."+sym)
	}
	return out
}

// Seed preloads history, oldest first. Candles that are not newer than
// what the window already holds are ignored.
func (s *KlineStream) Seed(candles []market.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range candles {
		s.pushLocked(c)
	}
}

func (s *KlineStream) pushLocked(c market.Candle) bool {
	w, ok := s.windows[c.Symbol]
	if !ok {
		return false
	}
	if err := s.seq.Accept(c); err != nil {
		return false
	}
	w.Push(c)
	return true
}

// Candles returns a copy of the confirmed window for symbol.
func (s *KlineStream) Candles(_ context.Context, symbol string) ([]market.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: not subscribed to %s", market.ErrInput, symbol)
	}
	src := w.Candles()
	out := make([]market.Candle, len(src))
	copy(out, src)
	return out, nil
}

// Handle applies one raw websocket message. Unconfirmed klines, acks and
// pongs are ignored.
func (s *KlineStream) Handle(raw []byte) error {
	var msg klineMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if !strings.HasPrefix(msg.Topic, "kline.") {
		return nil
	}
	parts := strings.Split(msg.Topic, ".")
	if len(parts) != 3 {
		return fmt.Errorf("unexpected topic %q", msg.Topic)
	}
	symbol := parts[2]

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range msg.Data {
		if !k.Confirm {
			continue
		}
		c, err := k.candle(symbol)
		if err != nil {
			return err
		}
		if s.pushLocked(c) {
			s.Log.Debug("kline closed", "symbol", symbol, "time", c.Time, "close", c.Close, "volume", c.Volume)
		}
	}
	return nil
}

// Run keeps a subscription open until ctx is done, reconnecting after
// read failures.
func (s *KlineStream) Run(ctx context.Context) error {
	for {
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.Log.Warn("kline stream dropped; reconnecting", "err", err, "after", s.Reconnect)

		t := time.NewTimer(s.Reconnect)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (s *KlineStream) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(s.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.PongWait))
	})

	if err := s.writeJSON(conn, map[string]any{"op": "subscribe", "args": s.topics()}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.Log.Info("kline stream subscribed", "url", s.URL, "topics", s.topics())

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(s.PingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				if err := s.writeJSON(conn, map[string]string{"op": "ping"}); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(s.PongWait))
		if err := s.Handle(raw); err != nil {
			s.Log.Warn("kline message ignored", "err", err)
		}
	}
}

func (s *KlineStream) writeJSON(conn *websocket.Conn, v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(v)
}
