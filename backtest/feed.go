package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/breakout/market"
)

// CandleFeed yields candles one at a time. Implementations should be
// deterministic and return (ok=false, err=nil) at EOF.
type CandleFeed interface {
	Next() (c market.Candle, ok bool, err error)
	Close() error
}

// CSVCandleFeed reads one symbol's OHLCV rows:
//
//	time,open,high,low,close,volume
//
// where time is RFC3339 or unix milliseconds.
//
// It optionally filters candles to [From, To) if provided.
// Header row ("time,...") is allowed.
// Empty/short rows are skipped.
type CSVCandleFeed struct {
	symbol string
	c      io.Closer
	r      *csv.Reader
	from   time.Time
	to     time.Time

	sawFirst bool
}

func NewCSVCandleFeed(path, symbol string, from, to time.Time) (*CSVCandleFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	feed := NewCSVCandleReader(f, symbol, from, to)
	feed.c = f
	return feed, nil
}

// NewCSVCandleReader reads rows from r. Close is a no-op.
func NewCSVCandleReader(r io.Reader, symbol string, from, to time.Time) *CSVCandleFeed {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	return &CSVCandleFeed{symbol: symbol, r: cr, from: from, to: to}
}

func (f *CSVCandleFeed) Close() error {
	if f.c != nil {
		return f.c.Close()
	}
	return nil
}

func (f *CSVCandleFeed) Next() (market.Candle, bool, error) {
	for {
		row, err := f.r.Read()
		if err == io.EOF {
			return market.Candle{}, false, nil
		}
		if err != nil {
			return market.Candle{}, false, err
		}
		if len(row) == 0 {
			continue
		}

		// Allow a single header row
		if !f.sawFirst {
			f.sawFirst = true
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") ||
				strings.EqualFold(strings.TrimSpace(row[0]), "timestamp") {
				continue
			}
		}

		c, ok, err := parseCandleRow(f.symbol, row)
		if err != nil {
			return market.Candle{}, false, err
		}
		if !ok {
			continue
		}
		if !inRange(c.Time, f.from, f.to) {
			continue
		}
		return c, true, nil
	}
}

func parseCandleRow(symbol string, row []string) (market.Candle, bool, error) {
	// Need at least: time,open,high,low,close,volume
	if len(row) < 6 {
		return market.Candle{}, false, nil
	}

	ts := strings.TrimSpace(row[0])
	if ts == "" {
		return market.Candle{}, false, nil
	}
	t, err := parseTime(ts)
	if err != nil {
		return market.Candle{}, false, err
	}

	var vals [5]float64
	for i := range vals {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64)
		if err != nil {
			return market.Candle{}, false, fmt.Errorf("%w: %s bad field %d %q: %v", market.ErrInput, symbol, i+1, row[i+1], err)
		}
		vals[i] = v
	}

	return market.Candle{
		Symbol: symbol,
		Time:   t,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, true, nil
}

// parseTime accepts RFC3339, RFC3339Nano, or unix milliseconds.
func parseTime(ts string) (time.Time, error) {
	if ms, err := strconv.ParseInt(ts, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		t2, err2 := time.Parse(time.RFC3339Nano, ts)
		if err2 != nil {
			return time.Time{}, fmt.Errorf("%w: bad time %q: %v", market.ErrInput, ts, err)
		}
		t = t2
	}
	return t.UTC(), nil
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

// SliceFeed replays candles held in memory.
type SliceFeed struct {
	candles []market.Candle
	i       int
}

func NewSliceFeed(candles []market.Candle) *SliceFeed {
	return &SliceFeed{candles: candles}
}

func (f *SliceFeed) Next() (market.Candle, bool, error) {
	if f.i >= len(f.candles) {
		return market.Candle{}, false, nil
	}
	c := f.candles[f.i]
	f.i++
	return c, true, nil
}

func (f *SliceFeed) Close() error { return nil }
