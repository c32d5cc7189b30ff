package bybit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/breakout/live"
	"github.com/rustyeddy/breakout/market"
)

// maxLimit is the most klines one request returns.
const maxLimit = 1000

type KlinesOptions struct {
	Symbol   string
	Interval time.Duration

	Start time.Time // inclusive
	End   time.Time // exclusive; zero means now
	Limit int       // per request, at most 1000
}

type klinesResp struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		Symbol   string     `json:"symbol"`
		Category string     `json:"category"`
		List     [][]string `json:"list"` // start, open, high, low, close, volume, turnover; newest first
	} `json:"result"`
}

// Klines returns the closed candles in [Start, End), oldest first. The range
// is fetched in windows that each fit in one response.
func (c *Client) Klines(ctx context.Context, opts KlinesOptions) ([]market.Candle, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("bybit: missing base url")
	}
	if opts.Symbol == "" {
		return nil, fmt.Errorf("bybit: missing symbol")
	}
	if opts.Start.IsZero() {
		return nil, fmt.Errorf("bybit: missing start")
	}
	iv, err := live.BybitInterval(opts.Interval)
	if err != nil {
		return nil, fmt.Errorf("bybit: %w", err)
	}
	limit := opts.Limit
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}

	now := c.now()
	end := opts.End
	if end.IsZero() || end.After(now) {
		end = now
	}

	var out []market.Candle
	var seq market.Sequence
	step := time.Duration(limit) * opts.Interval
	for cur := opts.Start; cur.Before(end); cur = cur.Add(step) {
		wEnd := cur.Add(step)
		if wEnd.After(end) {
			wEnd = end
		}
		page, err := c.fetch(ctx, opts.Symbol, iv, cur, wEnd, limit)
		if err != nil {
			return out, err
		}
		for _, k := range page {
			if k.Time.Before(opts.Start) || !k.Time.Before(end) {
				continue
			}
			// the newest kline is still forming until its interval has passed
			if k.Time.Add(opts.Interval).After(now) {
				continue
			}
			if err := seq.Accept(k); err != nil {
				continue
			}
			out = append(out, k)
		}
	}
	return out, nil
}

func (c *Client) fetch(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]market.Candle, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
	u.Path = "/v5/market/kline"

	q := u.Query()
	q.Set("category", c.category())
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("start", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("end", strconv.FormatInt(end.UnixMilli()-1, 10))
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, fmt.Errorf("bybit kline http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var kr klinesResp
	if err := json.NewDecoder(resp.Body).Decode(&kr); err != nil {
		return nil, err
	}
	if kr.RetCode != 0 {
		return nil, fmt.Errorf("bybit kline retCode %d: %s", kr.RetCode, kr.RetMsg)
	}

	out := make([]market.Candle, 0, len(kr.Result.List))
	for _, row := range kr.Result.List {
		k, err := parseRow(symbol, row)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func parseRow(symbol string, row []string) (market.Candle, error) {
	if len(row) < 6 {
		return market.Candle{}, fmt.Errorf("%w: %s kline row has %d fields", market.ErrInput, symbol, len(row))
	}
	ms, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return market.Candle{}, fmt.Errorf("%w: %s kline start %q", market.ErrInput, symbol, row[0])
	}
	var vals [5]float64
	for i := range vals {
		v, err := strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return market.Candle{}, fmt.Errorf("%w: %s kline field %q: %v", market.ErrInput, symbol, row[i+1], err)
		}
		vals[i] = v
	}
	return market.Candle{
		Symbol: symbol,
		Time:   time.UnixMilli(ms).UTC(),
		Open:   vals[0], High: vals[1], Low: vals[2], Close: vals[3],
		Volume: vals[4],
	}, nil
}

// DownloadKlinesToCSV writes the candles as time,open,high,low,close,volume
// rows, the format the backtest feed reads.
func (c *Client) DownloadKlinesToCSV(ctx context.Context, opts KlinesOptions, w io.Writer) (int, error) {
	candles, err := c.Klines(ctx, opts)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "open", "high", "low", "close", "volume"}); err != nil {
		return 0, err
	}

	written := 0
	for _, k := range candles {
		row := []string{
			k.Time.Format(time.RFC3339),
			num(k.Open), num(k.High), num(k.Low), num(k.Close),
			num(k.Volume),
		}
		if err := cw.Write(row); err != nil {
			return written, err
		}
		written++
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return written, err
	}
	return written, nil
}

func num(x float64) string { return strconv.FormatFloat(x, 'f', -1, 64) }
