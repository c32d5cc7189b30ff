package bybit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// hourlyServer serves hourly klines for every hour in [t0, t0+n) that falls
// in the requested window, newest first, like the v5 API.
func hourlyServer(t *testing.T, n int, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		require.Equal(t, "/v5/market/kline", r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, "linear", q.Get("category"))
		require.Equal(t, "BTCUSDT", q.Get("symbol"))
		require.Equal(t, "60", q.Get("interval"))

		start, err := strconv.ParseInt(q.Get("start"), 10, 64)
		require.NoError(t, err)
		end, err := strconv.ParseInt(q.Get("end"), 10, 64)
		require.NoError(t, err)

		var list [][]string
		for i := n - 1; i >= 0; i-- {
			ts := t0.Add(time.Duration(i) * time.Hour).UnixMilli()
			if ts < start || ts > end {
				continue
			}
			px := strconv.Itoa(100 + i)
			list = append(list, []string{strconv.FormatInt(ts, 10), px, px, px, px, "10", "1000"})
		}

		resp := map[string]any{
			"retCode": 0,
			"retMsg":  "OK",
			"result":  map[string]any{"symbol": "BTCUSDT", "category": "linear", "list": list},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestKlines_MissingInputs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		client Client
		opts   KlinesOptions
		want   string
	}{
		{"missing base url", Client{}, KlinesOptions{Symbol: "BTCUSDT", Interval: time.Hour, Start: t0}, "missing base url"},
		{"missing symbol", Client{BaseURL: "http://example.com"}, KlinesOptions{Interval: time.Hour, Start: t0}, "missing symbol"},
		{"missing start", Client{BaseURL: "http://example.com"}, KlinesOptions{Symbol: "BTCUSDT", Interval: time.Hour}, "missing start"},
		{"bad interval", Client{BaseURL: "http://example.com"}, KlinesOptions{Symbol: "BTCUSDT", Interval: 7 * time.Minute, Start: t0}, "unsupported"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.client.Klines(context.Background(), tt.opts)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestKlines_PagesAndSkipsOpenCandle(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := hourlyServer(t, 10, &calls)
	defer srv.Close()

	c := &Client{
		BaseURL: srv.URL,
		// 09:30: the 09:00 kline is still forming
		Now: func() time.Time { return t0.Add(9*time.Hour + 30*time.Minute) },
	}
	got, err := c.Klines(context.Background(), KlinesOptions{
		Symbol: "BTCUSDT", Interval: time.Hour, Start: t0, Limit: 4,
	})
	require.NoError(t, err)
	require.Len(t, got, 9)
	for i, k := range got {
		require.Equal(t, t0.Add(time.Duration(i)*time.Hour), k.Time)
		require.Equal(t, float64(100+i), k.Close)
		require.Equal(t, "BTCUSDT", k.Symbol)
	}
	require.Equal(t, int32(3), atomic.LoadInt32(&calls), "windows of 4 hours over 9.5 hours")
}

func TestKlines_RespectsEnd(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := hourlyServer(t, 10, &calls)
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, Now: func() time.Time { return t0.Add(48 * time.Hour) }}
	got, err := c.Klines(context.Background(), KlinesOptions{
		Symbol: "BTCUSDT", Interval: time.Hour, Start: t0.Add(2 * time.Hour), End: t0.Add(5 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, t0.Add(2*time.Hour), got[0].Time)
	require.Equal(t, t0.Add(4*time.Hour), got[2].Time)
}

func TestKlines_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"retCode":10001,"retMsg":"params error: symbol invalid","result":{}}`))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, Now: func() time.Time { return t0.Add(2 * time.Hour) }}
	_, err := c.Klines(context.Background(), KlinesOptions{Symbol: "BTCUSDT", Interval: time.Hour, Start: t0})
	require.Error(t, err)
	require.Contains(t, err.Error(), "10001")
}

func TestKlines_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, Now: func() time.Time { return t0.Add(2 * time.Hour) }}
	_, err := c.Klines(context.Background(), KlinesOptions{Symbol: "BTCUSDT", Interval: time.Hour, Start: t0})
	require.Error(t, err)
	require.Contains(t, err.Error(), "http 403")
}

func TestDownloadKlinesToCSV(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := hourlyServer(t, 3, &calls)
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, Now: func() time.Time { return t0.Add(3 * time.Hour) }}
	var buf bytes.Buffer
	n, err := c.DownloadKlinesToCSV(context.Background(), KlinesOptions{
		Symbol: "BTCUSDT", Interval: time.Hour, Start: t0,
	}, &buf)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.Equal(t, []string{"time", "open", "high", "low", "close", "volume"}, rows[0])
	require.Equal(t, []string{"2024-01-01T00:00:00Z", "100", "100", "100", "100", "10"}, rows[1])
}

func TestBaseURL(t *testing.T) {
	t.Parallel()

	u, err := BaseURL("testnet")
	require.NoError(t, err)
	require.Equal(t, "https://api-testnet.bybit.com", u)

	_, err = BaseURL("moon")
	require.Error(t, err)
}
