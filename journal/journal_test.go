package journal

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	entryAt = time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)
	exitAt  = time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
)

func sampleTrade(id, symbol string, exit time.Time, net float64) ClosedTrade {
	return ClosedTrade{
		ID:               id,
		Symbol:           symbol,
		EntryPrice:       100,
		ExitPrice:        106,
		Quantity:         1,
		EntryTime:        entryAt,
		ExitTime:         exit,
		PnLGross:         6,
		Commission:       0.0824,
		PnLNet:           net,
		PnLPercent:       0.06,
		Reason:           "TP",
		EntryRSI:         27.125,
		EntryVolumeRatio: 2.345,
		Balance:          1005.9176,
	}
}

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	return j, path
}

func TestClosedTradeHolding(t *testing.T) {
	t.Parallel()

	tr := sampleTrade("T1", "BTCUSDT", exitAt, 5.9176)
	assert.Equal(t, 6*time.Hour+30*time.Minute, tr.Holding())
	assert.Equal(t, 6, tr.HoldingHours())
}

func TestMemory(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	require.NoError(t, m.Append(sampleTrade("A", "BTCUSDT", exitAt, 1)))
	require.NoError(t, m.Append(sampleTrade("B", "ETHUSDT", exitAt, -1)))
	require.NoError(t, m.RecordEquity(EquityPoint{Time: exitAt, Balance: 1000}))

	trades := m.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, "A", trades[0].ID)

	trades[0].ID = "mutated"
	assert.Equal(t, "A", m.Trades()[0].ID, "Trades returns a copy")
	assert.Len(t, m.Equity(), 1)
	assert.NoError(t, m.Close())
}

type failing struct{ Memory }

func (f *failing) Append(ClosedTrade) error { return errors.New("disk full") }

func TestMulti(t *testing.T) {
	t.Parallel()

	a, b := NewMemory(), NewMemory()
	bad := &failing{}
	m := Multi{a, bad, b}

	err := m.Append(sampleTrade("A", "BTCUSDT", exitAt, 1))
	assert.EqualError(t, err, "disk full")
	assert.Len(t, a.Trades(), 1)
	assert.Len(t, b.Trades(), 1, "later journals still receive the trade")
	assert.NoError(t, m.RecordEquity(EquityPoint{Time: exitAt, Balance: 1}))
	assert.NoError(t, m.Close())
}

func TestSortByExit(t *testing.T) {
	t.Parallel()

	trades := []ClosedTrade{
		sampleTrade("3", "ETHUSDT", exitAt.Add(time.Hour), 0),
		sampleTrade("2", "ETHUSDT", exitAt, 0),
		sampleTrade("1", "BTCUSDT", exitAt, 0),
	}
	SortByExit(trades)
	assert.Equal(t, []string{"1", "2", "3"}, []string{trades[0].ID, trades[1].ID, trades[2].ID})
}

func TestCSVJournal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	equityPath := filepath.Join(dir, "equity.csv")

	j, err := NewCSV(tradesPath, equityPath)
	require.NoError(t, err)
	require.NoError(t, j.Append(sampleTrade("T1", "BTCUSDT", exitAt, 5.9176)))
	require.NoError(t, j.RecordEquity(EquityPoint{Time: exitAt, Balance: 1005.9176}))
	require.NoError(t, j.Close())

	data, err := os.ReadFile(tradesPath)
	require.NoError(t, err)
	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, tradeHeader, rows[0])

	row := rows[1]
	assert.Equal(t, "T1", row[0])
	assert.Equal(t, "BTCUSDT", row[1])
	assert.Equal(t, "2024-01-02T03:00:00Z", row[2])
	assert.Equal(t, "100", row[4])
	assert.Equal(t, "0.08", row[8])
	assert.Equal(t, "5.92", row[9])
	assert.Equal(t, "6.00", row[10])
	assert.Equal(t, "TP", row[11])
	assert.Equal(t, "27.13", row[12])
	assert.Equal(t, "6", row[14])
	assert.Equal(t, "1005.92", row[15])

	eq, err := os.ReadFile(equityPath)
	require.NoError(t, err)
	assert.Equal(t, "time,balance\n2024-01-02T09:30:00Z,1005.92\n", string(eq))
}

func TestCSVJournalReopenAppends(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	equityPath := filepath.Join(dir, "equity.csv")

	j, err := NewCSV(tradesPath, equityPath)
	require.NoError(t, err)
	require.NoError(t, j.Append(sampleTrade("T1", "BTCUSDT", exitAt, 5.9176)))
	require.NoError(t, j.RecordEquity(EquityPoint{Time: exitAt, Balance: 1005.9176}))
	require.NoError(t, j.Close())

	j, err = NewCSV(tradesPath, equityPath)
	require.NoError(t, err)
	require.NoError(t, j.Append(sampleTrade("T2", "ETHUSDT", exitAt.Add(time.Hour), -2)))
	require.NoError(t, j.Close())

	data, err := os.ReadFile(tradesPath)
	require.NoError(t, err)
	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3, "one header, both trades")
	assert.Equal(t, tradeHeader, rows[0])
	assert.Equal(t, "T1", rows[1][0])
	assert.Equal(t, "T2", rows[2][0])

	eq, err := os.ReadFile(equityPath)
	require.NoError(t, err)
	assert.Equal(t, "time,balance\n2024-01-02T09:30:00Z,1005.92\n", string(eq))
}

func TestCSVJournalWithoutEquity(t *testing.T) {
	t.Parallel()

	j, err := NewCSV(filepath.Join(t.TempDir(), "trades.csv"), "")
	require.NoError(t, err)
	assert.NoError(t, j.RecordEquity(EquityPoint{Time: exitAt, Balance: 1}))
	assert.NoError(t, j.Close())
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())

	assert.True(t, found["trades"])
	assert.True(t, found["equity"])
	assert.True(t, found["backtest_runs"])
}

func TestSQLiteTrades(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	want := sampleTrade("T123", "BTCUSDT", exitAt, 5.9176)
	require.NoError(t, j.Append(want))
	require.NoError(t, j.Append(sampleTrade("T124", "ETHUSDT", exitAt.Add(48*time.Hour), -3)))

	got, err := j.GetTrade("T123")
	require.NoError(t, err)
	assert.Equal(t, want.Symbol, got.Symbol)
	assert.InDelta(t, want.PnLNet, got.PnLNet, 1e-9)
	assert.InDelta(t, want.EntryRSI, got.EntryRSI, 1e-9)
	assert.True(t, got.EntryTime.Equal(want.EntryTime))
	assert.True(t, got.ExitTime.Equal(want.ExitTime))
	assert.Equal(t, "TP", got.Reason)

	_, err = j.GetTrade("missing")
	assert.Error(t, err)

	day, err := j.ListTradesClosedBetween(exitAt.Truncate(24*time.Hour), exitAt.Truncate(24*time.Hour).Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, day, 1)
	assert.Equal(t, "T123", day[0].ID)

	eth, err := j.ListTradesBySymbol("ETHUSDT")
	require.NoError(t, err)
	require.Len(t, eth, 1)
	assert.Equal(t, "T124", eth[0].ID)

	all, err := j.ListTrades()
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.Error(t, j.Append(want), "trade ids are unique")
}

func TestSQLiteEquityAndRuns(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	require.NoError(t, j.RecordEquity(EquityPoint{Time: exitAt, Balance: 1001}))
	require.NoError(t, j.RecordEquity(EquityPoint{Time: exitAt.Add(time.Hour), Balance: 1002}))

	eq, err := j.ListEquityBetween(exitAt, exitAt.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, eq, 1)
	assert.InDelta(t, 1001.0, eq[0].Balance, 1e-9)

	ctx := context.Background()
	run := Run{
		RunID:        "R1",
		Created:      exitAt,
		Symbols:      []string{"BTCUSDT", "ETHUSDT"},
		Timeframe:    "1h",
		Start:        entryAt,
		End:          exitAt,
		StartBalance: 1000,
		EndBalance:   1010,
		Trades:       4,
		Wins:         3,
		Losses:       1,
		Summary:      []byte(`{"total_trades":4}`),
	}
	require.NoError(t, j.RecordRun(ctx, run))

	got, err := j.GetRun(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, run.Symbols, got.Symbols)
	assert.Equal(t, 3, got.Wins)
	assert.JSONEq(t, `{"total_trades":4}`, string(got.Summary))

	_, err = j.GetRun(ctx, "nope")
	assert.Error(t, err)
}

func TestFormatTradeOrg(t *testing.T) {
	t.Parallel()

	out := FormatTradeOrg(sampleTrade("01HXYZABCDEF", "BTCUSDT", exitAt, 5.9176))
	assert.True(t, strings.HasPrefix(out, "** Trade: BTCUSDT TP (01HXYZAB)\n"))
	assert.Contains(t, out, ":PNL_NET: 5.92\n")
	assert.Contains(t, out, ":HOLDING_HOURS: 6\n")
	assert.Contains(t, out, ":END:\n")

	multi := FormatTradesOrg([]ClosedTrade{sampleTrade("A", "BTCUSDT", exitAt, 1), sampleTrade("B", "ETHUSDT", exitAt, 1)})
	assert.Equal(t, 2, strings.Count(multi, "** Trade:"))
	assert.Equal(t, "", FormatTradesOrg(nil))
}
