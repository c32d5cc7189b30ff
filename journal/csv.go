package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

var tradeHeader = []string{
	"trade_id", "symbol", "entry_time", "exit_time", "entry_price", "exit_price", "quantity",
	"pnl_gross", "commission", "pnl_net", "pnl_percent", "reason",
	"entry_rsi", "entry_volume_ratio", "holding_hours", "balance",
}

var equityHeader = []string{"time", "balance"}

// CSVJournal writes trades and, optionally, the equity curve as CSV.
// Money columns are rounded to cents; prices keep full precision.
type CSVJournal struct {
	trades *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
}

// NewCSV opens tradesPath and, when equityPath is not empty, equityPath for
// appending. The header row is written only to new or empty files.
func NewCSV(tradesPath, equityPath string) (*CSVJournal, error) {
	tf, tw, err := openAppend(tradesPath, tradeHeader)
	if err != nil {
		return nil, err
	}
	j := &CSVJournal{tf: tf, trades: tw}

	if equityPath != "" {
		ef, ew, err := openAppend(equityPath, equityHeader)
		if err != nil {
			_ = tf.Close()
			return nil, err
		}
		j.ef, j.equity = ef, ew
	}

	return j, nil
}

func openAppend(path string, header []string) (*os.File, *csv.Writer, error) {
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	st, err := fh.Stat()
	if err != nil {
		_ = fh.Close()
		return nil, nil, err
	}
	w := csv.NewWriter(fh)
	if st.Size() == 0 {
		if err := w.Write(header); err != nil {
			_ = fh.Close()
			return nil, nil, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			_ = fh.Close()
			return nil, nil, err
		}
	}
	return fh, w, nil
}

func (j *CSVJournal) Append(t ClosedTrade) error {
	err := j.trades.Write([]string{
		t.ID,
		t.Symbol,
		t.EntryTime.UTC().Format(time.RFC3339),
		t.ExitTime.UTC().Format(time.RFC3339),
		f(t.EntryPrice),
		f(t.ExitPrice),
		f(t.Quantity),
		cents(t.PnLGross),
		cents(t.Commission),
		cents(t.PnLNet),
		cents(t.PnLPercent * 100),
		t.Reason,
		cents(t.EntryRSI),
		cents(t.EntryVolumeRatio),
		strconv.Itoa(t.HoldingHours()),
		cents(t.Balance),
	})
	if err != nil {
		return err
	}
	j.trades.Flush()
	return j.trades.Error()
}

func (j *CSVJournal) RecordEquity(e EquityPoint) error {
	if j.equity == nil {
		return nil
	}
	err := j.equity.Write([]string{
		e.Time.UTC().Format(time.RFC3339),
		cents(e.Balance),
	})
	if err != nil {
		return err
	}

	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSVJournal) Close() error {
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	if err := j.tf.Close(); err != nil {
		return err
	}
	if j.equity != nil {
		j.equity.Flush()
		if err := j.equity.Error(); err != nil {
			return err
		}
		if err := j.ef.Close(); err != nil {
			return err
		}
	}
	return nil
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}

// cents rounds half away from zero to two decimals.
func cents(x float64) string {
	return decimal.NewFromFloat(x).Round(2).StringFixed(2)
}
