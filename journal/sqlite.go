package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) Append(t ClosedTrade) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(trade_id, symbol, quantity, entry_price, exit_price, entry_time, exit_time,
		 pnl_gross, commission, pnl_net, pnl_percent, reason, entry_rsi, entry_volume_ratio, balance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Symbol, t.Quantity, t.EntryPrice, t.ExitPrice, t.EntryTime.UTC(), t.ExitTime.UTC(),
		t.PnLGross, t.Commission, t.PnLNet, t.PnLPercent, t.Reason, t.EntryRSI, t.EntryVolumeRatio, t.Balance,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquityPoint) error {
	_, err := j.db.Exec(`INSERT INTO equity (time, balance) VALUES (?, ?)`, e.Time.UTC(), e.Balance)
	return err
}

// Run is the stored summary of one replay.
type Run struct {
	RunID        string
	Created      time.Time
	Symbols      []string
	Timeframe    string
	Start        time.Time
	End          time.Time
	StartBalance float64
	EndBalance   float64
	Trades       int
	Wins         int
	Losses       int
	Summary      []byte // JSON statistics
}

func (j *SQLite) RecordRun(ctx context.Context, r Run) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO backtest_runs
		(run_id, created, symbols, timeframe, start_time, end_time, start_balance, end_balance, trades, wins, losses, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created.UTC(), strings.Join(r.Symbols, ","), r.Timeframe, r.Start.UTC(), r.End.UTC(),
		r.StartBalance, r.EndBalance, r.Trades, r.Wins, r.Losses, string(r.Summary),
	)
	return err
}

func (j *SQLite) GetRun(ctx context.Context, runID string) (Run, error) {
	var (
		r       Run
		symbols string
		summary string
	)
	err := j.db.QueryRowContext(ctx, `
		SELECT run_id, created, symbols, timeframe, start_time, end_time, start_balance, end_balance, trades, wins, losses, summary
		FROM backtest_runs WHERE run_id = ?`, runID).Scan(
		&r.RunID, &r.Created, &symbols, &r.Timeframe, &r.Start, &r.End,
		&r.StartBalance, &r.EndBalance, &r.Trades, &r.Wins, &r.Losses, &summary,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return Run{}, fmt.Errorf("run %q not found", runID)
		}
		return Run{}, err
	}
	if symbols != "" {
		r.Symbols = strings.Split(symbols, ",")
	}
	r.Summary = []byte(summary)
	return r, nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
