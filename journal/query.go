package journal

import (
	"database/sql"
	"fmt"
	"time"
)

const tradeColumns = `trade_id, symbol, quantity, entry_price, exit_price, entry_time, exit_time,
	pnl_gross, commission, pnl_net, pnl_percent, reason, entry_rsi, entry_volume_ratio, balance`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (ClosedTrade, error) {
	var rec ClosedTrade
	err := s.Scan(
		&rec.ID,
		&rec.Symbol,
		&rec.Quantity,
		&rec.EntryPrice,
		&rec.ExitPrice,
		&rec.EntryTime,
		&rec.ExitTime,
		&rec.PnLGross,
		&rec.Commission,
		&rec.PnLNet,
		&rec.PnLPercent,
		&rec.Reason,
		&rec.EntryRSI,
		&rec.EntryVolumeRatio,
		&rec.Balance,
	)
	return rec, err
}

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(tradeID string) (ClosedTrade, error) {
	row := j.db.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE trade_id = ?`, tradeID)

	rec, err := scanTrade(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return ClosedTrade{}, fmt.Errorf("trade %q not found", tradeID)
		}
		return ClosedTrade{}, err
	}
	return rec, nil
}

// ListTradesClosedBetween returns trades whose exit_time is within [start, end).
func (j *SQLite) ListTradesClosedBetween(start, end time.Time) ([]ClosedTrade, error) {
	return j.listTrades(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE exit_time >= ? AND exit_time < ?
		ORDER BY exit_time ASC, symbol ASC`, start.UTC(), end.UTC())
}

// ListTradesBySymbol returns every trade for symbol ordered by exit time.
func (j *SQLite) ListTradesBySymbol(symbol string) ([]ClosedTrade, error) {
	return j.listTrades(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE symbol = ?
		ORDER BY exit_time ASC`, symbol)
}

// ListTrades returns every trade ordered by exit time.
func (j *SQLite) ListTrades() ([]ClosedTrade, error) {
	return j.listTrades(`SELECT ` + tradeColumns + ` FROM trades ORDER BY exit_time ASC, symbol ASC`)
}

func (j *SQLite) listTrades(query string, args ...any) ([]ClosedTrade, error) {
	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ClosedTrade
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEquityBetween returns equity points within [start, end).
func (j *SQLite) ListEquityBetween(start, end time.Time) ([]EquityPoint, error) {
	rows, err := j.db.Query(`
		SELECT time, balance
		FROM equity
		WHERE time >= ? AND time < ?
		ORDER BY time ASC;`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquityPoint
	for rows.Next() {
		var e EquityPoint
		if err := rows.Scan(&e.Time, &e.Balance); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
