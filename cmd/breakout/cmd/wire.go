package cmd

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rustyeddy/breakout/broker/sim"
	"github.com/rustyeddy/breakout/config"
	"github.com/rustyeddy/breakout/journal"
)

// openJournal builds the configured journal. The SQLite handle is returned
// separately so callers can record runs; it is nil for other types.
func openJournal(jc config.JournalConfig) (journal.Journal, *journal.SQLite, error) {
	switch strings.ToLower(jc.Type) {
	case "", "memory":
		return journal.NewMemory(), nil, nil
	case "csv":
		j, err := journal.NewCSV(jc.TradesFile, jc.EquityFile)
		if err != nil {
			return nil, nil, fmt.Errorf("open csv journal: %w", err)
		}
		return j, nil, nil
	case "sqlite":
		db, err := journal.NewSQLite(jc.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite journal: %w", err)
		}
		if !jc.CSVMirror {
			return db, db, nil
		}
		mirror, err := journal.NewCSV(jc.TradesFile, jc.EquityFile)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("open csv mirror: %w", err)
		}
		return journal.Multi{db, mirror}, db, nil
	default:
		return nil, nil, fmt.Errorf("unknown journal type %q", jc.Type)
	}
}

func newPaper(lots map[string]sim.Lot, clock func() time.Time) *sim.Paper {
	opts := make([]sim.Option, 0, len(lots)+1)
	for sym, l := range lots {
		opts = append(opts, sim.WithLot(sym, l))
	}
	if clock != nil {
		opts = append(opts, sim.WithClock(clock))
	}
	return sim.NewPaper(opts...)
}

// parseDate accepts YYYY-MM-DD or RFC3339. Empty means the zero time.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC3339", s)
	}
	return t.UTC(), nil
}

func log() *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
