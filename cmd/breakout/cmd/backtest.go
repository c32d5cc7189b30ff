package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/breakout/backtest"
	"github.com/rustyeddy/breakout/engine"
	"github.com/rustyeddy/breakout/indicators"
	"github.com/rustyeddy/breakout/journal"
	"github.com/rustyeddy/breakout/pkg/id"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay historical candles through the engine",
	Long: `Replay candle CSV files for every configured symbol through one engine.

Candles from all symbols are merged by open time so the consecutive-loss
breaker is shared exactly as it would be live. Each symbol reads
<data-dir>/<SYMBOL>.csv unless backtest.files maps it elsewhere.

Examples:
  breakout backtest -c breakout.yaml
  breakout backtest --data-dir ./data --from 2024-01-01 --to 2024-06-01
  breakout backtest --close-end --summary out/summary.json --org`,
	Args: cobra.NoArgs,
	RunE: runBacktest,
}

var (
	btDataDir  string
	btFrom     string
	btTo       string
	btSummary  string
	btCloseEnd bool
	btOrg      bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVar(&btDataDir, "data-dir", "", "directory of <SYMBOL>.csv candle files (overrides backtest.data_dir)")
	backtestCmd.Flags().StringVar(&btFrom, "from", "", "first candle open time, inclusive (YYYY-MM-DD or RFC3339)")
	backtestCmd.Flags().StringVar(&btTo, "to", "", "last candle open time, exclusive (YYYY-MM-DD or RFC3339)")
	backtestCmd.Flags().StringVar(&btSummary, "summary", "", "write the JSON summary to this file (overrides backtest.summary_file)")
	backtestCmd.Flags().BoolVar(&btCloseEnd, "close-end", false, "close open positions at the end of the data")
	backtestCmd.Flags().BoolVar(&btOrg, "org", false, "print the closed trades as org-mode entries")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	bc := cfg.Backtest
	if btDataDir != "" {
		bc.DataDir = btDataDir
	}
	if btSummary != "" {
		bc.SummaryFile = btSummary
	}
	if btCloseEnd {
		bc.CloseAtEnd = true
	}
	from, to := bc.From, bc.To
	if t, err := parseDate(btFrom); err != nil {
		return err
	} else if !t.IsZero() {
		from = t
	}
	if t, err := parseDate(btTo); err != nil {
		return err
	} else if !t.IsZero() {
		to = t
	}

	feeds := make(map[string]backtest.CandleFeed, len(cfg.Symbols))
	defer func() {
		for _, f := range feeds {
			_ = f.Close()
		}
	}()
	for _, sym := range cfg.Symbols {
		f, err := backtest.NewCSVCandleFeed(bc.DataFile(sym), sym, from, to)
		if err != nil {
			return fmt.Errorf("open feed %s: %w", sym, err)
		}
		feeds[sym] = f
	}

	j, db, err := openJournal(cfg.Journal)
	if err != nil {
		return err
	}
	defer j.Close()

	eng, err := engine.New(cfg.Engine(), cfg.Account.Balance,
		engine.WithLedger(j),
		engine.WithLogger(log()),
	)
	if err != nil {
		return err
	}

	r := &backtest.Runner{
		Engine:   eng,
		Adapter:  newPaper(cfg.Live.Lots, nil),
		Provider: indicators.NewProvider(cfg.Indicators),
		Feeds:    feeds,
		Journal:  j,
		Options:  backtest.RunnerOptions{CloseEnd: bc.CloseAtEnd},
		Log:      log(),
	}

	res, err := r.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}

	summary := backtest.NewSummary(id.New(), time.Now().UTC(), cfg.Symbols, cfg.Timeframe, res, backtest.DefaultCriteria())

	out := cmd.OutOrStdout()
	backtest.PrintReport(out, summary)
	if btOrg && len(res.Trades) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, journal.FormatTradesOrg(res.Trades))
	}

	if bc.SummaryFile != "" {
		if err := backtest.WriteSummaryJSON(bc.SummaryFile, summary); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
		fmt.Fprintf(out, "\nSummary written to %s\n", bc.SummaryFile)
	}

	if db != nil {
		run, err := summary.Run()
		if err != nil {
			return err
		}
		if err := db.RecordRun(cmd.Context(), run); err != nil {
			return fmt.Errorf("record run: %w", err)
		}
		fmt.Fprintf(out, "Run %s recorded in %s\n", summary.RunID, cfg.Journal.DBPath)
	}
	return nil
}
