package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/breakout/backtest"
	"github.com/rustyeddy/breakout/broker"
	"github.com/rustyeddy/breakout/broker/sim"
	"github.com/rustyeddy/breakout/engine"
	"github.com/rustyeddy/breakout/indicators"
	"github.com/rustyeddy/breakout/live"
	"github.com/rustyeddy/breakout/market"
	"github.com/rustyeddy/breakout/metrics"
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Run the engine against the live kline stream",
	Long: `Subscribe to confirmed Bybit klines for every configured symbol and step
the engine each poll interval. Orders go to the paper adapter behind the
rate-limit, duplicate and retry guard.

Engine state (positions, breaker, balance) is restored from live.state_file
on start and written back after every change and on shutdown.

Examples:
  breakout live -c breakout.yaml
  breakout live --seed-dir ./data --metrics :9100`,
	Args: cobra.NoArgs,
	RunE: runLive,
}

var (
	liveSeedDir string
	liveMetrics string
	liveFresh   bool
)

func init() {
	rootCmd.AddCommand(liveCmd)

	liveCmd.Flags().StringVar(&liveSeedDir, "seed-dir", "", "preload <SYMBOL>.csv history so indicators are warm at start")
	liveCmd.Flags().StringVar(&liveMetrics, "metrics", "", "serve Prometheus metrics on this address (overrides live.metrics_addr)")
	liveCmd.Flags().BoolVar(&liveFresh, "fresh", false, "ignore the saved state file")
}

func runLive(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lc := cfg.Live
	if liveMetrics != "" {
		lc.MetricsAddr = liveMetrics
	}

	interval, err := live.BybitInterval(cfg.Timeframe)
	if err != nil {
		return err
	}

	j, _, err := openJournal(cfg.Journal)
	if err != nil {
		return err
	}
	defer j.Close()

	m := metrics.New()
	eng, err := engine.New(cfg.Engine(), cfg.Account.Balance,
		engine.WithLedger(j),
		engine.WithLogger(log()),
		engine.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	paper := newPaper(lc.Lots, func() time.Time { return time.Now().UTC() })
	if !liveFresh && lc.StateFile != "" {
		if err := restoreState(eng, paper, lc.StateFile); err != nil {
			return err
		}
	}

	stream := live.NewKlineStream(lc.WSURL, interval, cfg.Symbols, lc.Window, log())
	if liveSeedDir != "" {
		if err := seedStream(stream, liveSeedDir); err != nil {
			return err
		}
	}

	if lc.MetricsAddr != "" {
		srv := &http.Server{Addr: lc.MetricsAddr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log().Info("metrics listening", "addr", lc.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log().Error("metrics server failed", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	go func() {
		if err := stream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log().Error("kline stream stopped", "err", err)
		}
	}()

	d := &live.Driver{
		Engine:       eng,
		Adapter:      broker.NewGuard(paper, lc.Guard, m),
		Source:       stream,
		Provider:     indicators.NewProvider(cfg.Indicators),
		Symbols:      cfg.Symbols,
		PollInterval: lc.PollInterval,
		SymbolDelay:  lc.SymbolDelay,
		StateFile:    lc.StateFile,
		Log:          log(),
	}

	err = d.Run(ctx)
	if errors.Is(err, context.Canceled) {
		fmt.Fprintf(cmd.OutOrStdout(), "Stopped. Balance %.2f, %d open position(s)\n", eng.Balance(), len(eng.Positions()))
		return nil
	}
	return err
}

func restoreState(eng *engine.Engine, paper *sim.Paper, path string) error {
	st, err := engine.LoadState(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if err := eng.Restore(st); err != nil {
		return fmt.Errorf("restore state: %w", err)
	}
	for _, pos := range st.Positions {
		if err := paper.Adopt(pos); err != nil {
			return fmt.Errorf("adopt %s: %w", pos.Symbol, err)
		}
	}
	log().Info("state restored", "path", path, "positions", len(st.Positions),
		"balance", st.Balance, "saved_at", st.SavedAt)
	return nil
}

func seedStream(s *live.KlineStream, dir string) error {
	bc := cfg.Backtest
	bc.DataDir = dir
	bc.Files = nil
	for _, sym := range cfg.Symbols {
		f, err := backtest.NewCSVCandleFeed(bc.DataFile(sym), sym, time.Time{}, time.Time{})
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seed %s: %w", sym, err)
		}
		var candles []market.Candle
		for {
			c, ok, err := f.Next()
			if err != nil {
				f.Close()
				return fmt.Errorf("seed %s: %w", sym, err)
			}
			if !ok {
				break
			}
			candles = append(candles, c)
		}
		f.Close()
		s.Seed(candles)
		log().Info("seeded history", "symbol", sym, "candles", len(candles))
	}
	return nil
}
