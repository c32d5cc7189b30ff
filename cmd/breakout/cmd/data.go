package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/breakout/internal/bybit"
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Download historical candles",
}

var dataFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download closed Bybit klines for every configured symbol",
	Long: `Download closed klines from the Bybit v5 REST API into the CSV files the
backtest reads (backtest.data_dir/<SYMBOL>.csv unless backtest.files maps
the symbol elsewhere).

Examples:
  breakout data fetch --from 2023-01-01 --to 2024-05-01
  breakout data fetch --from 2024-01-01 --symbol BTCUSDT --env testnet`,
	Args: cobra.NoArgs,
	RunE: runDataFetch,
}

var (
	dataFrom    string
	dataTo      string
	dataEnv     string
	dataSymbols []string
	dataDir     string
)

func init() {
	rootCmd.AddCommand(dataCmd)
	dataCmd.AddCommand(dataFetchCmd)

	dataFetchCmd.Flags().StringVar(&dataFrom, "from", "", "first kline open time (YYYY-MM-DD or RFC3339, required)")
	dataFetchCmd.Flags().StringVar(&dataTo, "to", "", "end of range, exclusive (default: now)")
	dataFetchCmd.Flags().StringVar(&dataEnv, "env", "mainnet", "Bybit environment: mainnet or testnet")
	dataFetchCmd.Flags().StringSliceVar(&dataSymbols, "symbol", nil, "symbols to fetch (default: config symbols)")
	dataFetchCmd.Flags().StringVar(&dataDir, "data-dir", "", "output directory (overrides backtest.data_dir)")
	dataFetchCmd.MarkFlagRequired("from")
}

func runDataFetch(cmd *cobra.Command, args []string) error {
	from, err := parseDate(dataFrom)
	if err != nil {
		return err
	}
	to, err := parseDate(dataTo)
	if err != nil {
		return err
	}
	base, err := bybit.BaseURL(dataEnv)
	if err != nil {
		return err
	}

	symbols := dataSymbols
	if len(symbols) == 0 {
		symbols = cfg.Symbols
	}
	bc := cfg.Backtest
	if dataDir != "" {
		bc.DataDir = dataDir
		bc.Files = nil
	}

	client := &bybit.Client{BaseURL: base, HTTP: &http.Client{Timeout: 30 * time.Second}}
	out := cmd.OutOrStdout()
	for i, sym := range symbols {
		if i > 0 && cfg.Live.SymbolDelay > 0 {
			time.Sleep(cfg.Live.SymbolDelay)
		}
		path := bc.DataFile(sym)
		n, err := fetchToFile(cmd, client, bybit.KlinesOptions{
			Symbol: sym, Interval: cfg.Timeframe, Start: from, End: to,
		}, path)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", sym, err)
		}
		log().Info("klines written", "symbol", sym, "rows", n, "path", path)
		fmt.Fprintf(out, "Wrote %d %s candles to %s\n", n, sym, path)
	}
	return nil
}

func fetchToFile(cmd *cobra.Command, c *bybit.Client, opts bybit.KlinesOptions, path string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	n, err := c.DownloadKlinesToCSV(cmd.Context(), opts, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return n, err
	}
	return n, os.Rename(tmp, path)
}
