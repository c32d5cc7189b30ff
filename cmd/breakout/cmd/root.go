package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/breakout/config"
	"github.com/rustyeddy/breakout/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "breakout",
	Short: "RSI and volume breakout trading engine",
	Long: `Breakout trades long-only RSI oversold entries confirmed by a volume spike.

It provides tools for:
  - Replaying historical candles and checking go-live criteria
  - Running the engine live against a Bybit kline stream with a paper adapter
  - Querying the trade journal
  - Inspecting persisted engine state

Settings come from a YAML or JSON config file; see "breakout config init".`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

var (
	cfgPath  string
	envPath  string
	logLevel string

	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default: $BREAKOUT_CONFIG or built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
}

// setup loads .env, the config file and the logger for every command.
func setup(cmd *cobra.Command, args []string) error {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", envPath, err)
		}
	}

	path := cfgPath
	if path == "" {
		path = os.Getenv("BREAKOUT_CONFIG")
	}
	if path == "" {
		cfg = config.Default()
	} else {
		c, err := config.LoadFromFile(path)
		if err != nil {
			return err
		}
		cfg = c
	}

	if logLevel == "" {
		logLevel = os.Getenv("BREAKOUT_LOG_LEVEL")
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	l, closer, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	logger, logCloser = l, closer
	slog.SetDefault(logger)
	return nil
}
