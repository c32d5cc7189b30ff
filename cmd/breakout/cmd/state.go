package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/breakout/engine"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or reset the saved engine state",
	Long: `Show or reset the engine state file written by "breakout live".

Examples:
  breakout state show
  breakout state show --json
  breakout state reset -f state/engine.json`,
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the saved positions and breaker state",
	Args:  cobra.NoArgs,
	RunE:  runStateShow,
}

var stateResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the saved state so the next start is flat",
	Args:  cobra.NoArgs,
	RunE:  runStateReset,
}

var (
	stateFile string
	stateJSON bool
)

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateResetCmd)

	stateCmd.PersistentFlags().StringVarP(&stateFile, "file", "f", "", "state file (default: live.state_file)")
	stateShowCmd.Flags().BoolVar(&stateJSON, "json", false, "print the raw JSON state")
}

func statePath() (string, error) {
	if stateFile != "" {
		return stateFile, nil
	}
	if cfg.Live.StateFile != "" {
		return cfg.Live.StateFile, nil
	}
	return "", fmt.Errorf("no state file: set --file or live.state_file")
}

func runStateShow(cmd *cobra.Command, args []string) error {
	path, err := statePath()
	if err != nil {
		return err
	}
	st, err := engine.LoadState(path)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	out := cmd.OutOrStdout()
	if stateJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	fmt.Fprintf(out, "State %s (saved %s)\n", path, st.SavedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "  Balance:            %.2f\n", st.Balance)
	fmt.Fprintf(out, "  Consecutive losses: %d\n", st.Risk.ConsecutiveLosses)
	if !st.Risk.PausedUntil.IsZero() {
		fmt.Fprintf(out, "  Paused until:       %s\n", st.Risk.PausedUntil.Format(time.RFC3339))
	} else {
		fmt.Fprintln(out, "  Paused:             no")
	}
	fmt.Fprintf(out, "  Open positions:     %d\n", len(st.Positions))
	for _, p := range st.Positions {
		trail := ""
		if p.TrailingActive {
			trail = fmt.Sprintf(" trailing (high %.4f)", p.HighestPrice)
		}
		fmt.Fprintf(out, "    %-10s qty %.6f @ %.4f  SL %.4f  TP %.4f  since %s%s\n",
			p.Symbol, p.Quantity, p.EntryPrice, p.StopLoss, p.TakeProfit,
			p.EntryTime.Format(time.RFC3339), trail)
	}
	return nil
}

func runStateReset(cmd *cobra.Command, args []string) error {
	path, err := statePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove state: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", path)
	return nil
}
