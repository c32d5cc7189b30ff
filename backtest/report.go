package backtest

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/breakout/journal"
)

// Summary is the persisted outcome of one replay.
type Summary struct {
	RunID          string    `json:"run_id"`
	Created        time.Time `json:"created"`
	Symbols        []string  `json:"symbols"`
	Timeframe      string    `json:"timeframe"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	InitialBalance float64   `json:"initial_balance"`

	Stats        Stats    `json:"stats"`
	ProfitFactor *float64 `json:"profit_factor"` // null when nothing lost
	Checks       []Check  `json:"checks"`
	Approved     bool     `json:"approved"`
}

// NewSummary rounds the statistics for reporting and applies the criteria.
func NewSummary(runID string, created time.Time, symbols []string, timeframe time.Duration, res Result, c Criteria) Summary {
	st := res.Stats
	checks := c.Evaluate(st)

	rounded := st
	rounded.WinRate = round(st.WinRate, 3)
	rounded.TotalPnL = round(st.TotalPnL, 2)
	rounded.TotalReturn = round(st.TotalReturn, 3)
	rounded.AvgWin = round(st.AvgWin, 2)
	rounded.AvgLoss = round(st.AvgLoss, 2)
	rounded.Sharpe = round(st.Sharpe, 2)
	rounded.MaxDrawdown = round(st.MaxDrawdown, 3)
	rounded.AvgHoldingHours = round(st.AvgHoldingHours, 1)
	rounded.Commission = round(st.Commission, 2)
	rounded.FinalBalance = round(st.FinalBalance, 2)

	var pf *float64
	if !math.IsInf(st.ProfitFactor, 0) {
		v := round(st.ProfitFactor, 2)
		pf = &v
	}

	return Summary{
		RunID:          runID,
		Created:        created,
		Symbols:        symbols,
		Timeframe:      timeframe.String(),
		Start:          res.Start,
		End:            res.End,
		InitialBalance: res.InitialBalance,
		Stats:          rounded,
		ProfitFactor:   pf,
		Checks:         checks,
		Approved:       Approved(checks),
	}
}

// Run converts the summary into a journal run record.
func (s Summary) Run() (journal.Run, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return journal.Run{}, err
	}
	return journal.Run{
		RunID:        s.RunID,
		Created:      s.Created,
		Symbols:      s.Symbols,
		Timeframe:    s.Timeframe,
		Start:        s.Start,
		End:          s.End,
		StartBalance: s.InitialBalance,
		EndBalance:   s.Stats.FinalBalance,
		Trades:       s.Stats.TotalTrades,
		Wins:         s.Stats.WinningTrades,
		Losses:       s.Stats.LosingTrades,
		Summary:      body,
	}, nil
}

// WriteSummaryJSON writes s to path, indented.
func WriteSummaryJSON(path string, s Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

func PrintReport(w io.Writer, s Summary) {
	st := s.Stats

	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")

	fmt.Fprintf(w, "Run ID:        %s\n", s.RunID)
	fmt.Fprintf(w, "Symbols:       %v\n", s.Symbols)
	fmt.Fprintf(w, "Timeframe:     %s\n", s.Timeframe)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Period")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start:         %s\n", s.Start.Format(time.RFC3339))
	fmt.Fprintf(w, "End:           %s\n", s.End.Format(time.RFC3339))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Trades:        %d\n", st.TotalTrades)
	fmt.Fprintf(w, "Wins:          %d\n", st.WinningTrades)
	fmt.Fprintf(w, "Losses:        %d\n", st.LosingTrades)
	fmt.Fprintf(w, "Win Rate:      %.1f%%\n", st.WinRate*100)
	fmt.Fprintf(w, "Avg Win:       %.2f\n", st.AvgWin)
	fmt.Fprintf(w, "Avg Loss:      %.2f\n", st.AvgLoss)
	fmt.Fprintf(w, "Max Loss Run:  %d\n", st.MaxConsecutiveLosses)
	fmt.Fprintf(w, "Avg Holding:   %.1f hours\n", st.AvgHoldingHours)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start Balance: %.2f\n", s.InitialBalance)
	fmt.Fprintf(w, "End Balance:   %.2f\n", st.FinalBalance)
	fmt.Fprintf(w, "Net P/L:       %.2f\n", st.TotalPnL)
	fmt.Fprintf(w, "Commission:    %.2f\n", st.Commission)
	fmt.Fprintf(w, "Return:        %.1f%%\n", st.TotalReturn*100)
	if s.ProfitFactor != nil {
		fmt.Fprintf(w, "Profit Factor: %.2f\n", *s.ProfitFactor)
	} else {
		fmt.Fprintln(w, "Profit Factor: inf")
	}
	fmt.Fprintf(w, "Sharpe:        %.2f\n", st.Sharpe)
	fmt.Fprintf(w, "Max Drawdown:  %.1f%%\n", st.MaxDrawdown*100)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Go-Live Criteria")
	fmt.Fprintln(w, "--------------------------------------------------")
	for _, c := range s.Checks {
		mark := " "
		if c.Passed {
			mark = "X"
		}
		fmt.Fprintf(w, "- [%s] %s\n", mark, c.Name)
	}
	fmt.Fprintln(w)
	if s.Approved {
		fmt.Fprintln(w, "Verdict:       APPROVED for live trading")
	} else {
		fmt.Fprintln(w, "Verdict:       needs optimization")
	}
	fmt.Fprintln(w)
}

func round(x float64, places int32) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	v, _ := decimal.NewFromFloat(x).Round(places).Float64()
	return v
}
