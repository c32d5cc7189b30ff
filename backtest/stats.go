package backtest

import (
	"math"
	"time"

	"github.com/rustyeddy/breakout/journal"
)

// Stats summarizes a list of closed trades.
type Stats struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"` // every trade that did not win
	WinRate       float64 `json:"win_rate"`

	TotalPnL    float64 `json:"total_pnl"`
	TotalReturn float64 `json:"total_return"`
	AvgWin      float64 `json:"avg_win"`
	AvgLoss     float64 `json:"avg_loss"`

	ProfitFactor float64 `json:"-"` // +Inf when nothing lost
	Sharpe       float64 `json:"sharpe_ratio"`
	MaxDrawdown  float64 `json:"max_drawdown"` // fraction of the initial balance

	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	AvgHoldingHours      float64 `json:"avg_holding_hours"`
	Commission           float64 `json:"commission"`
	FinalBalance         float64 `json:"final_balance"`
}

// hourlyAnnualization scales a per-trade Sharpe as if trades were hourly.
var hourlyAnnualization = math.Sqrt(365 * 24)

// ComputeStats derives Stats from trades in exit order. Returns are per-trade
// net PnL over the initial balance; drawdown is measured on cumulative PnL.
func ComputeStats(trades []journal.ClosedTrade, initial float64) Stats {
	s := Stats{TotalTrades: len(trades), FinalBalance: initial}
	if len(trades) == 0 || initial <= 0 {
		return s
	}

	var (
		grossProfit, grossLoss float64
		losses                 int
		streak                 int
		cum, peak, maxDD       float64
		holding                time.Duration
		returns                = make([]float64, 0, len(trades))
	)

	for _, t := range trades {
		pnl := t.PnLNet
		s.TotalPnL += pnl
		s.Commission += t.Commission
		holding += time.Duration(t.HoldingHours()) * time.Hour
		returns = append(returns, pnl/initial)

		switch {
		case pnl > 0:
			s.WinningTrades++
			grossProfit += pnl
		case pnl < 0:
			losses++
			grossLoss += -pnl
		}

		if pnl < 0 {
			streak++
			if streak > s.MaxConsecutiveLosses {
				s.MaxConsecutiveLosses = streak
			}
		} else {
			streak = 0
		}

		cum += pnl
		if cum > peak {
			peak = cum
		}
		if dd := (peak - cum) / initial; dd > maxDD {
			maxDD = dd
		}
	}

	s.LosingTrades = s.TotalTrades - s.WinningTrades
	s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades)
	s.TotalReturn = s.TotalPnL / initial
	s.FinalBalance = initial + s.TotalPnL
	s.MaxDrawdown = maxDD
	s.AvgHoldingHours = holding.Hours() / float64(s.TotalTrades)

	if s.WinningTrades > 0 {
		s.AvgWin = grossProfit / float64(s.WinningTrades)
	}
	if losses > 0 {
		s.AvgLoss = -grossLoss / float64(losses)
	}
	if grossLoss > 0 {
		s.ProfitFactor = grossProfit / grossLoss
	} else {
		s.ProfitFactor = math.Inf(1)
	}

	if sd := sampleStdDev(returns); sd > 0 {
		s.Sharpe = mean(returns) / sd * hourlyAnnualization
	}
	return s
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func sampleStdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// Criteria are the thresholds a replay must meet before going live.
type Criteria struct {
	MinWinRate      float64 `json:"min_win_rate" yaml:"min_win_rate"`
	MaxDrawdown     float64 `json:"max_drawdown" yaml:"max_drawdown"`
	MinTrades       int     `json:"min_trades" yaml:"min_trades"`
	MinProfitFactor float64 `json:"min_profit_factor" yaml:"min_profit_factor"`
}

func DefaultCriteria() Criteria {
	return Criteria{MinWinRate: 0.55, MaxDrawdown: 0.20, MinTrades: 100, MinProfitFactor: 1.3}
}

// Check is the result of one criterion.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// Evaluate checks s against every criterion, plus a positive total return.
func (c Criteria) Evaluate(s Stats) []Check {
	return []Check{
		{Name: "win rate", Passed: s.WinRate >= c.MinWinRate},
		{Name: "max drawdown", Passed: s.MaxDrawdown <= c.MaxDrawdown},
		{Name: "trade count", Passed: s.TotalTrades >= c.MinTrades},
		{Name: "profit factor", Passed: s.ProfitFactor >= c.MinProfitFactor},
		{Name: "positive return", Passed: s.TotalReturn > 0},
	}
}

// Approved reports whether every check passed.
func Approved(checks []Check) bool {
	for _, c := range checks {
		if !c.Passed {
			return false
		}
	}
	return len(checks) > 0
}
