// Package metrics exposes Prometheus instruments for the engine, the
// execution adapters, and the drivers.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Registry *prometheus.Registry

	Decisions         *prometheus.CounterVec // kind, note
	Opens             *prometheus.CounterVec // symbol
	Closes            *prometheus.CounterVec // symbol, reason
	StopAdjustments   *prometheus.CounterVec // symbol
	AdapterAttempts   *prometheus.CounterVec // op
	AdapterFailures   *prometheus.CounterVec // op
	LedgerFailures    prometheus.Counter
	ConsecutiveLosses prometheus.Gauge
	Paused            prometheus.Gauge
	OpenPositions     prometheus.Gauge
	RealizedPnL       prometheus.Gauge
}

// New creates the instruments on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "breakout_decisions_total", Help: "Engine decisions by kind and note",
		}, []string{"kind", "note"}),
		Opens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "breakout_positions_opened_total", Help: "Positions opened after a confirmed fill",
		}, []string{"symbol"}),
		Closes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "breakout_positions_closed_total", Help: "Positions closed by exit reason",
		}, []string{"symbol", "reason"}),
		StopAdjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "breakout_stop_adjustments_total", Help: "Trailing stop moves",
		}, []string{"symbol"}),
		AdapterAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "breakout_adapter_attempts_total", Help: "Execution adapter calls including retries",
		}, []string{"op"}),
		AdapterFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "breakout_adapter_failures_total", Help: "Execution adapter calls that failed after retries",
		}, []string{"op"}),
		LedgerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "breakout_ledger_failures_total", Help: "Closed trades the ledger failed to append",
		}),
		ConsecutiveLosses: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "breakout_consecutive_losses", Help: "Current net-losing close streak",
		}),
		Paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "breakout_entries_paused", Help: "1 while the loss breaker blocks entries",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "breakout_open_positions", Help: "Open positions across symbols",
		}),
		RealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "breakout_realized_pnl", Help: "Signed net PnL of trades closed since start",
		}),
	}

	m.Registry.MustRegister(
		m.Decisions, m.Opens, m.Closes, m.StopAdjustments,
		m.AdapterAttempts, m.AdapterFailures, m.LedgerFailures,
		m.ConsecutiveLosses, m.Paused, m.OpenPositions, m.RealizedPnL,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
