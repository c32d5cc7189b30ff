package strategy

import "github.com/rustyeddy/breakout/indicators"

type Kind int

const (
	None Kind = iota
	Open
	Close
)

func (k Kind) String() string {
	switch k {
	case Open:
		return "open"
	case Close:
		return "close"
	default:
		return "none"
	}
}

// Exit reasons, in evaluation priority order.
const (
	ReasonRSIExit    = "RSI_EXIT"
	ReasonTakeProfit = "TP"
	ReasonStopLoss   = "SL"
	ReasonTrailing   = "TRAILING_SL"

	// ReasonEndOfReplay closes whatever is still open when a replay ends.
	ReasonEndOfReplay = "END_OF_REPLAY"
)

// Note says why a None decision was produced. NoteWarmup means the candle
// could not be evaluated at all; the others mean it was evaluated and declined.
type Note string

const (
	NoteWarmup   Note = "no_decision_warmup"
	NoteDeclined Note = "entry_declined"
	NotePaused   Note = "entry_paused"
	NoteHolding  Note = "holding"
	NoteSignal   Note = "signal"
)

// OpenRequest asks the execution adapter for a long entry.
type OpenRequest struct {
	Symbol     string              `json:"symbol"`
	EntryPrice float64             `json:"entry_price"`
	Quantity   float64             `json:"quantity"`
	StopLoss   float64             `json:"stop_loss"`
	TakeProfit float64             `json:"take_profit"`
	Snapshot   indicators.Snapshot `json:"snapshot"`
}

// CloseRequest asks the execution adapter to flatten a position.
type CloseRequest struct {
	Symbol    string  `json:"symbol"`
	Reason    string  `json:"reason"`
	ExitPrice float64 `json:"exit_price"`
	Quantity  float64 `json:"quantity"`
}

// Decision is the outcome of evaluating one candle for one symbol.
type Decision struct {
	Kind  Kind          `json:"kind"`
	Note  Note          `json:"note"`
	Open  *OpenRequest  `json:"open,omitempty"`
	Close *CloseRequest `json:"close,omitempty"`

	// Position is the open position after the candle's trailing update, or
	// nil when flat. It is not committed until the caller applies it.
	Position *Position `json:"position,omitempty"`

	// Detail carries the breaker message for NotePaused.
	Detail string `json:"detail,omitempty"`
}
