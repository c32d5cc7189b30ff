// Package broker defines the execution adapter the engine trades through.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/breakout/strategy"
)

// ErrAdapter wraps every execution failure reported by an adapter.
var ErrAdapter = errors.New("execution adapter")

// Adapter places and manages orders. Implementations must not change engine
// state; the engine commits a transition only after a successful call.
type Adapter interface {
	Open(ctx context.Context, req strategy.OpenRequest) (Fill, error)
	Close(ctx context.Context, req strategy.CloseRequest) (Fill, error)
	AdjustStop(ctx context.Context, symbol string, stop float64) error
}

// Fill is a confirmed execution. Price and Quantity are what the venue
// actually filled, which may differ from the request.
type Fill struct {
	TradeID  string    `json:"trade_id"`
	Symbol   string    `json:"symbol"`
	Price    float64   `json:"price"`
	Quantity float64   `json:"quantity"`
	Time     time.Time `json:"time"`
}
