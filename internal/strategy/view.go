package strategy

import (
	"context"

	"stockbt/internal/domain"
)

// PositionReader gives read access to full positions, order history
// included. Implementations return copies.
type PositionReader interface {
	Position(ticker string) (domain.Position, bool)
	Positions() map[string]domain.Position
}

// View is the read-only state handed to Strategy.Process for one snapshot.
// All fields are copies; changing them has no effect on the engine.
type View struct {
	ID       string
	Ticker   string
	Date     string
	Minute   string
	Snapshot domain.Snapshot
	Latest   domain.OHLCV
	Balance  float64
	Holdings map[string]int // shares owned per ticker
	Book     PositionReader
}

// Shares returns the shares owned for ticker in this view.
func (v View) Shares(ticker string) int {
	return v.Holdings[ticker]
}

// Position returns a copy of the position for ticker, including its order
// history. The copy is built on each call.
func (v View) Position(ticker string) (domain.Position, bool) {
	if v.Book == nil {
		return domain.Position{}, false
	}
	return v.Book.Position(ticker)
}

// Positions returns copies of every position. Prefer Shares when only the
// share count is needed.
func (v View) Positions() map[string]domain.Position {
	if v.Book == nil {
		return map[string]domain.Position{}
	}
	return v.Book.Positions()
}

// Intent is a strategy's request to attempt one order.
type Intent struct {
	Side   domain.OrderSide
	Ticker string  // defaults to the view's ticker
	Shares int     // zero lets the order engine pick the amount
	Price  float64 // zero uses the latest close
	Reason string
}

// Buy returns a buy intent for the view's ticker at the latest close.
func Buy(shares int, reason string) Intent {
	return Intent{Side: domain.OrderSideBuy, Shares: shares, Reason: reason}
}

// Sell returns a sell intent for the view's ticker at the latest close.
func Sell(shares int, reason string) Intent {
	return Intent{Side: domain.OrderSideSell, Shares: shares, Reason: reason}
}

// NoOpName is the registry name of the default strategy.
const NoOpName = "noop"

// Compile-time interface check.
var _ Strategy = NoOp{}

// NoOp never trades.
type NoOp struct{}

// Name returns "noop".
func (NoOp) Name() string { return NoOpName }

// Init does nothing.
func (NoOp) Init(context.Context) error { return nil }

// Process returns no intents.
func (NoOp) Process(context.Context, View) ([]Intent, error) { return nil, nil }
