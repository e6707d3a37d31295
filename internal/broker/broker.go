// Package broker defines the Broker interface and the simulated broker that
// fills backtest orders against a cash balance and a position ledger.
package broker

import (
	"context"

	"stockbt/internal/domain"
)

// Broker abstracts order execution and account inspection.
type Broker interface {
	// Name returns the broker identifier (e.g. "simulator").
	Name() string

	// SubmitOrder attempts the order and returns its immutable record.
	// Rejections are reported through the order status, not the error.
	SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error)

	// GetPositions returns all positions, including closed ones.
	GetPositions(ctx context.Context) ([]domain.Position, error)

	// GetAccount returns a snapshot of the account's financial metrics.
	GetAccount(ctx context.Context) (*domain.AccountInfo, error)
}
