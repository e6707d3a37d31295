package broker

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"stockbt/internal/domain"
	"stockbt/internal/ledger"
	"stockbt/internal/order"
)

// Compile-time interface check.
var _ Broker = (*SimulatorBroker)(nil)

// SimulatorConfig holds the fixed parameters of a simulated account.
type SimulatorConfig struct {
	Balance       float64
	Commission    float64
	AutoFill      bool
	Live          bool
	DefaultShares int
}

// SimulatorBroker implements the Broker interface for backtesting. Every
// submission runs through the order engine and is then applied to the
// ledger; filled orders move the cash balance. It is owned by a single run
// and is not safe for concurrent use.
type SimulatorBroker struct {
	cfg     SimulatorConfig
	balance float64
	ledger  *ledger.Ledger
	newID   func() string
}

// Option configures a SimulatorBroker.
type Option func(*SimulatorBroker)

// WithIDFunc overrides the order ID generator.
func WithIDFunc(f func() string) Option {
	return func(b *SimulatorBroker) { b.newID = f }
}

// SequentialIDs returns a generator of name-based (SHA-1) UUIDs derived from
// scope and a counter. Two generators with the same scope yield the same
// sequence.
func SequentialIDs(scope string) func() string {
	var seq int
	return func() string {
		seq++
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(scope+"/"+strconv.Itoa(seq))).String()
	}
}

// NewSimulatorBroker creates a SimulatorBroker funded with cfg.Balance.
func NewSimulatorBroker(cfg SimulatorConfig, opts ...Option) *SimulatorBroker {
	b := &SimulatorBroker{
		cfg:     cfg,
		balance: cfg.Balance,
		ledger:  ledger.New(),
		newID:   SequentialIDs("simulator"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// SubmitOrder builds the order for req and applies it to the ledger.
func (b *SimulatorBroker) SubmitOrder(_ context.Context, req domain.OrderRequest) (domain.Order, error) {
	var o domain.Order
	switch req.Side {
	case domain.OrderSideBuy:
		o = b.createBuyOrder(req)
	case domain.OrderSideSell:
		o = b.createSellOrder(req)
	default:
		return domain.Order{}, fmt.Errorf("broker.SubmitOrder: unknown side %q", req.Side)
	}
	o.ID = b.newID()
	b.ledger.Apply(o)
	if o.Filled() {
		b.balance = o.ResultingBalance
	}
	return o, nil
}

func (b *SimulatorBroker) createBuyOrder(req domain.OrderRequest) domain.Order {
	return order.BuildBuyOrder(order.BuyRequest{
		Ticker:        req.Ticker,
		CurrentShares: b.ledger.Shares(req.Ticker),
		Price:         req.Price,
		Balance:       b.balance,
		Commission:    b.cfg.Commission,
		Shares:        req.Shares,
		AutoFill:      b.cfg.AutoFill,
		Live:          b.cfg.Live,
		DefaultShares: b.cfg.DefaultShares,
		Date:          req.Date,
		Reason:        req.Reason,
		Details:       req.Details,
	})
}

func (b *SimulatorBroker) createSellOrder(req domain.OrderRequest) domain.Order {
	return order.BuildSellOrder(order.SellRequest{
		Ticker:        req.Ticker,
		CurrentShares: b.ledger.Shares(req.Ticker),
		Price:         req.Price,
		Balance:       b.balance,
		Commission:    b.cfg.Commission,
		Shares:        req.Shares,
		AutoFill:      b.cfg.AutoFill,
		DefaultShares: b.cfg.DefaultShares,
		Date:          req.Date,
		Reason:        req.Reason,
		Details:       req.Details,
	})
}

// Balance returns the current cash balance.
func (b *SimulatorBroker) Balance() float64 { return b.balance }

// Shares returns the shares owned for ticker.
func (b *SimulatorBroker) Shares(ticker string) int { return b.ledger.Shares(ticker) }

// Ledger exposes the underlying position ledger.
func (b *SimulatorBroker) Ledger() *ledger.Ledger { return b.ledger }

// GetPositions returns deep copies of all positions in first-seen order.
func (b *SimulatorBroker) GetPositions(_ context.Context) ([]domain.Position, error) {
	tickers := b.ledger.Tickers()
	positions := make([]domain.Position, 0, len(tickers))
	for _, t := range tickers {
		p, _ := b.ledger.Position(t)
		positions = append(positions, p)
	}
	return positions, nil
}

// GetAccount returns simulated account information.
func (b *SimulatorBroker) GetAccount(_ context.Context) (*domain.AccountInfo, error) {
	return &domain.AccountInfo{
		Balance:       b.balance,
		StartBalance:  b.cfg.Balance,
		Commission:    b.cfg.Commission,
		OpenPositions: len(b.ledger.OpenTickers()),
		TotalBuys:     b.ledger.NumBuys(),
		TotalSells:    b.ledger.NumSells(),
	}, nil
}
