// Package order builds simulated buy and sell orders against a cash balance
// and share count. The functions are pure: they never touch a ledger, they
// only describe what the ledger would look like after the attempt.
package order

import (
	"fmt"

	"github.com/shopspring/decimal"

	"stockbt/internal/domain"
)

// DefaultBacktestShares is the share count used by backtest buys that do
// not request an explicit amount.
const DefaultBacktestShares = 10

const (
	minPrice         = 0.10
	minTradableFunds = 10.0
)

// BuyRequest describes one buy attempt.
type BuyRequest struct {
	Ticker        string
	CurrentShares int
	Price         float64
	Balance       float64
	Commission    float64
	Shares        int // requested share count; zero or less means unset
	AutoFill      bool
	Live          bool
	DefaultShares int
	Date          string
	Reason        string
	Details       map[string]string
}

// SellRequest describes one sell attempt.
type SellRequest struct {
	Ticker        string
	CurrentShares int
	Price         float64
	Balance       float64
	Commission    float64
	Shares        int // requested share count; zero or less sells everything
	AutoFill      bool
	DefaultShares int
	Date          string
	Reason        string
	Details       map[string]string
}

// BuildBuyOrder attempts to fill a buy. A rejected attempt leaves the
// resulting balance and shares equal to the previous ones.
func BuildBuyOrder(req BuyRequest) domain.Order {
	o := domain.Order{
		Ticker:           req.Ticker,
		Side:             domain.OrderSideBuy,
		Price:            req.Price,
		Commission:       req.Commission,
		PrevBalance:      req.Balance,
		PrevShares:       req.CurrentShares,
		ResultingBalance: req.Balance,
		ResultingShares:  req.CurrentShares,
		Timestamp:        req.Date,
		Reason:           req.Reason,
		Details:          copyDetails(req.Details),
	}
	if req.Shares > 0 {
		o.RequestedShares = req.Shares
	}

	price := decimal.NewFromFloat(req.Price)
	balance := decimal.NewFromFloat(req.Balance)
	commission := decimal.NewFromFloat(req.Commission)
	twoCommissions := commission.Mul(decimal.NewFromInt(2))

	shares := req.Shares
	var tradable decimal.Decimal
	if req.Live {
		tradable = balance.Sub(twoCommissions)
	} else {
		if shares <= 0 {
			shares = defaultShares(req.DefaultShares)
		}
		tradable = price.Mul(decimal.NewFromInt(int64(shares))).Add(twoCommissions)
	}

	if req.Price <= minPrice || !tradable.GreaterThan(decimal.NewFromFloat(minTradableFunds)) {
		o.Status = domain.OrderStatusNotEnoughFunds
		o.Details = withDetail(o.Details, "rejected", fmt.Sprintf("price=%s tradable=%s", price, tradable.StringFixed(2)))
		return o
	}

	buyable := shares
	if buyable <= 0 {
		buyable = int(tradable.Div(price).Floor().IntPart())
	}
	o.Shares = buyable
	cost := price.Mul(decimal.NewFromInt(int64(buyable))).Add(commission)

	if buyable <= 0 || cost.GreaterThan(balance) {
		o.Status = domain.OrderStatusNotEnoughFunds
		o.Details = withDetail(o.Details, "rejected", fmt.Sprintf("cost=%s balance=%s", cost.StringFixed(2), balance.StringFixed(2)))
		return o
	}

	o.Status = domain.OrderStatusFilled
	if req.AutoFill {
		o.ResultingShares = req.CurrentShares + buyable
		o.ResultingBalance = money(balance.Sub(cost))
	}
	return o
}

// BuildSellOrder attempts to fill a sell. The sellable amount is capped at
// the current share count so the ledger can never go negative.
func BuildSellOrder(req SellRequest) domain.Order {
	o := domain.Order{
		Ticker:           req.Ticker,
		Side:             domain.OrderSideSell,
		Price:            req.Price,
		Commission:       req.Commission,
		PrevBalance:      req.Balance,
		PrevShares:       req.CurrentShares,
		ResultingBalance: req.Balance,
		ResultingShares:  req.CurrentShares,
		Timestamp:        req.Date,
		Reason:           req.Reason,
		Details:          copyDetails(req.Details),
	}
	if req.Shares > 0 {
		o.RequestedShares = req.Shares
	}

	if req.CurrentShares <= 0 {
		o.Status = domain.OrderStatusNoSharesToSell
		return o
	}

	sellable := req.CurrentShares
	if req.Shares > 0 && req.Shares < sellable {
		sellable = req.Shares
	}
	o.Shares = sellable

	price := decimal.NewFromFloat(req.Price)
	balance := decimal.NewFromFloat(req.Balance)
	commission := decimal.NewFromFloat(req.Commission)

	// Commission is added to the proceeds in the simulated path.
	proceeds := price.Mul(decimal.NewFromInt(int64(sellable))).Add(commission)

	if commission.GreaterThan(balance) {
		o.Status = domain.OrderStatusNotEnoughFunds
		o.Details = withDetail(o.Details, "rejected", fmt.Sprintf("commission=%s balance=%s", commission.StringFixed(2), balance.StringFixed(2)))
		return o
	}

	o.Status = domain.OrderStatusFilled
	if req.AutoFill {
		o.ResultingShares = req.CurrentShares - sellable
		o.ResultingBalance = money(balance.Add(proceeds))
	}
	return o
}

// MidPrice returns the midpoint between bid and ask.
func MidPrice(bid, ask float64) float64 {
	return money(decimal.NewFromFloat(bid).Add(decimal.NewFromFloat(ask)).Div(decimal.NewFromInt(2)))
}

func defaultShares(n int) int {
	if n <= 0 {
		return DefaultBacktestShares
	}
	return n
}

// money rounds to cents and converts back to float64.
func money(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

func copyDetails(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func withDetail(m map[string]string, k, v string) map[string]string {
	if m == nil {
		m = make(map[string]string, 1)
	}
	m[k] = v
	return m
}
