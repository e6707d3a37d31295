// Package domain defines the core types shared across the backtesting
// engine: market-data snapshots, orders, positions, history entries and the
// aggregated run result.
package domain

import (
	"time"
)

// DateLayout is the sortable key format used for snapshot dates.
const DateLayout = "2006-01-02"

// MinuteLayout is the key format used for intraday (minute) timestamps.
const MinuteLayout = "2006-01-02 15:04:05"

// ---------------------------------------------------------------------------
// Enums
// ---------------------------------------------------------------------------

// OrderSide is the direction of an order attempt.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus is the outcome of a single order attempt. It is assigned
// exactly once when the order is built.
type OrderStatus string

const (
	OrderStatusFilled         OrderStatus = "FILLED"
	OrderStatusNotEnoughFunds OrderStatus = "NOT_ENOUGH_FUNDS"
	OrderStatusNoSharesToSell OrderStatus = "NO_SHARES_TO_SELL"
)

// Valid reports whether s is one of the known order statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusFilled, OrderStatusNotEnoughFunds, OrderStatusNoSharesToSell:
		return true
	}
	return false
}

// TradeStatus annotates a history entry with the profitability of the
// currently held shares or of the whole algorithm.
type TradeStatus string

const (
	TradeStatusProfitable    TradeStatus = "PROFITABLE"
	TradeStatusNotProfitable TradeStatus = "NOT_PROFITABLE"
	TradeStatusNoShares      TradeStatus = "NO_SHARES_TO_SELL"
	TradeStatusError         TradeStatus = "ERROR"
)

// RunStatus is the top-level outcome of a backtest run.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusErr     RunStatus = "ERR"
	RunStatusEmpty   RunStatus = "EMPTY"
)

// Frequency controls which dates the replay driver visits.
type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyMinute Frequency = "minute"
)

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Bar is a single OHLCV record.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// OHLCV is the subset of a bar that strategies and history entries read.
type OHLCV struct {
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Open   float64 `json:"open"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// ---------------------------------------------------------------------------
// Orders and positions
// ---------------------------------------------------------------------------

// Order is the immutable record of one buy or sell attempt.
type Order struct {
	ID               string            `json:"id"`
	Ticker           string            `json:"ticker"`
	Side             OrderSide         `json:"side"`
	RequestedShares  int               `json:"requested_shares,omitempty"`
	Shares           int               `json:"shares"`
	Price            float64           `json:"price"`
	Commission       float64           `json:"commission"`
	PrevBalance      float64           `json:"prev_balance"`
	PrevShares       int               `json:"prev_shares"`
	ResultingBalance float64           `json:"balance"`
	ResultingShares  int               `json:"shares_owned"`
	Status           OrderStatus       `json:"status"`
	Timestamp        string            `json:"date"`
	Reason           string            `json:"reason,omitempty"`
	Details          map[string]string `json:"details,omitempty"`
}

// Filled reports whether the order mutated (or would have mutated) the ledger.
func (o Order) Filled() bool {
	return o.Status == OrderStatusFilled
}

// OrderRequest is a strategy's request to buy or sell a ticker at a price.
type OrderRequest struct {
	Ticker  string
	Side    OrderSide
	Shares  int // 0 means "let the order engine decide"
	Price   float64
	Date    string
	Reason  string
	Details map[string]string
}

// Position is the per-ticker running share count and the orders that
// produced it.
type Position struct {
	Ticker      string  `json:"ticker"`
	SharesOwned int     `json:"shares_owned"`
	Buys        []Order `json:"buys"`
	Sells       []Order `json:"sells"`
}

// Clone returns a deep copy of p.
func (p Position) Clone() Position {
	return Position{
		Ticker:      p.Ticker,
		SharesOwned: p.SharesOwned,
		Buys:        cloneOrders(p.Buys),
		Sells:       cloneOrders(p.Sells),
	}
}

func cloneOrders(in []Order) []Order {
	if in == nil {
		return nil
	}
	out := make([]Order, len(in))
	copy(out, in)
	return out
}

// AccountInfo summarises the simulated cash account.
type AccountInfo struct {
	Balance       float64
	StartBalance  float64
	Commission    float64
	OpenPositions int
	TotalBuys     int
	TotalSells    int
}

// ---------------------------------------------------------------------------
// History and result
// ---------------------------------------------------------------------------

// HistoryEntry is the immutable per-snapshot record of the replay.
type HistoryEntry struct {
	Ticker          string      `json:"ticker"`
	Date            string      `json:"date"`
	Minute          string      `json:"minute,omitempty"`
	Balance         float64     `json:"balance"`
	SharesOwned     int         `json:"num_owned"`
	BuyTriggered    bool        `json:"buy_triggered"`
	SellTriggered   bool        `json:"sell_triggered"`
	High            float64     `json:"high"`
	Low             float64     `json:"low"`
	Open            float64     `json:"open"`
	Close           float64     `json:"close"`
	Volume          float64     `json:"volume"`
	TradeStatus     TradeStatus `json:"trade_status"`
	AlgoStatus      TradeStatus `json:"algo_status"`
	PrevBalance     float64     `json:"prev_balance"`
	PrevShares      int         `json:"prev_num_owned"`
	CumulativeBuys  int         `json:"total_buys"`
	CumulativeSells int         `json:"total_sells"`
	Err             string      `json:"err,omitempty"`
}

// Result is the materialized view of a finished (or aborted) backtest.
type Result struct {
	Name         string              `json:"name"`
	Created      time.Time           `json:"created"`
	Updated      time.Time           `json:"updated"`
	Positions    map[string]Position `json:"open_positions"`
	Buys         []Order             `json:"buys"`
	Sells        []Order             `json:"sells"`
	NumProcessed int                 `json:"num_processed"`
	History      []HistoryEntry      `json:"history"`
	Balance      float64             `json:"balance"`
	Commission   float64             `json:"commission"`
}

// RunReport is the top-level outcome of a backtest run. Result is populated
// even when the run aborted, holding whatever history was accumulated.
type RunReport struct {
	Status  RunStatus `json:"status"`
	Message string    `json:"message,omitempty"`
	Result  Result    `json:"result"`
}

// ---------------------------------------------------------------------------
// Persisted runs
// ---------------------------------------------------------------------------

// RunRecord is a stored backtest: the request parameters and the report.
type RunRecord struct {
	ID        string    `json:"id"`
	Strategy  string    `json:"strategy"`
	Tickers   []string  `json:"tickers"`
	Start     string    `json:"start"`
	End       string    `json:"end"`
	CreatedAt time.Time `json:"created_at"`
	Report    RunReport `json:"report"`
}

// RunSummary is the list view of a stored run.
type RunSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Strategy     string    `json:"strategy"`
	Status       RunStatus `json:"status"`
	NumProcessed int       `json:"num_processed"`
	Balance      float64   `json:"balance"`
	CreatedAt    time.Time `json:"created_at"`
}
