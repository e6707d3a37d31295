// Package history builds the per-snapshot trading history entries of a
// backtest. Build never panics so the driver can always append exactly one
// entry per processed snapshot.
package history

import (
	"errors"
	"fmt"
	"math"

	"stockbt/internal/domain"
)

const minValidPrice = 0.01

// ErrMissingBalance is recorded when the algo status cannot be computed.
var ErrMissingBalance = errors.New("missing balance or original balance")

// Ledger is the ledger state captured for one entry.
type Ledger struct {
	SharesOwned int
	PrevBalance float64
	PrevShares  int
}

// Counters are the cumulative buy/sell attempt counts and the per-snapshot
// trigger flags.
type Counters struct {
	Buys          int
	Sells         int
	BuyTriggered  bool
	SellTriggered bool
}

// Input is everything Build needs for one entry. Balance and
// OriginalBalance are optional; a nil value yields an ERROR algo status.
type Input struct {
	Ticker          string
	Date            string
	Minute          string
	Bar             domain.OHLCV
	Ledger          Ledger
	Balance         *float64
	OriginalBalance *float64
	AlgoStartPrice  float64
	Counters        Counters
}

// Build produces the history entry for one snapshot. Any failure while
// computing the statuses is recorded in entry.Err and a best-effort entry is
// returned.
func Build(in Input) (entry domain.HistoryEntry) {
	entry = domain.HistoryEntry{
		Ticker:          in.Ticker,
		Date:            in.Date,
		Minute:          in.Minute,
		SharesOwned:     in.Ledger.SharesOwned,
		BuyTriggered:    in.Counters.BuyTriggered,
		SellTriggered:   in.Counters.SellTriggered,
		High:            in.Bar.High,
		Low:             in.Bar.Low,
		Open:            in.Bar.Open,
		Close:           in.Bar.Close,
		Volume:          in.Bar.Volume,
		PrevBalance:     in.Ledger.PrevBalance,
		PrevShares:      in.Ledger.PrevShares,
		CumulativeBuys:  in.Counters.Buys,
		CumulativeSells: in.Counters.Sells,
		TradeStatus:     domain.TradeStatusError,
		AlgoStatus:      domain.TradeStatusError,
	}
	if in.Balance != nil {
		entry.Balance = *in.Balance
	}

	defer func() {
		if r := recover(); r != nil {
			entry.Err = appendErr(entry.Err, fmt.Sprintf("building history entry: %v", r))
		}
	}()

	entry.TradeStatus = TradeStatus(in.Ledger.SharesOwned, in.Bar.Close, in.AlgoStartPrice)

	status, err := AlgoStatus(in.Balance, in.OriginalBalance)
	entry.AlgoStatus = status
	if err != nil {
		entry.Err = appendErr(entry.Err, err.Error())
	}
	return entry
}

// TradeStatus classifies the currently held shares against the price the
// algorithm started trading at.
func TradeStatus(sharesOwned int, closePrice, algoStartPrice float64) domain.TradeStatus {
	if sharesOwned < 1 {
		return domain.TradeStatusNoShares
	}
	if invalidPrice(closePrice) || invalidPrice(algoStartPrice) {
		return domain.TradeStatusError
	}
	if closePrice-algoStartPrice > 0 {
		return domain.TradeStatusProfitable
	}
	return domain.TradeStatusNotProfitable
}

// AlgoStatus classifies the current balance against the starting balance.
func AlgoStatus(balance, originalBalance *float64) (domain.TradeStatus, error) {
	if balance == nil || originalBalance == nil {
		return domain.TradeStatusError, ErrMissingBalance
	}
	if math.IsNaN(*balance) || math.IsNaN(*originalBalance) {
		return domain.TradeStatusError, fmt.Errorf("balance is NaN")
	}
	if *balance-*originalBalance > 0 {
		return domain.TradeStatusProfitable, nil
	}
	return domain.TradeStatusNotProfitable, nil
}

func invalidPrice(p float64) bool {
	return math.IsNaN(p) || p < minValidPrice
}

func appendErr(existing, msg string) string {
	if existing == "" {
		return msg
	}
	return existing + "; " + msg
}
