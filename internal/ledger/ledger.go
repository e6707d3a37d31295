// Package ledger keeps the per-ticker share counts and order audit trail of
// a single backtest run. A Ledger is owned by exactly one run and is not safe
// for concurrent use.
package ledger

import (
	"sort"

	"stockbt/internal/domain"
)

// Ledger records positions keyed by ticker.
type Ledger struct {
	positions map[string]*domain.Position
	order     []string // tickers in first-seen order
	buys      []domain.Order
	sells     []domain.Order
}

// New creates an empty Ledger.
func New() *Ledger {
	return &Ledger{
		positions: make(map[string]*domain.Position),
	}
}

// Shares returns the shares currently owned for ticker (zero when unseen).
func (l *Ledger) Shares(ticker string) int {
	if p, ok := l.positions[ticker]; ok {
		return p.SharesOwned
	}
	return 0
}

// Apply records an order attempt. Every attempt is appended to the
// position's buys or sells for audit; only FILLED orders change the share
// count.
func (l *Ledger) Apply(o domain.Order) {
	if o.Side != domain.OrderSideBuy && o.Side != domain.OrderSideSell {
		return
	}
	p := l.position(o.Ticker)
	if o.Side == domain.OrderSideBuy {
		p.Buys = append(p.Buys, o)
		l.buys = append(l.buys, o)
	} else {
		p.Sells = append(p.Sells, o)
		l.sells = append(l.sells, o)
	}
	if o.Filled() && o.ResultingShares >= 0 {
		p.SharesOwned = o.ResultingShares
	}
}

// Position returns a copy of the position for ticker.
func (l *Ledger) Position(ticker string) (domain.Position, bool) {
	p, ok := l.positions[ticker]
	if !ok {
		return domain.Position{}, false
	}
	return p.Clone(), true
}

// Positions returns a deep copy of every position keyed by ticker.
func (l *Ledger) Positions() map[string]domain.Position {
	out := make(map[string]domain.Position, len(l.positions))
	for ticker, p := range l.positions {
		out[ticker] = p.Clone()
	}
	return out
}

// Tickers returns the tickers with a position, in first-seen order.
func (l *Ledger) Tickers() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Holdings returns the share count of every position keyed by ticker.
func (l *Ledger) Holdings() map[string]int {
	out := make(map[string]int, len(l.positions))
	for ticker, p := range l.positions {
		out[ticker] = p.SharesOwned
	}
	return out
}

// OpenTickers returns the sorted tickers that still hold shares.
func (l *Ledger) OpenTickers() []string {
	var out []string
	for ticker, p := range l.positions {
		if p.SharesOwned > 0 {
			out = append(out, ticker)
		}
	}
	sort.Strings(out)
	return out
}

// Buys returns every buy attempt in the order it was applied.
func (l *Ledger) Buys() []domain.Order {
	out := make([]domain.Order, len(l.buys))
	copy(out, l.buys)
	return out
}

// Sells returns every sell attempt in the order it was applied.
func (l *Ledger) Sells() []domain.Order {
	out := make([]domain.Order, len(l.sells))
	copy(out, l.sells)
	return out
}

// NumBuys returns the number of buy attempts applied so far.
func (l *Ledger) NumBuys() int { return len(l.buys) }

// NumSells returns the number of sell attempts applied so far.
func (l *Ledger) NumSells() int { return len(l.sells) }

func (l *Ledger) position(ticker string) *domain.Position {
	p, ok := l.positions[ticker]
	if !ok {
		p = &domain.Position{Ticker: ticker}
		l.positions[ticker] = p
		l.order = append(l.order, ticker)
	}
	return p
}
