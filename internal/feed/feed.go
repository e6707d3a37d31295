// Package feed assembles market-data snapshots for the replay driver. A
// snapshot is built from independent dataset sources; a source that fails
// only drops its own dataset.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"stockbt/internal/domain"
	"stockbt/internal/util"
)

// ErrNoData is returned by a source that has nothing for the requested
// ticker and date. It is not logged as a failure.
var ErrNoData = errors.New("feed: no data")

// FetchError describes a failed dataset fetch.
type FetchError struct {
	Dataset string
	Ticker  string
	Date    string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s for %s on %s: %v", e.Dataset, e.Ticker, e.Date, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Feed produces the snapshot of one ticker on one date.
type Feed interface {
	Snapshot(ctx context.Context, ticker string, date time.Time, freq domain.Frequency) (domain.Snapshot, error)
}

// Source provides a single named dataset.
type Source interface {
	// Dataset returns the name of the table this source fills.
	Dataset() string

	// Fetch returns the table for ticker on date, or ErrNoData.
	Fetch(ctx context.Context, ticker string, date time.Time, freq domain.Frequency) (domain.Table, error)
}

// Compile-time interface check.
var _ Feed = (*Composite)(nil)

// Composite builds snapshots by querying every source in order.
type Composite struct {
	sources []Source
	log     *slog.Logger
}

// NewComposite creates a Composite over sources. Later sources override
// earlier ones that fill the same dataset.
func NewComposite(sources ...Source) *Composite {
	return &Composite{
		sources: sources,
		log:     slog.Default().With("component", "feed"),
	}
}

// Snapshot fetches every dataset for ticker on date. Dataset failures are
// logged and leave the dataset absent; only context cancellation is
// returned as an error.
func (c *Composite) Snapshot(ctx context.Context, ticker string, date time.Time, freq domain.Frequency) (domain.Snapshot, error) {
	snap := domain.NewSnapshot(ticker, date, nil)
	for _, src := range c.sources {
		if err := ctx.Err(); err != nil {
			return domain.Snapshot{}, err
		}
		table, err := src.Fetch(ctx, ticker, date, freq)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return domain.Snapshot{}, ctxErr
			}
			if errors.Is(err, ErrNoData) {
				continue
			}
			fe := &FetchError{Dataset: src.Dataset(), Ticker: ticker, Date: snap.Date, Err: err}
			c.log.Warn("dataset fetch failed", "dataset", fe.Dataset, "ticker", ticker, "date", fe.Date, "error", err)
			continue
		}
		snap.Set(src.Dataset(), table)
	}
	return snap, nil
}

// Nodes lists, per ticker, the ascending snapshot nodes of every date the
// driver would visit in [start, end].
func Nodes(ctx context.Context, f Feed, tickers []string, start, end time.Time, freq domain.Frequency) (map[string][]domain.Node, error) {
	dates := util.TradingDates(start, end, freq)
	out := make(map[string][]domain.Node, len(tickers))
	for _, ticker := range tickers {
		nodes := make([]domain.Node, 0, len(dates))
		for _, d := range dates {
			snap, err := f.Snapshot(ctx, ticker, d, freq)
			if err != nil {
				return nil, fmt.Errorf("feed.Nodes: %s %s: %w", ticker, d.Format(domain.DateLayout), err)
			}
			nodes = append(nodes, snap.Node())
		}
		out[ticker] = nodes
	}
	return out, nil
}
