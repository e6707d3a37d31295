package gather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"golang.org/x/sync/errgroup"

	"stockbt/internal/domain"
	"stockbt/internal/store"
	"stockbt/internal/util"
)

// ---------------------------------------------------------------------------
// Compile-time interface checks
// ---------------------------------------------------------------------------

var _ Gatherer = (*BarGatherer)(nil)

// MultiBarsClient is the subset of the Alpaca market-data client used by the
// gatherer.
type MultiBarsClient interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

// BarWriter is where gathered bars are written.
type BarWriter interface {
	WriteBarsForMarket(bars []domain.Bar, market string) error
	store.MinuteBarStore
}

// BarGathererConfig controls one gathering job.
type BarGathererConfig struct {
	Tickers    []string
	Range      DateRange
	Frequency  domain.Frequency
	Market     string
	Feed       string
	BatchSize  int // symbols per API call
	MaxWorkers int
}

// ---------------------------------------------------------------------------
// BarGatherer - daily or minute OHLCV bars from the Alpaca API.
// ---------------------------------------------------------------------------

// BarGatherer fetches bars for a fixed ticker list in batches and writes
// them to the Parquet store. Daily bars are fetched for the whole range in
// one request per batch; minute bars one day at a time.
type BarGatherer struct {
	client  MultiBarsClient
	store   BarWriter
	cfg     BarGathererConfig
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewBarGatherer creates a BarGatherer writing to s.
func NewBarGatherer(client MultiBarsClient, s BarWriter, cfg BarGathererConfig, limiter *util.RateLimiter) *BarGatherer {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 4
	}
	if cfg.Frequency == "" {
		cfg.Frequency = domain.FrequencyDaily
	}
	if cfg.Market == "" {
		cfg.Market = store.DefaultMarket
	}
	if cfg.Feed == "" {
		cfg.Feed = "sip"
	}
	tickers := make([]string, 0, len(cfg.Tickers))
	for _, t := range cfg.Tickers {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			tickers = append(tickers, t)
		}
	}
	cfg.Tickers = tickers

	g := &BarGatherer{
		client:  client,
		store:   s,
		cfg:     cfg,
		limiter: limiter,
	}
	g.log = slog.Default().With("gatherer", g.Name())
	return g
}

// Name returns the gatherer identifier.
func (g *BarGatherer) Name() string { return "alpaca-" + string(g.cfg.Frequency) }

// Stats is the outcome of a gathering run.
type Stats struct {
	Requests int64
	Bars     int64
	Empty    int64 // symbol batches that returned nothing
}

// Run fetches every batch and writes the bars. The first fetch or write
// error cancels the remaining work.
func (g *BarGatherer) Run(ctx context.Context) error {
	_, err := g.Gather(ctx)
	return err
}

// Gather is Run with statistics.
func (g *BarGatherer) Gather(ctx context.Context) (Stats, error) {
	if len(g.cfg.Tickers) == 0 {
		return Stats{}, fmt.Errorf("gather: no tickers")
	}
	if g.cfg.Range.End.Before(g.cfg.Range.Start) {
		return Stats{}, fmt.Errorf("gather: end %s before start %s",
			g.cfg.Range.End.Format(domain.DateLayout), g.cfg.Range.Start.Format(domain.DateLayout))
	}

	var batches [][]string
	for i := 0; i < len(g.cfg.Tickers); i += g.cfg.BatchSize {
		batches = append(batches, g.cfg.Tickers[i:min(i+g.cfg.BatchSize, len(g.cfg.Tickers))])
	}

	var windows []DateRange
	if g.cfg.Frequency == domain.FrequencyMinute {
		for _, d := range g.cfg.Range.Days() {
			if util.IsWeekend(d) {
				continue
			}
			windows = append(windows, DateRange{Start: d, End: d.Add(24*time.Hour - time.Nanosecond)})
		}
	} else {
		windows = []DateRange{{Start: g.cfg.Range.Start, End: g.cfg.Range.End.Add(24*time.Hour - time.Nanosecond)}}
	}

	g.log.Info("starting",
		"tickers", len(g.cfg.Tickers),
		"batches", len(batches),
		"windows", len(windows),
		"start", g.cfg.Range.Start.Format(domain.DateLayout),
		"end", g.cfg.Range.End.Format(domain.DateLayout),
	)

	var (
		requests, nbars, empty atomic.Int64
		runStart               = time.Now()
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.MaxWorkers)
	for _, batch := range batches {
		for _, w := range windows {
			eg.Go(func() error {
				if err := g.limiter.Wait(ctx); err != nil {
					return err
				}
				requests.Add(1)
				bars, err := g.fetch(batch, w)
				if err != nil {
					return fmt.Errorf("fetching %d symbols %s: %w", len(batch), w.Start.Format(domain.DateLayout), err)
				}
				if len(bars) == 0 {
					empty.Add(1)
					return nil
				}
				if err := g.write(ctx, bars); err != nil {
					return err
				}
				nbars.Add(int64(len(bars)))
				return nil
			})
		}
	}
	err := eg.Wait()

	stats := Stats{Requests: requests.Load(), Bars: nbars.Load(), Empty: empty.Load()}
	if err != nil {
		return stats, err
	}
	g.log.Info("complete",
		"requests", stats.Requests,
		"bars", stats.Bars,
		"empty", stats.Empty,
		"elapsed", time.Since(runStart).Round(time.Millisecond),
	)
	return stats, nil
}

func (g *BarGatherer) fetch(symbols []string, w DateRange) ([]domain.Bar, error) {
	tf := marketdata.OneDay
	if g.cfg.Frequency == domain.FrequencyMinute {
		tf = marketdata.OneMin
	}
	multiBars, err := g.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame: tf,
		Start:     w.Start,
		End:       w.End,
		Feed:      marketdata.Feed(g.cfg.Feed),
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Symbol:     strings.ToUpper(symbol),
				Timestamp:  ab.Timestamp,
				Open:       ab.Open,
				High:       ab.High,
				Low:        ab.Low,
				Close:      ab.Close,
				Volume:     int64(ab.Volume),
				TradeCount: int64(ab.TradeCount),
				VWAP:       ab.VWAP,
			})
		}
	}
	return bars, nil
}

func (g *BarGatherer) write(ctx context.Context, bars []domain.Bar) error {
	if g.cfg.Frequency == domain.FrequencyMinute {
		if err := g.store.WriteMinuteBars(ctx, g.cfg.Market, bars); err != nil {
			return fmt.Errorf("writing minute bars: %w", err)
		}
		return nil
	}
	if err := g.store.WriteBarsForMarket(bars, g.cfg.Market); err != nil {
		return fmt.Errorf("writing bars: %w", err)
	}
	return nil
}
