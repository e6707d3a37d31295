package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"stockbt/internal/domain"
	"stockbt/internal/util"
)

// Compile-time interface check.
var _ Source = (*AlpacaSource)(nil)

// BarsClient is the subset of the Alpaca market-data client used here.
type BarsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// AlpacaConfig configures an AlpacaSource.
type AlpacaConfig struct {
	APIKey    string
	APISecret string
	DataURL   string
	Feed      string // "sip" or "iex"
	Retries   int
	Backoff   time.Duration
}

// AlpacaSource serves daily or minute bars from the Alpaca market-data API.
// Requests share the given rate limiter and are retried with backoff.
type AlpacaSource struct {
	client  BarsClient
	dataset string
	feed    string
	limiter *util.RateLimiter
	retries int
	backoff time.Duration
	log     *slog.Logger
}

// NewAlpacaClient creates a market-data client from cfg.
func NewAlpacaClient(cfg AlpacaConfig) *marketdata.Client {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.DataURL != "" {
		opts.BaseURL = cfg.DataURL
	}
	return marketdata.NewClient(opts)
}

// NewAlpacaSource creates a source for dataset (daily or minute) on client.
func NewAlpacaSource(client BarsClient, dataset string, cfg AlpacaConfig, limiter *util.RateLimiter) (*AlpacaSource, error) {
	if dataset != domain.DatasetDaily && dataset != domain.DatasetMinute {
		return nil, fmt.Errorf("alpaca source: unsupported dataset %q", dataset)
	}
	feed := cfg.Feed
	if feed == "" {
		feed = "sip"
	}
	retries := cfg.Retries
	if retries < 1 {
		retries = 1
	}
	return &AlpacaSource{
		client:  client,
		dataset: dataset,
		feed:    feed,
		limiter: limiter,
		retries: retries,
		backoff: cfg.Backoff,
		log:     slog.Default().With("source", "alpaca-"+dataset),
	}, nil
}

// Dataset returns the dataset name.
func (a *AlpacaSource) Dataset() string { return a.dataset }

// Fetch requests the bars of ticker on date. Minute bars are only served
// for the minute frequency.
func (a *AlpacaSource) Fetch(ctx context.Context, ticker string, date time.Time, freq domain.Frequency) (domain.Table, error) {
	req := marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     date,
		End:       date.Add(24*time.Hour - time.Second),
		Feed:      marketdata.Feed(a.feed),
	}
	layout := domain.DateLayout
	if a.dataset == domain.DatasetMinute {
		if freq != domain.FrequencyMinute {
			return nil, ErrNoData
		}
		req.TimeFrame = marketdata.OneMin
		layout = domain.MinuteLayout
	}

	var alpacaBars []marketdata.Bar
	err := util.Retry(ctx, a.retries, a.backoff, func() error {
		if err := a.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		var err error
		alpacaBars, err = a.client.GetBars(ticker, req)
		if err != nil {
			a.log.Debug("GetBars failed", "ticker", ticker, "date", date.Format(domain.DateLayout), "error", err)
			return fmt.Errorf("GetBars: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(alpacaBars) == 0 {
		return nil, ErrNoData
	}

	bars := make([]domain.Bar, 0, len(alpacaBars))
	for _, ab := range alpacaBars {
		bars = append(bars, domain.Bar{
			Symbol:     strings.ToUpper(ticker),
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
	return domain.BarsToTable(bars, layout), nil
}
