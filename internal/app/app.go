// Package app wires configuration into stores, feeds, strategies and the
// backtest service shared by the stockbt binaries.
package app

import (
	"fmt"
	"os"
	"path/filepath"

	"stockbt/internal/api"
	"stockbt/internal/config"
	"stockbt/internal/domain"
	"stockbt/internal/feed"
	"stockbt/internal/store"
	"stockbt/internal/strategy"
	"stockbt/internal/strategy/builtins"
	"stockbt/internal/util"
)

// App holds the long-lived components built from a Config.
type App struct {
	Config   *config.Config
	Bars     *store.ParquetStore
	Results  *store.SQLiteStore
	Feed     feed.Feed
	Registry *strategy.Registry
	Service  *api.Service
}

// New builds every component from cfg. Close releases the result store.
func New(cfg *config.Config) (*App, error) {
	bars := NewStore(cfg)

	f, err := NewFeed(cfg, bars)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.Storage.SQLitePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("app.New: create sqlite dir: %w", err)
		}
	}
	results, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, err
	}

	reg := NewRegistry()
	svc := api.NewService(results, reg, f, cfg.Backtest, api.WithHistoryWriter(bars))

	return &App{
		Config:   cfg,
		Bars:     bars,
		Results:  results,
		Feed:     f,
		Registry: reg,
		Service:  svc,
	}, nil
}

// Close releases the resources held by the app.
func (a *App) Close() error {
	if a.Results == nil {
		return nil
	}
	return a.Results.Close()
}

// NewStore returns the Parquet store rooted at the configured data dir.
func NewStore(cfg *config.Config) *store.ParquetStore {
	return store.NewParquetStore(cfg.Storage.DataDir)
}

// NewRegistry returns a registry holding every built-in strategy.
func NewRegistry() *strategy.Registry {
	reg := strategy.NewRegistry()
	builtins.Register(reg)
	return reg
}

// NewFeed builds the market data feed selected by cfg.Feed.Source. Both
// sources serve the daily and the minute dataset.
func NewFeed(cfg *config.Config, bars feed.BarReader) (feed.Feed, error) {
	switch cfg.Feed.Source {
	case "parquet", "":
		daily, err := feed.NewParquetSource(bars, domain.DatasetDaily, cfg.Storage.Market, cfg.Feed.Lookback)
		if err != nil {
			return nil, err
		}
		minute, err := feed.NewParquetSource(bars, domain.DatasetMinute, cfg.Storage.Market, 0)
		if err != nil {
			return nil, err
		}
		return feed.NewComposite(daily, minute), nil

	case "alpaca":
		if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
			return nil, fmt.Errorf("app.NewFeed: alpaca source requires api_key and api_secret")
		}
		acfg := feed.AlpacaConfig{
			APIKey:    cfg.Alpaca.APIKey,
			APISecret: cfg.Alpaca.APISecret,
			DataURL:   cfg.Alpaca.DataURL,
			Feed:      cfg.Alpaca.Feed,
			Retries:   cfg.Feed.Retries,
			Backoff:   cfg.Feed.Backoff(),
		}
		client := feed.NewAlpacaClient(acfg)
		limiter := util.NewRateLimiter(cfg.Feed.RateLimitPerMin)
		daily, err := feed.NewAlpacaSource(client, domain.DatasetDaily, acfg, limiter)
		if err != nil {
			return nil, err
		}
		minute, err := feed.NewAlpacaSource(client, domain.DatasetMinute, acfg, limiter)
		if err != nil {
			return nil, err
		}
		return feed.NewComposite(daily, minute), nil

	default:
		return nil, fmt.Errorf("app.NewFeed: unknown feed source %q", cfg.Feed.Source)
	}
}
