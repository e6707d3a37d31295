package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"stockbt/internal/app"
	"stockbt/internal/domain"
	"stockbt/internal/feed"
	"stockbt/internal/gather"
	"stockbt/internal/util"
)

var gatherCommand = &cli.Command{
	Name:  "gather",
	Usage: "download bars from Alpaca into the local Parquet store",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "tickers", Aliases: []string{"t"}, Usage: "comma separated tickers (default: backtest tickers)"},
		&cli.StringFlag{Name: "start", Required: true, Usage: "first date, 2006-01-02"},
		&cli.StringFlag{Name: "end", Usage: "last date, 2006-01-02 (default: latest finished trading day)"},
		&cli.StringFlag{Name: "frequency", Value: string(domain.FrequencyDaily), Usage: "daily or minute"},
		&cli.IntFlag{Name: "batch-size", Value: 100, Usage: "symbols per request"},
		&cli.IntFlag{Name: "workers", Value: 4, Usage: "concurrent requests"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
			return fmt.Errorf("gather requires Alpaca credentials")
		}

		tickers := cfg.Backtest.Tickers
		if v := c.String("tickers"); v != "" {
			tickers = strings.Split(v, ",")
		}
		start, err := util.ParseDate(c.String("start"))
		if err != nil {
			return err
		}
		endStr := c.String("end")
		if endStr == "" {
			if endStr, err = latestTradingDay(cfg); err != nil {
				return err
			}
		}
		end, err := util.ParseDate(endStr)
		if err != nil {
			return err
		}

		client := feed.NewAlpacaClient(feed.AlpacaConfig{
			APIKey:    cfg.Alpaca.APIKey,
			APISecret: cfg.Alpaca.APISecret,
			DataURL:   cfg.Alpaca.DataURL,
		})
		g := gather.NewBarGatherer(client, app.NewStore(cfg), gather.BarGathererConfig{
			Tickers:    tickers,
			Range:      gather.DateRange{Start: start, End: end},
			Frequency:  domain.Frequency(c.String("frequency")),
			Market:     cfg.Storage.Market,
			Feed:       cfg.Alpaca.Feed,
			BatchSize:  c.Int("batch-size"),
			MaxWorkers: c.Int("workers"),
		}, util.NewRateLimiter(cfg.Feed.RateLimitPerMin))

		stats, err := g.Gather(c.Context)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d requests, %d bars, %d empty batches\n", g.Name(), stats.Requests, stats.Bars, stats.Empty)
		return nil
	},
}
