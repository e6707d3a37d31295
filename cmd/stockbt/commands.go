package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"stockbt/internal/api"
	"stockbt/internal/app"
	"stockbt/internal/config"
	"stockbt/internal/domain"
	"stockbt/internal/engine"
	"stockbt/internal/feed"
	"stockbt/internal/report"
	"stockbt/internal/util"
)

var backtestFlags = []cli.Flag{
	&cli.StringFlag{Name: "strategy", Aliases: []string{"s"}, Usage: "registered strategy name"},
	&cli.StringSliceFlag{Name: "param", Aliases: []string{"p"}, Usage: "strategy parameter as key=value"},
	&cli.StringFlag{Name: "tickers", Aliases: []string{"t"}, Usage: "comma separated tickers"},
	&cli.StringFlag{Name: "start", Usage: "first date, 2006-01-02"},
	&cli.StringFlag{Name: "end", Usage: "last date, 2006-01-02 (default: latest finished trading day)"},
	&cli.StringFlag{Name: "frequency", Usage: "daily or minute"},
	&cli.Float64Flag{Name: "balance", Usage: "starting cash"},
	&cli.Float64Flag{Name: "commission", Usage: "commission per order"},
	&cli.IntFlag{Name: "shares", Usage: "default shares per buy"},
	&cli.BoolFlag{Name: "no-auto-fill", Usage: "record fills without moving cash or shares"},
	&cli.BoolFlag{Name: "continue-on-error", Usage: "record strategy errors instead of aborting"},
	&cli.BoolFlag{Name: "json", Usage: "print the run record as JSON"},
}

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "run one backtest and store the result",
	Flags: append([]cli.Flag{
		&cli.StringFlag{Name: "name", Usage: "run name (default: generated)"},
	}, backtestFlags...),
	Action: runBacktest,
}

var compareCommand = &cli.Command{
	Name:      "compare",
	Usage:     "run several strategies over the same data concurrently",
	ArgsUsage: "<strategy> [strategy...]",
	Flags:     backtestFlags,
	Action:    compareStrategies,
}

var nodesCommand = &cli.Command{
	Name:  "nodes",
	Usage: "print the feed snapshots of each ticker as JSON",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "tickers", Aliases: []string{"t"}, Usage: "comma separated tickers"},
		&cli.StringFlag{Name: "start", Usage: "first date, 2006-01-02"},
		&cli.StringFlag{Name: "end", Usage: "last date, 2006-01-02"},
		&cli.StringFlag{Name: "frequency", Usage: "daily or minute"},
	},
	Action: printNodes,
}

var listCommand = &cli.Command{
	Name:  "list",
	Usage: "list stored backtests",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "limit", Value: 20, Usage: "maximum number of runs"},
	},
	Action: listRuns,
}

var showCommand = &cli.Command{
	Name:      "show",
	Usage:     "print a stored backtest",
	ArgsUsage: "<id>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "json", Usage: "print the run record as JSON"},
	},
	Action: showRun,
}

var strategiesCommand = &cli.Command{
	Name:  "strategies",
	Usage: "list registered strategies",
	Action: func(c *cli.Context) error {
		for _, name := range app.NewRegistry().List() {
			fmt.Println(name)
		}
		return nil
	},
}

// runRequest builds a request from the backtest flags. Unset flags keep the
// configured defaults.
func runRequest(c *cli.Context, cfg *config.Config) (api.RunRequest, error) {
	req := api.RunRequest{
		Name:      c.String("name"),
		Strategy:  c.String("strategy"),
		Start:     c.String("start"),
		End:       c.String("end"),
		Frequency: c.String("frequency"),
	}
	if v := c.String("tickers"); v != "" {
		req.Tickers = strings.Split(v, ",")
	}
	if params := c.StringSlice("param"); len(params) > 0 {
		req.Params = make(map[string]string, len(params))
		for _, p := range params {
			k, v, ok := strings.Cut(p, "=")
			if !ok {
				return req, fmt.Errorf("invalid --param %q, want key=value", p)
			}
			req.Params[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	if c.IsSet("balance") {
		v := c.Float64("balance")
		req.Balance = &v
	}
	if c.IsSet("commission") {
		v := c.Float64("commission")
		req.Commission = &v
	}
	if c.IsSet("shares") {
		v := c.Int("shares")
		req.DefaultShares = &v
	}
	if c.Bool("no-auto-fill") {
		f := false
		req.AutoFill = &f
	}
	if c.Bool("continue-on-error") {
		f := false
		req.RaiseOnErr = &f
	}
	if req.End == "" && cfg.Backtest.End == "" {
		end, err := latestTradingDay(cfg)
		if err != nil {
			return req, err
		}
		req.End = end
	}
	return req, nil
}

// latestTradingDay asks the Alpaca calendar for the last completed session.
func latestTradingDay(cfg *config.Config) (string, error) {
	if cfg.Alpaca.APIKey == "" {
		return "", fmt.Errorf("--end is required without Alpaca credentials")
	}
	client := feed.NewCalendarClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL)
	day, err := feed.LatestFinishedTradingDay(client, time.Now())
	if err != nil {
		return "", fmt.Errorf("resolving end date: %w", err)
	}
	return day.Format(domain.DateLayout), nil
}

func startBalance(req api.RunRequest, cfg *config.Config) float64 {
	if req.Balance != nil {
		return *req.Balance
	}
	return cfg.Backtest.Balance
}

func runBacktest(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	req, err := runRequest(c, cfg)
	if err != nil {
		return err
	}

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.Service.Run(c.Context, req)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return printJSON(rec)
	}
	fmt.Printf("run id: %s\n", rec.ID)
	report.NewConsole(os.Stdout).Report(rec.Report, startBalance(req, cfg))
	return nil
}

func compareStrategies(c *cli.Context) error {
	names := c.Args().Slice()
	if len(names) == 0 {
		return fmt.Errorf("at least one strategy is required")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	req, err := runRequest(c, cfg)
	if err != nil {
		return err
	}

	f, err := app.NewFeed(cfg, app.NewStore(cfg))
	if err != nil {
		return err
	}
	reg := app.NewRegistry()

	jobs := make([]engine.Job, 0, len(names))
	for _, name := range names {
		req.Strategy = name
		ecfg, strat, err := api.Prepare(reg, cfg.Backtest, req)
		if err != nil {
			return err
		}
		ecfg.Name = name
		jobs = append(jobs, engine.Job{Config: ecfg, Strategy: strat, Feed: f})
	}

	reports := engine.RunAll(c.Context, jobs, cfg.Backtest.Parallelism)
	if c.Bool("json") {
		return printJSON(reports)
	}
	console := report.NewConsole(os.Stdout)
	for _, rep := range reports {
		console.Report(rep, startBalance(req, cfg))
	}
	return nil
}

func printNodes(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	bt := cfg.Backtest
	if v := c.String("tickers"); v != "" {
		bt.Tickers = strings.Split(v, ",")
	}
	if v := c.String("start"); v != "" {
		bt.Start = v
	}
	if v := c.String("end"); v != "" {
		bt.End = v
	}
	if v := c.String("frequency"); v != "" {
		bt.Frequency = v
	}
	start, err := util.ParseDate(bt.Start)
	if err != nil {
		return err
	}
	end, err := util.ParseDate(bt.End)
	if err != nil {
		return err
	}

	f, err := app.NewFeed(cfg, app.NewStore(cfg))
	if err != nil {
		return err
	}
	nodes, err := feed.Nodes(c.Context, f, bt.Tickers, start, end, domain.Frequency(bt.Frequency))
	if err != nil {
		return err
	}
	return printJSON(nodes)
}

func listRuns(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	runs, err := a.Service.List(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}
	report.NewConsole(os.Stdout).Runs(runs)
	return nil
}

func showRun(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("run id is required")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.Service.Get(c.Context, id)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return printJSON(rec)
	}
	balance := cfg.Backtest.Balance
	if h := rec.Report.Result.History; len(h) > 0 {
		balance = h[0].PrevBalance
	}
	report.NewConsole(os.Stdout).Report(rec.Report, balance)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
