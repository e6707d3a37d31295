package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"stockbt/internal/config"
	"stockbt/internal/util"
)

const version = "0.1.0"

const defaultConfigPath = "config/stockbt.yaml"

func main() {
	app := cli.NewApp()
	app.Name = "stockbt"
	app.Version = version
	app.Usage = "replay historical market data snapshots through trading strategies"
	app.EnableBashCompletion = true
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   defaultConfigPath,
			Usage:   "path to the YAML configuration file",
			EnvVars: []string{"STOCKBT_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "override the configured log level",
		},
	}
	app.Commands = []*cli.Command{
		runCommand,
		compareCommand,
		nodesCommand,
		listCommand,
		showCommand,
		strategiesCommand,
		gatherCommand,
		serveCommand,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads the configuration file, falling back to environment and
// defaults when the default path does not exist, and installs the logger.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || c.IsSet("config") {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = config.Default()
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stderr))
	return cfg, nil
}
