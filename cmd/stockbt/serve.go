package main

import (
	"log/slog"

	"github.com/urfave/cli/v2"

	"stockbt/internal/api"
	"stockbt/internal/app"
)

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "serve the backtest HTTP and gRPC API",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "port", Usage: "override the HTTP port"},
		&cli.IntFlag{Name: "grpc-port", Usage: "override the gRPC port (0 disables gRPC)"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		if c.IsSet("port") {
			cfg.Server.Port = c.Int("port")
		}
		if c.IsSet("grpc-port") {
			cfg.Server.GRPCPort = c.Int("grpc-port")
		}

		a, err := app.New(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		return api.NewServer(cfg.Server, a.Service, slog.Default()).ListenAndServe(c.Context)
	},
}
