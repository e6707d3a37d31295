package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"stockbt/internal/api"
	"stockbt/internal/app"
	"stockbt/internal/config"
	"stockbt/internal/util"
)

func main() {
	cfgPath := "config/stockbt.yaml"
	if p := os.Getenv("STOCKBT_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)
	util.SetDefault(logger)

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("initializing: %v", err)
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("stockbt-server starting",
		"http", cfg.Server.HTTPAddr(),
		"grpc", cfg.Server.GRPCAddr(),
		"feed", cfg.Feed.Source,
		"strategies", a.Registry.List(),
	)
	if err := api.NewServer(cfg.Server, a.Service, logger).ListenAndServe(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("stockbt-server stopped")
}
