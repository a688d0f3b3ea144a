// Command server runs the ScribeDrop web front end configured from the
// environment.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dharsanguruparan/ScribeDrop/internal/bootstrap"
	"github.com/dharsanguruparan/ScribeDrop/internal/config"
	"github.com/dharsanguruparan/ScribeDrop/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(logging.Options{}).Fatal("load config", "err", err)
	}
	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	app, err := bootstrap.Build(cfg, logger)
	if err != nil {
		logger.Fatal("init", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Server.Serve(ctx); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
