package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/cohost-credits/internal/app/agent"
	"github.com/magabrotheeeer/cohost-credits/internal/config"
	"github.com/magabrotheeeer/cohost-credits/internal/lib/logger"
	"github.com/magabrotheeeer/cohost-credits/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env)

	log.Info("starting cohost-agent",
		slog.String("env", cfg.Env),
		slog.Bool("testing_mode", cfg.TestingMode),
		slog.Bool("production_mode", cfg.Credit.ProductionMode))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := agent.New(cfg, log)
	if err != nil {
		log.Error("failed to initialize agent", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("agent stopped with error", sl.Err(err))
		os.Exit(1)
	}

	log.Info("cohost-agent stopped gracefully")
}
