package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/cohost-credits/internal/app/sender"
	"github.com/magabrotheeeer/cohost-credits/internal/config"
	"github.com/magabrotheeeer/cohost-credits/internal/lib/logger"
	"github.com/magabrotheeeer/cohost-credits/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env)
	log.Info("starting notification-sender", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := sender.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize sender", sl.Err(err))
		os.Exit(1)
	}
	log.Info("success to connect to RabbitMQ")

	if err := app.Run(ctx); err != nil {
		log.Error("sender stopped with error", sl.Err(err))
		os.Exit(1)
	}

	log.Info("Notification sender shutting down gracefully")
}
