// Package main Co-host license server
//
// @title           Co-host license server API
// @version         1.0
// @description     Лицензии, кредиты, демо и оплата пакетов для co-host агента.
// @BasePath  /
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/cohost-credits/internal/app/licenseserver"
	"github.com/magabrotheeeer/cohost-credits/internal/config"
	"github.com/magabrotheeeer/cohost-credits/internal/lib/logger"
	"github.com/magabrotheeeer/cohost-credits/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env)

	log.Info("starting license-server", slog.String("env", cfg.Env))
	log.Debug("config loaded", slog.String("config", cfg.String()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := licenseserver.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize app", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("app stopped with error", sl.Err(err))
		os.Exit(1)
	}

	log.Info("license-server stopped gracefully")
}
