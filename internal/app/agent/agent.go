// Package agent собирает локальный агент: учёт кредитов, проверку лицензии,
// дневной лимит, фоновую синхронизацию использования и HTTP API для GUI.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/magabrotheeeer/cohost-credits/internal/config"
	"github.com/magabrotheeeer/cohost-credits/internal/http/agentapi"
	"github.com/magabrotheeeer/cohost-credits/internal/lib/hwid"
	"github.com/magabrotheeeer/cohost-credits/internal/lib/sl"
	"github.com/magabrotheeeer/cohost-credits/internal/licenseclient"
	"github.com/magabrotheeeer/cohost-credits/internal/models"
	"github.com/magabrotheeeer/cohost-credits/internal/services/credit"
	"github.com/magabrotheeeer/cohost-credits/internal/services/dailylimit"
	"github.com/magabrotheeeer/cohost-credits/internal/services/license"
	"github.com/magabrotheeeer/cohost-credits/internal/services/usagesync"
	"github.com/magabrotheeeer/cohost-credits/internal/storage/jsonstore"
	"github.com/magabrotheeeer/cohost-credits/internal/storage/outbox"
)

// App представляет приложение агента.
type App struct {
	cfg       *config.Config
	server    *http.Server
	outbox    *outbox.Outbox
	worker    *usagesync.Worker
	validator *license.Validator
	tracker   *credit.Tracker
	limit     *dailylimit.Manager
	logger    *slog.Logger
}

// New создаёт агент. Сеть на этом этапе не используется.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.agent.New"

	if err := os.MkdirAll(filepath.Dir(cfg.Paths.OutboxFile), 0o755); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ob, err := outbox.Open(cfg.Paths.OutboxFile)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	stores := jsonstore.NewStores(jsonstore.Layout{
		ConfigDir: cfg.Paths.ConfigDir,
		TempDir:   cfg.Paths.TempDir,
	}, logger)
	client := licenseclient.NewClient(cfg.LicenseServer.URL, cfg.LicenseServer.Timeout)
	hardwareID := hwid.ID(cfg.LicenseServer.HardwareID)
	loc := cfg.DailyLimit.Location()

	worker := usagesync.NewWorker(ob, client, stores.Status, cfg.UsageSync, logger)

	validator := license.NewValidator(stores, client, ob, worker, license.Options{
		TestingMode:  cfg.TestingMode,
		HardwareID:   hardwareID,
		CacheTTL:     cfg.LicenseServer.CacheTTL,
		OfflineGrace: cfg.LicenseServer.OfflineGrace,
		DemoDuration: cfg.Demo.Duration,
		DemoGrace:    cfg.Demo.Grace,
		Location:     loc,
	}, logger)

	tracker := credit.NewTracker(stores.Status, stores.Histogram, ob, worker, client, credit.Options{
		Costs:          credit.CostTableFromConfig(cfg.Credit),
		ProductionMode: cfg.Credit.ProductionMode,
		Location:       loc,
		HardwareID:     hardwareID,
		Email:          validator.CurrentEmail,
	}, logger)

	limit := dailylimit.NewManager(stores.DailyLimit, cfg.DailyLimit.MaxHours, loc, time.Now, logger)

	api := agentapi.New(logger, tracker, validator, limit, stores.Status)
	srv := &http.Server{
		Addr:         cfg.AgentHTTP.Address,
		Handler:      api.Router(),
		ReadTimeout:  cfg.AgentHTTP.Timeout,
		WriteTimeout: cfg.AgentHTTP.Timeout,
	}

	return &App{
		cfg:       cfg,
		server:    srv,
		outbox:    ob,
		worker:    worker,
		validator: validator,
		tracker:   tracker,
		limit:     limit,
		logger:    logger,
	}, nil
}

// Handler HTTP API агента.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run запускает воркер синхронизации, периодическую перепроверку лицензии и
// HTTP API. Блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := a.worker.Run(bgCtx); err != nil {
			a.logger.Error("usage sync worker stopped with error", sl.Err(err))
		}
	}()
	go func() {
		defer wg.Done()
		a.revalidateLoop(bgCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("agent API starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
		timeoutCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		a.logger.Info("shutting down agent API gracefully")
		runErr = a.server.Shutdown(timeoutCtx)
		cancelShutdown()
	}

	cancel()
	wg.Wait()
	a.close()
	return runErr
}

// revalidateLoop проверяет лицензию при старте и затем с интервалом
// LicenseServer.Revalidate. Если результат получен без запроса к серверу,
// локальный баланс сверяется отдельно.
func (a *App) revalidateLoop(ctx context.Context) {
	interval := a.cfg.LicenseServer.Revalidate
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		res := a.validator.Validate(ctx, true)
		a.logger.Debug("license revalidated",
			slog.Bool("valid", res.IsValid),
			slog.String("source", res.Source))
		// Ответ сервера уже переписал локальный статус. Во время демо сеть не трогаем.
		if res.IsValid && (res.Source == models.SourceCache || res.Source == models.SourceTesting) {
			_, err := a.tracker.Reconcile(ctx)
			if err != nil && ctx.Err() == nil && !errors.Is(err, models.ErrNotLoggedIn) {
				a.logger.Warn("balance reconcile failed", sl.Err(err))
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *App) close() {
	if _, err := a.limit.EndSession(); err == nil {
		a.logger.Info("active session closed on shutdown")
	} else if !errors.Is(err, dailylimit.ErrNoActiveSession) {
		a.logger.Error("failed to close active session", sl.Err(err))
	}
	if err := a.outbox.Close(); err != nil {
		a.logger.Error("failed to close outbox", sl.Err(err))
	}
}
