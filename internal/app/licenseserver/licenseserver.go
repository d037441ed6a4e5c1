package licenseserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/cohost-credits/internal/cache"
	"github.com/magabrotheeeer/cohost-credits/internal/config"
	"github.com/magabrotheeeer/cohost-credits/internal/http/handlers/health"
	"github.com/magabrotheeeer/cohost-credits/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/cohost-credits/internal/lib/sl"
	"github.com/magabrotheeeer/cohost-credits/internal/migrations"
	"github.com/magabrotheeeer/cohost-credits/internal/paymentprovider"
	"github.com/magabrotheeeer/cohost-credits/internal/services/account"
	"github.com/magabrotheeeer/cohost-credits/internal/storage/repository"
)

// App представляет приложение сервера лицензий.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
	conn   *amqp.Connection
	ch     *amqp.Channel
}

func waitForDB(ctx context.Context, db *repository.Storage) error {
	for range 10 {
		err := repository.CheckDatabaseReady(ctx, db)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}
	return fmt.Errorf("database not ready after retries")
}

// New создаёт сервер: база с миграциями, необязательные Redis и RabbitMQ,
// клиент платёжного провайдера и маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	if err := waitForDB(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	app := &App{logger: logger, db: db}
	checks := map[string]health.Checker{
		"postgres": func(ctx context.Context) error {
			return repository.CheckDatabaseReady(ctx, db)
		},
	}

	var accountCache account.Cache
	if cfg.RedisConnection.AddressRedis != "" {
		cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			app.closeResources()
			return nil, fmt.Errorf("cache not initialized: %w", err)
		}
		app.cache = cacheRedis
		accountCache = cacheRedis
		checks["redis"] = func(ctx context.Context) error {
			return cacheRedis.Db.Ping(ctx).Err()
		}
	} else {
		logger.Warn("redis address is empty, account cache disabled")
	}

	var publisher account.Publisher
	if cfg.RabbitMQ.URL != "" {
		conn, err := rabbitmq.Connect(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
		if err != nil {
			app.closeResources()
			return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
		}
		app.conn = conn
		ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
		if err != nil {
			app.closeResources()
			return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
		}
		app.ch = ch
		publisher = rabbitmq.NewPublisher(ch)
	} else {
		logger.Warn("rabbitmq url is empty, notifications disabled")
	}

	provider := paymentprovider.NewClient(cfg.PaymentProvider, cfg.HTTPServer.TimeoutHTTP)
	service := account.New(db, accountCache, publisher, provider, account.Options{
		DemoDuration: cfg.Demo.Duration,
		LowCredit:    cfg.HTTPServer.LowCredit,
		CacheTTL:     cfg.HTTPServer.AccountCache,
		Packages:     cfg.Packages,
	}, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, service, RouteOptions{
		WebhookSecret: cfg.PaymentProvider.WebhookSecret,
		Limiter:       newLimiter(cfg.HTTPServer),
		Checks:        checks,
	})

	app.server = &http.Server{
		Addr:         cfg.HTTPServer.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.TimeoutHTTP,
		WriteTimeout: cfg.HTTPServer.TimeoutHTTP,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}
	return app, nil
}

func newLimiter(cfg config.HTTPServer) *rate.Limiter {
	if cfg.RateLimit <= 0 {
		return nil
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = int(cfg.RateLimit)
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimit), max(burst, 1))
}

// Run запускает HTTP-сервер и останавливает его при отмене ctx.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.closeResources()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.closeResources()
		return err
	}
}

func (a *App) closeResources() {
	if a.ch != nil {
		if err := a.ch.Close(); err != nil {
			a.logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Error("failed to close connection", sl.Err(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close cache", sl.Err(err))
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}
