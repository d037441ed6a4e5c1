// Package licenseserver собирает HTTP-сервер лицензий.
package licenseserver

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	// Регистрация swagger-документа для /docs/*.
	_ "github.com/magabrotheeeer/cohost-credits/docs"
	"github.com/magabrotheeeer/cohost-credits/internal/http/handlers/demo/register"
	"github.com/magabrotheeeer/cohost-credits/internal/http/handlers/demo/status"
	"github.com/magabrotheeeer/cohost-credits/internal/http/handlers/health"
	"github.com/magabrotheeeer/cohost-credits/internal/http/handlers/license/usage"
	"github.com/magabrotheeeer/cohost-credits/internal/http/handlers/license/validate"
	"github.com/magabrotheeeer/cohost-credits/internal/http/handlers/payment/paymentcreate"
	"github.com/magabrotheeeer/cohost-credits/internal/http/handlers/payment/paymentwebhook"
	"github.com/magabrotheeeer/cohost-credits/internal/http/middlewarectx"
)

// Service все операции сервиса аккаунтов, нужные обработчикам.
type Service interface {
	validate.Service
	usage.Service
	register.Service
	status.Service
	paymentcreate.Service
	paymentwebhook.Service
}

// RouteOptions параметры маршрутов.
type RouteOptions struct {
	WebhookSecret string
	Limiter       *rate.Limiter
	Checks        map[string]health.Checker
}

// RegisterRoutes регистрирует все маршруты сервера.
func RegisterRoutes(r chi.Router, logger *slog.Logger, service Service, opts RouteOptions) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middlewarectx.MetricsMiddleware,
	)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if opts.Limiter != nil {
				r.Use(middlewarectx.RateLimitMiddleware(logger, opts.Limiter))
			}
			r.Post("/license/validate", validate.New(logger, service).ServeHTTP)
			r.Post("/license/update_usage", usage.New(logger, service).ServeHTTP)
			r.Post("/demo/register", register.New(logger, service).ServeHTTP)
			r.Get("/demo/status/{email}", status.New(logger, service).ServeHTTP)
			r.Post("/payment/create", paymentcreate.New(logger, service).ServeHTTP)
		})

		// Webhook endpoint (подпись HMAC, без ограничения частоты)
		r.With(middleware.NoCache).Post("/payment/webhook", paymentwebhook.New(logger, service, opts.WebhookSecret).ServeHTTP)
	})

	r.Get("/health", health.New(logger, opts.Checks).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
