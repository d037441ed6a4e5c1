// Package register обрабатывает активацию демо.
package register

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/cohost-credits/internal/http/handlers"
	"github.com/magabrotheeeer/cohost-credits/internal/models"
)

type Service interface {
	RegisterDemo(ctx context.Context, email string) (*models.DemoResponse, error)
}

type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Активировать демо
// @Description Демо выдаётся один раз на email
// @Tags Demo
// @Accept  json
// @Produce  json
// @Param request body models.DemoRegisterRequest true "Email"
// @Success 200 {object} models.DemoResponse
// @Failure 409 {object} models.DemoResponse "Демо уже использовано"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /api/demo/register [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.demo.register"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DemoRegisterRequest
	if !handlers.Decode(w, r, log, h.validate, &req) {
		return
	}

	resp, err := h.service.RegisterDemo(r.Context(), req.Email)
	if err != nil {
		handlers.Fail(w, r, log, err)
		return
	}

	log.Info("demo registered")
	render.JSON(w, r, resp)
}
