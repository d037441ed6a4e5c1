// Package validate обрабатывает проверку лицензии.
package validate

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

// Service проверка лицензии.
type Service interface {
	Validate(ctx context.Context, req models.ValidateRequest) (*models.ValidateResponse, error)
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
// @Summary Проверить лицензию
// @Description Создаёт аккаунт при первом обращении, привязывает hardware id и возвращает статус и баланс
// @Tags License
// @Accept  json
// @Produce  json
// @Param request body models.ValidateRequest true "Email и hardware id"
// @Success 200 {object} models.ValidateResponse
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /api/license/validate [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.license.validate"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.ValidateRequest
	if !handlers.Decode(w, r, log, h.validate, &req) {
		return
	}

	resp, err := h.service.Validate(r.Context(), req)
	if err != nil {
		handlers.Fail(w, r, log, err)
		return
	}

	log.Info("license validated", slog.Bool("is_valid", resp.IsValid))
	render.JSON(w, r, resp)
}
