// Package usage обрабатывает списание кредитов агентом.
package usage

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

// Service списание кредитов.
type Service interface {
	UpdateUsage(ctx context.Context, req models.UpdateUsageRequest) (*models.UpdateUsageResponse, error)
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
// @Summary Списать кредиты
// @Description Идемпотентно по event_id: повтор не списывает повторно
// @Tags License
// @Accept  json
// @Produce  json
// @Param request body models.UpdateUsageRequest true "Списание"
// @Success 200 {object} models.UpdateUsageResponse
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /api/license/update_usage [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.license.update_usage"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.UpdateUsageRequest
	if !handlers.Decode(w, r, log, h.validate, &req) {
		return
	}

	resp, err := h.service.UpdateUsage(r.Context(), req)
	if err != nil {
		handlers.Fail(w, r, log, err)
		return
	}

	log.Info("usage applied",
		slog.String("event_id", req.EventID),
		slog.Float64("remaining", resp.RemainingCredit),
		slog.Bool("duplicate", resp.Duplicate))
	render.JSON(w, r, resp)
}
