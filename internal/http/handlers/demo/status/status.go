// Package status отдаёт состояние демо.
package status

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/cohost-credits/internal/http/handlers"
	"github.com/magabrotheeeer/cohost-credits/internal/http/response"
	"github.com/magabrotheeeer/cohost-credits/internal/models"
)

type Service interface {
	DemoStatus(ctx context.Context, email string) (*models.DemoResponse, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Состояние демо
// @Tags Demo
// @Produce  json
// @Param email path string true "Email"
// @Success 200 {object} models.DemoResponse
// @Router /api/demo/status/{email} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.demo.status"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	email := chi.URLParam(r, "email")
	if email == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("email is required"))
		return
	}

	resp, err := h.service.DemoStatus(r.Context(), email)
	if err != nil {
		handlers.Fail(w, r, log, err)
		return
	}
	render.JSON(w, r, resp)
}
