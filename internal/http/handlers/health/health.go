package health

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/cohost-credits/internal/http/response"
	"github.com/magabrotheeeer/cohost-credits/internal/lib/sl"
)

// Checker проверка готовности зависимости.
type Checker func(ctx context.Context) error

type Handler struct {
	log    *slog.Logger
	checks map[string]Checker
}

func New(log *slog.Logger, checks map[string]Checker) *Handler {
	return &Handler{
		log:    log,
		checks: checks,
	}
}

// ServeHTTP godoc
// @Summary Проверка состояния
// @Tags Health
// @Produce  json
// @Success 200 {object} response.Response
// @Failure 503 {object} response.Response
// @Router /health [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.health"
	result := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check(r.Context()); err != nil {
			h.log.Error("dependency unhealthy", slog.String("op", op), slog.String("dependency", name), sl.Err(err))
			result[name] = "down"
			healthy = false
			continue
		}
		result[name] = "ok"
	}

	if !healthy {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.Response{Status: response.StatusError, Data: result})
		return
	}
	render.JSON(w, r, response.StatusOKWithData(result))
}
