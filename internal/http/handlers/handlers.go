// Package handlers общие части HTTP-обработчиков сервера лицензий.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/cohost-credits/internal/http/response"
	"github.com/magabrotheeeer/cohost-credits/internal/lib/sl"
	"github.com/magabrotheeeer/cohost-credits/internal/models"
)

// Decode читает JSON-тело в dst и проверяет его валидатором. При ошибке ответ
// уже записан и возвращается false.
func Decode(w http.ResponseWriter, r *http.Request, log *slog.Logger, v *validator.Validate, dst any) bool {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return false
	}
	if err := v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			log.Error("validation failed", sl.Err(err))
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, response.ValidationError(verrs))
			return false
		}
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return false
	}
	return true
}

// Fail отвечает кодом, соответствующим доменной ошибке.
func Fail(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, models.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, models.ErrDemoAlreadyUsed):
		status, msg = http.StatusConflict, "demo already used"
	case errors.Is(err, models.ErrAccountPaid):
		status, msg = http.StatusConflict, "account already paid"
	case errors.Is(err, models.ErrUnknownPackage):
		status, msg = http.StatusUnprocessableEntity, "unknown package"
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", sl.Err(err))
	} else {
		log.Info("request rejected", sl.Err(err))
	}
	render.Status(r, status)
	render.JSON(w, r, response.Error(msg))
}
