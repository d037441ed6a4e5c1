// Package paymentcreate обрабатывает создание платежа за пакет кредитов.
package paymentcreate

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

// Service создание платежа.
type Service interface {
	CreatePayment(ctx context.Context, req models.PaymentCreateRequest) (*models.PaymentCreateResponse, error)
}

// Handler обрабатывает запросы на создание платежа.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate // Валидатор структуры входящих данных
}

// New создаёт новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Создать платеж
// @Description Создаёт платёж у провайдера и возвращает ссылку для оплаты пакета кредитов
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param request body models.PaymentCreateRequest true "Email и пакет"
// @Success 200 {object} models.PaymentCreateResponse
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации или неизвестный пакет"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера при создании платежа"
// @Router /api/payment/create [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.create"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.PaymentCreateRequest
	if !handlers.Decode(w, r, log, h.validate, &req) {
		return
	}

	resp, err := h.service.CreatePayment(r.Context(), req)
	if err != nil {
		handlers.Fail(w, r, log, err)
		return
	}

	log.Info("success to create payment", slog.String("payment_id", resp.PaymentID))
	render.JSON(w, r, resp)
}
