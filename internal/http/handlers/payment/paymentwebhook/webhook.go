// Package paymentwebhook принимает уведомления платёжного провайдера.
package paymentwebhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/magabrotheeeer/cohost-credits/internal/lib/sl"
	"github.com/magabrotheeeer/cohost-credits/internal/paymentprovider"
)

type Service interface {
	HandleWebhook(ctx context.Context, payload paymentprovider.WebhookPayload) error
}

type Handler struct {
	log           *slog.Logger
	service       Service
	webhookSecret string // Секрет для проверки подписи
}

func New(log *slog.Logger, service Service, secret string) *Handler {
	return &Handler{
		log:           log,
		service:       service,
		webhookSecret: secret,
	}
}

// ServeHTTP godoc
// @Summary Webhook платёжного провайдера
// @Description Подпись передаётся в X-Api-Signature: base64(HMAC-SHA256(secret, body))
// @Tags Payments
// @Accept  json
// @Success 200
// @Failure 401 "Неверная подпись"
// @Router /api/payment/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.webhook"
	log := h.log.With(slog.String("op", op))

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !paymentprovider.VerifySignature(h.webhookSecret, body, r.Header.Get("X-Api-Signature")) {
		log.Error("invalid or missing webhook signature")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var payload paymentprovider.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Error("failed to unmarshal webhook payload", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.service.HandleWebhook(r.Context(), payload); err != nil {
		log.Error("failed to process webhook event", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	log.Info("webhook processed successfully",
		slog.String("event", payload.Event),
		slog.String("payment_id", payload.Object.ID))
	w.WriteHeader(http.StatusOK)
}
