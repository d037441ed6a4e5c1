package paymentprovider

import "time"

// Amount денежная сумма.
type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// Confirmation способ подтверждения платежа. Для redirect провайдер
// возвращает ConfirmationURL, на который отправляется пользователь.
type Confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

// CreatePaymentRequest запрос на создание платежа.
type CreatePaymentRequest struct {
	Amount       Amount            `json:"amount"`
	Capture      bool              `json:"capture"`
	Confirmation Confirmation      `json:"confirmation"`
	Description  string            `json:"description,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"` // email, package
}

// CreatePaymentResponse ответ на создание платежа.
type CreatePaymentResponse struct {
	ID           string       `json:"id"`
	Status       string       `json:"status"`
	Amount       Amount       `json:"amount"`
	Confirmation Confirmation `json:"confirmation"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Webhook события провайдера.
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentCanceled  = "payment.canceled"
)

// WebhookPayload уведомление провайдера о смене статуса платежа.
type WebhookPayload struct {
	Event  string `json:"event"`
	Object struct {
		ID       string            `json:"id"`
		Status   string            `json:"status"`
		Amount   Amount            `json:"amount"`
		Metadata map[string]string `json:"metadata"`
	} `json:"object"`
}
