package models

import "time"

// Виды уведомлений, публикуемых в RabbitMQ.
const (
	NotificationCreditLow        = "credit.low"
	NotificationPaymentSucceeded = "payment.succeeded"
)

// Notification сообщение для сервиса отправки писем.
type Notification struct {
	Kind          string    `json:"kind"`
	Email         string    `json:"email"`
	CreditBalance float64   `json:"credit_balance"`
	Package       string    `json:"package,omitempty"`
	Credits       float64   `json:"credits,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
