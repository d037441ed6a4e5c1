package models

import "time"

// Account серверная запись пользователя. Источник истины для баланса.
type Account struct {
	Email         string     `json:"email"`
	Status        Status     `json:"status"`
	Tier          Tier       `json:"tier"`
	CreditBalance float64    `json:"credit_balance"`
	CreditUsed    float64    `json:"credit_used"`
	HoursUsed     float64    `json:"hours_used"`
	ExpireDate    *time.Time `json:"expire_date"`
	DemoUsed      bool       `json:"demo_used"`
	HardwareID    string     `json:"hardware_id"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Payment платёж за пакет кредитов.
type Payment struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Package   string    `json:"package"`
	Credits   float64   `json:"credits"`
	Amount    string    `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Статусы платежа.
const (
	PaymentPending   = "pending"
	PaymentSucceeded = "succeeded"
	PaymentCanceled  = "canceled"
)

// UsageRecord серверная запись о списании.
type UsageRecord struct {
	EventID     string
	Email       string
	CreditsUsed float64
	HoursUsed   float64
	OccurredAt  time.Time
}
