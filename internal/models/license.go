package models

import "time"

// Источники результата проверки лицензии.
const (
	SourceTesting = "testing"
	SourceDemo    = "demo"
	SourceServer  = "server"
	SourceCache   = "cache"
	SourceNone    = "none"
)

// LicenseResult результат проверки лицензии для GUI.
type LicenseResult struct {
	IsValid    bool       `json:"is_valid"`
	Tier       Tier       `json:"tier"`
	ExpireDate *time.Time `json:"expire_date"`
	Message    string     `json:"message,omitempty"`
	Source     string     `json:"source,omitempty"`
}

// LicenseCache содержимое temp/license_cache.json.
type LicenseCache struct {
	LicenseResult
	Email    string    `json:"email"`
	Status   Status    `json:"status"`
	CachedAt time.Time `json:"cached_at"`
}

// ValidateRequest тело POST /api/license/validate.
type ValidateRequest struct {
	Email      string `json:"email" validate:"required,email"`
	HardwareID string `json:"hardware_id"`
}

// AccountData данные аккаунта в ответе валидации.
type AccountData struct {
	Email         string  `json:"email"`
	Status        Status  `json:"status"`
	CreditBalance float64 `json:"credit_balance"`
	CreditUsed    float64 `json:"credit_used"`
	HoursUsed     float64 `json:"hours_used"`
	IsActive      bool    `json:"is_active"`
	DemoUsed      bool    `json:"demo_used"`
}

// ValidateResponse ответ POST /api/license/validate.
type ValidateResponse struct {
	IsValid    bool         `json:"is_valid"`
	Tier       Tier         `json:"tier"`
	ExpireDate *time.Time   `json:"expire_date"`
	Message    string       `json:"message,omitempty"`
	Data       *AccountData `json:"data,omitempty"`
}

// UpdateUsageRequest тело POST /api/license/update_usage.
// EventID делает повторную отправку одного и того же списания безопасной.
type UpdateUsageRequest struct {
	EventID     string    `json:"event_id,omitempty"`
	Email       string    `json:"email" validate:"required,email"`
	CreditsUsed float64   `json:"credits_used" validate:"gte=0"`
	HoursUsed   float64   `json:"hours_used" validate:"gte=0"`
	Timestamp   time.Time `json:"timestamp"`
}

// UpdateUsageResponse ответ POST /api/license/update_usage.
type UpdateUsageResponse struct {
	RemainingCredit float64 `json:"remaining_credit"`
	Duplicate       bool    `json:"duplicate,omitempty"`
}

// DemoRegisterRequest тело POST /api/demo/register.
type DemoRegisterRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// DemoResponse ответ демо-эндпоинтов.
type DemoResponse struct {
	Success    bool       `json:"success"`
	Email      string     `json:"email"`
	DemoUsed   bool       `json:"demo_used"`
	IsActive   bool       `json:"is_active"`
	ExpireDate *time.Time `json:"expire_date"`
	Message    string     `json:"message,omitempty"`
}

// PaymentCreateRequest тело POST /api/payment/create.
type PaymentCreateRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Package string `json:"package" validate:"required"`
}

// PaymentCreateResponse ответ POST /api/payment/create.
type PaymentCreateResponse struct {
	RedirectURL string `json:"redirect_url"`
	PaymentID   string `json:"payment_id,omitempty"`
}
