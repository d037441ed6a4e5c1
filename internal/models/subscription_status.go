// Package models содержит доменные структуры агента и сервера лицензий:
// локальный статус подписки, учёт использования, дневной лимит, DTO удалённого API.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status жизненный цикл подписки.
type Status string

const (
	StatusDemo      Status = "demo"
	StatusPaid      Status = "paid"
	StatusInactive  Status = "inactive"
	StatusExpired   Status = "expired"
	StatusLoggedOut Status = "logged_out"
)

// Tier уровень доступа к функциям.
type Tier string

const (
	TierBasic Tier = "basic"
	TierPro   Tier = "pro"
	TierDemo  Tier = "demo"
	TierNone  Tier = "none"
)

// SubscriptionStatus локальная запись config/subscription_status.json.
// Баланс кредитов кэшируется локально и может расходиться с сервером в офлайне.
type SubscriptionStatus struct {
	Email         string     `json:"email"`
	Status        Status     `json:"status"`
	Package       Tier       `json:"package"`
	CreditBalance float64    `json:"credit_balance"`
	CreditUsed    float64    `json:"credit_used"`
	ExpireDate    *time.Time `json:"expire_date"`
	DemoUsed      bool       `json:"demo_used"`
	DemoDate      string     `json:"demo_date,omitempty"`
	LastSync      *time.Time `json:"last_sync,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// UnmarshalJSON принимает также исторические ключи tier, hours_credit и hours_used
// и отметки времени без смещения.
func (s *SubscriptionStatus) UnmarshalJSON(data []byte) error {
	var raw struct {
		Email         string   `json:"email"`
		Status        Status   `json:"status"`
		Package       Tier     `json:"package"`
		Tier          Tier     `json:"tier"`
		CreditBalance *float64 `json:"credit_balance"`
		HoursCredit   *float64 `json:"hours_credit"`
		CreditUsed    *float64 `json:"credit_used"`
		HoursUsed     *float64 `json:"hours_used"`
		ExpireDate    *string  `json:"expire_date"`
		DemoUsed      bool     `json:"demo_used"`
		DemoDate      string   `json:"demo_date"`
		LastSync      *string  `json:"last_sync"`
		UpdatedAt     *string  `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := SubscriptionStatus{
		Email:    raw.Email,
		Status:   raw.Status,
		Package:  raw.Package,
		DemoUsed: raw.DemoUsed,
		DemoDate: raw.DemoDate,
	}
	if out.Package == "" {
		out.Package = raw.Tier
	}
	switch {
	case raw.CreditBalance != nil:
		out.CreditBalance = *raw.CreditBalance
	case raw.HoursCredit != nil:
		out.CreditBalance = *raw.HoursCredit
	}
	switch {
	case raw.CreditUsed != nil:
		out.CreditUsed = *raw.CreditUsed
	case raw.HoursUsed != nil:
		out.CreditUsed = *raw.HoursUsed
	}

	var err error
	if out.ExpireDate, err = parseOptional(raw.ExpireDate); err != nil {
		return fmt.Errorf("expire_date: %w", err)
	}
	if out.LastSync, err = parseOptional(raw.LastSync); err != nil {
		return fmt.Errorf("last_sync: %w", err)
	}
	if out.UpdatedAt, err = parseOptional(raw.UpdatedAt); err != nil {
		return fmt.Errorf("updated_at: %w", err)
	}

	*s = out
	return nil
}

func parseOptional(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	return ParseTimestamp(*s)
}

// NewEmptyStatus шаблон, создаваемый при первом входе.
func NewEmptyStatus(email string, now time.Time) SubscriptionStatus {
	return SubscriptionStatus{
		Email:     email,
		Status:    StatusInactive,
		Package:   TierNone,
		UpdatedAt: &now,
	}
}

// LoggedOutStatus запись-маркер, которой перезаписывается статус при выходе.
func LoggedOutStatus(now time.Time) SubscriptionStatus {
	return SubscriptionStatus{
		Status:    StatusLoggedOut,
		Package:   TierNone,
		UpdatedAt: &now,
	}
}

// ApplyDebit списывает кредиты: баланс не опускается ниже нуля,
// счётчик использованного растёт на полную сумму.
func (s *SubscriptionStatus) ApplyDebit(credits float64) {
	s.CreditBalance = max(0, s.CreditBalance-credits)
	s.CreditUsed += credits
}

// DemoActive демо ещё действует с учётом grace.
func (s SubscriptionStatus) DemoActive(now time.Time, grace time.Duration) bool {
	if s.Status != StatusDemo || s.ExpireDate == nil {
		return false
	}
	return now.Before(s.ExpireDate.Add(grace))
}

// LoggedIn есть владелец записи и она не помечена как вышедшая.
func (s SubscriptionStatus) LoggedIn() bool {
	return s.Email != "" && s.Status != StatusLoggedOut
}
