// Package account серверная логика лицензий: проверка аккаунта, идемпотентное
// списание кредитов, одноразовое демо и покупка пакетов кредитов.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/cohost-credits/internal/cache"
	"github.com/magabrotheeeer/cohost-credits/internal/config"
	"github.com/magabrotheeeer/cohost-credits/internal/lib/sl"
	"github.com/magabrotheeeer/cohost-credits/internal/metrics"
	"github.com/magabrotheeeer/cohost-credits/internal/models"
	"github.com/magabrotheeeer/cohost-credits/internal/paymentprovider"
)

// Repository хранилище аккаунтов, списаний и платежей.
type Repository interface {
	GetAccount(ctx context.Context, email string) (*models.Account, error)
	EnsureAccount(ctx context.Context, email string, now time.Time) (*models.Account, error)
	BindHardware(ctx context.Context, email, hardwareID string, now time.Time) error
	ExpireDemo(ctx context.Context, email string, now time.Time) (bool, error)
	RegisterDemo(ctx context.Context, email string, expire, now time.Time) error
	ApplyUsage(ctx context.Context, rec models.UsageRecord) (float64, bool, error)
	CreatePayment(ctx context.Context, p models.Payment) error
	CompletePayment(ctx context.Context, id string) (*models.Payment, float64, bool, error)
	SetPaymentStatus(ctx context.Context, id, status string) error
}

// Cache кеш снимков аккаунтов.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Publisher публикует уведомления для сервиса писем.
type Publisher interface {
	Publish(ctx context.Context, n models.Notification) error
}

// PaymentProvider создаёт платежи у провайдера.
type PaymentProvider interface {
	CreateRedirectPayment(ctx context.Context, amount paymentprovider.Amount, description string, metadata map[string]string, idempotenceKey string) (*paymentprovider.CreatePaymentResponse, error)
}

// Options параметры сервиса.
type Options struct {
	DemoDuration time.Duration
	LowCredit    float64
	CacheTTL     time.Duration
	Packages     map[string]config.Package
	Now          func() time.Time
}

// Service сервис аккаунтов.
type Service struct {
	repo      Repository
	cache     Cache
	publisher Publisher
	provider  PaymentProvider
	opts      Options
	log       *slog.Logger
}

// New создаёт сервис. cache и publisher могут быть nil.
func New(repo Repository, c Cache, publisher Publisher, provider PaymentProvider, opts Options, log *slog.Logger) *Service {
	if opts.DemoDuration <= 0 {
		opts.DemoDuration = 30 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:      repo,
		cache:     c,
		publisher: publisher,
		provider:  provider,
		opts:      opts,
		log:       log,
	}
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate проверяет лицензию. Неизвестный email получает неактивный аккаунт,
// hardware id привязывается к последнему устройству, истёкшее демо закрывается.
func (s *Service) Validate(ctx context.Context, req models.ValidateRequest) (*models.ValidateResponse, error) {
	const op = "account.Validate"
	email := normalize(req.Email)
	now := s.opts.Now()

	acc, err := s.load(ctx, email, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	changed := false
	if req.HardwareID != "" && acc.HardwareID != req.HardwareID {
		if acc.HardwareID != "" {
			s.log.Info("hardware id rebound", slog.String("email", email))
		}
		if err := s.repo.BindHardware(ctx, email, req.HardwareID, now); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		acc.HardwareID = req.HardwareID
		changed = true
	}
	if acc.Status == models.StatusDemo && acc.ExpireDate != nil && !now.Before(*acc.ExpireDate) {
		applied, err := s.repo.ExpireDemo(ctx, email, now)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		changed = true
		if applied {
			acc.Status = models.StatusExpired
			acc.Tier = models.TierNone
		} else if acc, err = s.repo.GetAccount(ctx, email); err != nil {
			// снимок устарел: статус успели сменить
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if changed {
		s.invalidate(ctx, email)
	}

	resp := buildValidateResponse(acc, now)
	metrics.ServerValidations.WithLabelValues(metrics.BoolLabel(resp.IsValid)).Inc()
	return resp, nil
}

func buildValidateResponse(acc *models.Account, now time.Time) *models.ValidateResponse {
	demoActive := acc.Status == models.StatusDemo && acc.ExpireDate != nil && now.Before(*acc.ExpireDate)
	valid := (acc.Status == models.StatusPaid && acc.CreditBalance > 0) || demoActive

	resp := &models.ValidateResponse{
		IsValid:    valid,
		Tier:       acc.Tier,
		ExpireDate: acc.ExpireDate,
		Data: &models.AccountData{
			Email:         acc.Email,
			Status:        acc.Status,
			CreditBalance: acc.CreditBalance,
			CreditUsed:    acc.CreditUsed,
			HoursUsed:     acc.HoursUsed,
			IsActive:      valid,
			DemoUsed:      acc.DemoUsed,
		},
	}
	switch {
	case valid:
	case acc.Status == models.StatusPaid:
		resp.Message = "no credits left"
	case acc.Status == models.StatusExpired:
		resp.Message = "subscription expired"
	default:
		resp.Message = "no active subscription"
	}
	return resp
}

// load берёт снимок из кеша или создаёт/читает аккаунт в базе.
func (s *Service) load(ctx context.Context, email string, now time.Time) (*models.Account, error) {
	key := cache.AccountKey(email)
	if s.cache != nil {
		var acc models.Account
		found, err := s.cache.Get(ctx, key, &acc)
		if err != nil {
			s.log.Warn("account cache read failed", sl.Err(err))
		}
		if found {
			return &acc, nil
		}
	}
	acc, err := s.repo.EnsureAccount(ctx, email, now)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, acc, s.opts.CacheTTL); err != nil {
			s.log.Warn("account cache write failed", sl.Err(err))
		}
	}
	return acc, nil
}

func (s *Service) invalidate(ctx context.Context, email string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cache.AccountKey(email)); err != nil {
		s.log.Warn("account cache invalidation failed", sl.Err(err))
	}
}

// UpdateUsage списывает кредиты. Повтор с тем же event_id не списывает
// повторно и возвращает текущий остаток.
func (s *Service) UpdateUsage(ctx context.Context, req models.UpdateUsageRequest) (*models.UpdateUsageResponse, error) {
	const op = "account.UpdateUsage"
	email := normalize(req.Email)
	now := s.opts.Now()

	if req.EventID == "" {
		req.EventID = uuid.NewString()
	}
	occurred := req.Timestamp
	if occurred.IsZero() {
		occurred = now
	}

	before, err := s.repo.EnsureAccount(ctx, email, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	remaining, duplicate, err := s.repo.ApplyUsage(ctx, models.UsageRecord{
		EventID:     req.EventID,
		Email:       email,
		CreditsUsed: req.CreditsUsed,
		HoursUsed:   req.HoursUsed,
		OccurredAt:  occurred,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if duplicate {
		metrics.ServerDuplicateUsage.Inc()
		s.log.Info("duplicate usage ignored", slog.String("event_id", req.EventID))
		return &models.UpdateUsageResponse{RemainingCredit: remaining, Duplicate: true}, nil
	}

	metrics.ServerCreditsDebited.Add(req.CreditsUsed)
	s.invalidate(ctx, email)

	if before.CreditBalance > s.opts.LowCredit && remaining <= s.opts.LowCredit {
		s.publish(ctx, models.Notification{
			Kind:          models.NotificationCreditLow,
			Email:         email,
			CreditBalance: remaining,
			CreatedAt:     now,
		})
	}
	return &models.UpdateUsageResponse{RemainingCredit: remaining}, nil
}

func (s *Service) publish(ctx context.Context, n models.Notification) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, n); err != nil {
		s.log.Error("failed to publish notification", slog.String("kind", n.Kind), sl.Err(err))
	}
}

// RegisterDemo активирует одноразовое демо.
func (s *Service) RegisterDemo(ctx context.Context, email string) (*models.DemoResponse, error) {
	const op = "account.RegisterDemo"
	email = normalize(email)
	now := s.opts.Now()

	acc, err := s.repo.EnsureAccount(ctx, email, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// Демо не должно перезаписать оплаченный баланс и статус.
	if acc.Status == models.StatusPaid {
		metrics.DemoRegistrations.WithLabelValues("paid").Inc()
		return nil, fmt.Errorf("%s: %w", op, models.ErrAccountPaid)
	}
	expire := now.Add(s.opts.DemoDuration)
	if err := s.repo.RegisterDemo(ctx, email, expire, now); err != nil {
		switch {
		case errors.Is(err, models.ErrDemoAlreadyUsed):
			metrics.DemoRegistrations.WithLabelValues("already_used").Inc()
		case errors.Is(err, models.ErrAccountPaid):
			metrics.DemoRegistrations.WithLabelValues("paid").Inc()
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(ctx, email)
	metrics.DemoRegistrations.WithLabelValues("registered").Inc()

	return &models.DemoResponse{
		Success:    true,
		Email:      email,
		DemoUsed:   true,
		IsActive:   true,
		ExpireDate: &expire,
	}, nil
}

// DemoStatus состояние демо для email.
func (s *Service) DemoStatus(ctx context.Context, email string) (*models.DemoResponse, error) {
	const op = "account.DemoStatus"
	email = normalize(email)
	acc, err := s.repo.GetAccount(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &models.DemoResponse{Success: true, Email: email}, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	now := s.opts.Now()
	active := acc.Status == models.StatusDemo && acc.ExpireDate != nil && now.Before(*acc.ExpireDate)
	return &models.DemoResponse{
		Success:    true,
		Email:      email,
		DemoUsed:   acc.DemoUsed,
		IsActive:   active,
		ExpireDate: acc.ExpireDate,
	}, nil
}

// CreatePayment создаёт платёж за пакет и возвращает ссылку на оплату.
func (s *Service) CreatePayment(ctx context.Context, req models.PaymentCreateRequest) (*models.PaymentCreateResponse, error) {
	const op = "account.CreatePayment"
	email := normalize(req.Email)
	pkg, ok := s.opts.Packages[req.Package]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrUnknownPackage)
	}
	now := s.opts.Now()
	if _, err := s.repo.EnsureAccount(ctx, email, now); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	idempotenceKey := uuid.NewString()
	resp, err := s.provider.CreateRedirectPayment(ctx,
		paymentprovider.Amount{Value: pkg.Price, Currency: pkg.Currency},
		fmt.Sprintf("Co-host credits: %s package", req.Package),
		map[string]string{"email": email, "package": req.Package},
		idempotenceKey,
	)
	if err != nil {
		metrics.Payments.WithLabelValues("provider_error").Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.repo.CreatePayment(ctx, models.Payment{
		ID:        resp.ID,
		Email:     email,
		Package:   req.Package,
		Credits:   pkg.Credits,
		Amount:    pkg.Price,
		Currency:  pkg.Currency,
		Status:    models.PaymentPending,
		CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.Payments.WithLabelValues(models.PaymentPending).Inc()

	return &models.PaymentCreateResponse{
		RedirectURL: resp.Confirmation.ConfirmationURL,
		PaymentID:   resp.ID,
	}, nil
}

// HandleWebhook применяет уведомление провайдера. Повторное уведомление об
// уже обработанном платеже ничего не меняет.
func (s *Service) HandleWebhook(ctx context.Context, payload paymentprovider.WebhookPayload) error {
	const op = "account.HandleWebhook"
	id := payload.Object.ID

	switch payload.Event {
	case paymentprovider.EventPaymentSucceeded:
		p, balance, applied, err := s.repo.CompletePayment(ctx, id)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if !applied {
			s.log.Info("payment already processed", slog.String("payment_id", id))
			return nil
		}
		s.invalidate(ctx, p.Email)
		metrics.Payments.WithLabelValues(models.PaymentSucceeded).Inc()
		s.publish(ctx, models.Notification{
			Kind:          models.NotificationPaymentSucceeded,
			Email:         p.Email,
			CreditBalance: balance,
			Package:       p.Package,
			Credits:       p.Credits,
			CreatedAt:     s.opts.Now(),
		})
		return nil
	case paymentprovider.EventPaymentCanceled:
		if err := s.repo.SetPaymentStatus(ctx, id, models.PaymentCanceled); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("%s: %w", op, err)
		}
		metrics.Payments.WithLabelValues(models.PaymentCanceled).Inc()
		return nil
	default:
		s.log.Warn("unknown webhook event", slog.String("event", payload.Event))
		return nil
	}
}
