// Package license проверяет лицензию пользователя: демо-режим, сервер лицензий,
// локальный кеш. Состояние каждый раз выводится заново из файлов и ответа сервера.
package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/magabrotheeeer/cohost-credits/internal/lib/jsonfile"
	"github.com/magabrotheeeer/cohost-credits/internal/lib/sl"
	"github.com/magabrotheeeer/cohost-credits/internal/licenseclient"
	"github.com/magabrotheeeer/cohost-credits/internal/metrics"
	"github.com/magabrotheeeer/cohost-credits/internal/models"
	"github.com/magabrotheeeer/cohost-credits/internal/storage/jsonstore"
)

// Remote API сервера лицензий.
type Remote interface {
	ValidateLicense(ctx context.Context, email, hardwareID string) (*models.ValidateResponse, error)
	RegisterDemo(ctx context.Context, email string) (*models.DemoResponse, error)
	DemoStatus(ctx context.Context, email string) (*models.DemoResponse, error)
	CreatePayment(ctx context.Context, email, pkg string) (*models.PaymentCreateResponse, error)
}

// Outbox очередь неподтверждённых списаний.
type Outbox interface {
	Enqueue(ctx context.Context, d models.UsageDelta) (models.UsageDelta, error)
	PendingCredits(ctx context.Context, email string) (float64, error)
}

// Notifier будит воркер синхронизации.
type Notifier interface {
	Notify()
}

// Options параметры валидатора.
type Options struct {
	TestingMode  bool
	HardwareID   string
	CacheTTL     time.Duration
	OfflineGrace time.Duration
	DemoDuration time.Duration
	DemoGrace    time.Duration
	Location     *time.Location
	Now          func() time.Time
}

// Validator проверка лицензии и операции с аккаунтом.
type Validator struct {
	stores   *jsonstore.Stores
	remote   Remote
	outbox   Outbox
	notifier Notifier
	opts     Options
	log      *slog.Logger
}

// NewValidator создаёт валидатор.
func NewValidator(stores *jsonstore.Stores, remote Remote, ob Outbox, notifier Notifier, opts Options, log *slog.Logger) *Validator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = models.WIB
	}
	if opts.DemoDuration <= 0 {
		opts.DemoDuration = 30 * time.Minute
	}
	if opts.DemoGrace < 0 {
		opts.DemoGrace = 0
	}
	return &Validator{
		stores:   stores,
		remote:   remote,
		outbox:   ob,
		notifier: notifier,
		opts:     opts,
		log:      log,
	}
}

// CurrentEmail email вошедшего пользователя: из статуса подписки, иначе из settings.json.
func (v *Validator) CurrentEmail() string {
	st := v.stores.Status.LoadOrZero()
	if st.LoggedIn() {
		return st.Email
	}
	settings := v.stores.Settings.LoadOrZero()
	if email, ok := settings[jsonstore.SettingsKeyEmail].(string); ok {
		return email
	}
	return ""
}

// Validate проверяет лицензию. forceRefresh игнорирует свежий кеш.
// Ошибки сети не возвращаются, а превращаются в недействительный результат.
func (v *Validator) Validate(ctx context.Context, forceRefresh bool) models.LicenseResult {
	res := v.validate(ctx, forceRefresh)
	metrics.LicenseChecks.WithLabelValues(res.Source, metrics.BoolLabel(res.IsValid)).Inc()
	return res
}

func (v *Validator) validate(ctx context.Context, forceRefresh bool) models.LicenseResult {
	const op = "license.Validate"
	log := v.log.With(sl.Op(op))
	now := v.opts.Now()

	if v.opts.TestingMode {
		return models.LicenseResult{IsValid: true, Tier: models.TierPro, Source: models.SourceTesting}
	}

	st := v.stores.Status.LoadOrZero()
	if st.DemoActive(now, v.opts.DemoGrace) {
		return models.LicenseResult{
			IsValid:    true,
			Tier:       models.TierBasic,
			ExpireDate: st.ExpireDate,
			Message:    "demo active",
			Source:     models.SourceDemo,
		}
	}

	email := v.CurrentEmail()
	if email == "" {
		return models.LicenseResult{Tier: models.TierNone, Message: "not logged in", Source: models.SourceNone}
	}

	cache, cacheErr := v.stores.LicenseCache.Load()
	cacheUsable := cacheErr == nil && cache.Email == email && cache.Status != models.StatusLoggedOut
	if !forceRefresh && cacheUsable && v.opts.CacheTTL > 0 && now.Sub(cache.CachedAt) < v.opts.CacheTTL {
		res := cache.LicenseResult
		res.Source = models.SourceCache
		return res
	}

	resp, err := v.remote.ValidateLicense(ctx, email, v.opts.HardwareID)
	if err != nil {
		var apiErr *licenseclient.APIError
		if errors.As(err, &apiErr) && apiErr.Permanent() {
			log.Warn("license rejected by server", sl.Err(err))
			return models.LicenseResult{Tier: models.TierNone, Message: apiErr.Message, Source: models.SourceServer}
		}
		if v.opts.OfflineGrace > 0 && cacheUsable && now.Sub(cache.CachedAt) < v.opts.OfflineGrace {
			log.Warn("license server unreachable, using cached license", sl.Err(err))
			res := cache.LicenseResult
			res.Source = models.SourceCache
			res.Message = "offline: cached license"
			return res
		}
		log.Error("license server unreachable", sl.Err(err))
		return models.LicenseResult{
			Tier:    models.TierNone,
			Message: fmt.Sprintf("license server unreachable: %v", err),
			Source:  models.SourceNone,
		}
	}

	res := models.LicenseResult{
		IsValid:    resp.IsValid,
		Tier:       resp.Tier,
		ExpireDate: resp.ExpireDate,
		Message:    resp.Message,
		Source:     models.SourceServer,
	}
	if err := v.applyServerState(ctx, email, resp, now); err != nil {
		log.Warn("failed to persist server state", sl.Err(err))
	}
	return res
}

// applyServerState перезаписывает локальный статус ответом сервера. Списания,
// ещё не подтверждённые сервером, вычитаются из его баланса.
func (v *Validator) applyServerState(ctx context.Context, email string, resp *models.ValidateResponse, now time.Time) error {
	pending, err := v.outbox.PendingCredits(ctx, email)
	if err != nil {
		v.log.Warn("failed to read pending usage", sl.Err(err))
		pending = 0
	}

	_, err = v.stores.Status.Update(func(s *models.SubscriptionStatus) error {
		if s.Email != email {
			*s = models.NewEmptyStatus(email, now)
		}
		s.Package = resp.Tier
		s.ExpireDate = resp.ExpireDate
		if d := resp.Data; d != nil {
			if d.Status != "" {
				s.Status = d.Status
			}
			s.CreditBalance = max(0, d.CreditBalance-pending)
			s.CreditUsed = d.CreditUsed + pending
			s.DemoUsed = s.DemoUsed || d.DemoUsed
		}
		if s.Status == "" || s.Status == models.StatusLoggedOut {
			s.Status = statusFromValidity(resp.IsValid)
		}
		s.LastSync = &now
		s.UpdatedAt = &now
		return nil
	})
	if err != nil {
		return err
	}

	return v.stores.LicenseCache.Save(models.LicenseCache{
		LicenseResult: models.LicenseResult{
			IsValid:    resp.IsValid,
			Tier:       resp.Tier,
			ExpireDate: resp.ExpireDate,
			Message:    resp.Message,
		},
		Email:    email,
		Status:   statusFromValidity(resp.IsValid),
		CachedAt: now,
	})
}

func statusFromValidity(valid bool) models.Status {
	if valid {
		return models.StatusPaid
	}
	return models.StatusInactive
}

// TrackUsage ставит в очередь учёт времени работы в минутах без списания кредитов.
func (v *Validator) TrackUsage(ctx context.Context, minutes float64) error {
	const op = "license.TrackUsage"
	if minutes <= 0 {
		return nil
	}
	email := v.CurrentEmail()
	if email == "" {
		return fmt.Errorf("%s: %w", op, models.ErrNotLoggedIn)
	}
	_, err := v.outbox.Enqueue(ctx, models.UsageDelta{
		Email:     email,
		HoursUsed: minutes / 60,
		Timestamp: v.opts.Now(),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if v.notifier != nil {
		v.notifier.Notify()
	}
	return nil
}

// Login запоминает пользователя. Статус чужого аккаунта заменяется пустым шаблоном.
func (v *Validator) Login(_ context.Context, email string) (models.SubscriptionStatus, error) {
	const op = "license.Login"
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return models.SubscriptionStatus{}, fmt.Errorf("%s: empty email", op)
	}
	now := v.opts.Now()

	st, err := v.stores.Status.Update(func(s *models.SubscriptionStatus) error {
		if s.Email != email || s.Status == models.StatusLoggedOut {
			*s = models.NewEmptyStatus(email, now)
		}
		return nil
	})
	if err != nil {
		return models.SubscriptionStatus{}, fmt.Errorf("%s: %w", op, err)
	}

	_, err = v.stores.Settings.Update(func(m *map[string]any) error {
		if *m == nil {
			*m = make(map[string]any)
		}
		(*m)[jsonstore.SettingsKeyEmail] = email
		return nil
	})
	if err != nil {
		return models.SubscriptionStatus{}, fmt.Errorf("%s: %w", op, err)
	}

	v.log.Info("user logged in", slog.String("email", email))
	return st, nil
}

// ActivateDemo активирует демо-режим. Повторная активация в тот же день (WIB) запрещена.
func (v *Validator) ActivateDemo(ctx context.Context) (models.SubscriptionStatus, error) {
	const op = "license.ActivateDemo"
	email := v.CurrentEmail()
	if email == "" {
		return models.SubscriptionStatus{}, fmt.Errorf("%s: %w", op, models.ErrNotLoggedIn)
	}
	now := v.opts.Now()
	today := models.DateKey(now, v.opts.Location)

	st := v.stores.Status.LoadOrZero()
	if st.Email == email && st.Status == models.StatusPaid {
		return models.SubscriptionStatus{}, fmt.Errorf("%s: %w", op, models.ErrAccountPaid)
	}
	if st.Email == email && st.DemoUsed && st.DemoDate == today {
		return models.SubscriptionStatus{}, fmt.Errorf("%s: %w", op, models.ErrDemoAlreadyUsed)
	}

	resp, err := v.remote.RegisterDemo(ctx, email)
	if err != nil {
		var apiErr *licenseclient.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			if apiErr.Message == models.ErrAccountPaid.Error() {
				return models.SubscriptionStatus{}, fmt.Errorf("%s: %w", op, models.ErrAccountPaid)
			}
			return models.SubscriptionStatus{}, fmt.Errorf("%s: %w", op, models.ErrDemoAlreadyUsed)
		}
		return models.SubscriptionStatus{}, fmt.Errorf("%s: %w", op, err)
	}
	if !resp.Success {
		return models.SubscriptionStatus{}, fmt.Errorf("%s: %w: %s", op, models.ErrDemoAlreadyUsed, resp.Message)
	}

	expire := now.Add(v.opts.DemoDuration)
	if resp.ExpireDate != nil {
		expire = *resp.ExpireDate
	}

	updated, err := v.stores.Status.Update(func(s *models.SubscriptionStatus) error {
		if s.Email != email {
			*s = models.NewEmptyStatus(email, now)
		}
		s.Status = models.StatusDemo
		s.Package = models.TierBasic
		s.ExpireDate = &expire
		s.DemoUsed = true
		s.DemoDate = today
		s.UpdatedAt = &now
		return nil
	})
	if err != nil {
		return models.SubscriptionStatus{}, fmt.Errorf("%s: %w", op, err)
	}

	v.log.Info("demo activated", slog.String("email", email), slog.Time("expire", expire))
	return updated, nil
}

// DemoStatus состояние демо на сервере.
func (v *Validator) DemoStatus(ctx context.Context) (*models.DemoResponse, error) {
	const op = "license.DemoStatus"
	email := v.CurrentEmail()
	if email == "" {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotLoggedIn)
	}
	resp, err := v.remote.DemoStatus(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return resp, nil
}

// CreatePayment создаёт платёж за пакет и возвращает ссылку на оплату.
func (v *Validator) CreatePayment(ctx context.Context, pkg string) (*models.PaymentCreateResponse, error) {
	const op = "license.CreatePayment"
	email := v.CurrentEmail()
	if email == "" {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotLoggedIn)
	}
	resp, err := v.remote.CreatePayment(ctx, email, pkg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return resp, nil
}

// ClearAllCachesForLogout затирает статус и кеш лицензии маркером logged_out,
// удаляет сессионные файлы и email из настроек, чтобы следующий вход
// не унаследовал чужой баланс.
func (v *Validator) ClearAllCachesForLogout() error {
	const op = "license.ClearAllCachesForLogout"
	now := v.opts.Now()
	var errs []error

	if err := v.stores.Status.Save(models.LoggedOutStatus(now)); err != nil {
		errs = append(errs, err)
	}
	err := v.stores.LicenseCache.Save(models.LicenseCache{
		LicenseResult: models.LicenseResult{Tier: models.TierNone, Message: "logged out"},
		Status:        models.StatusLoggedOut,
		CachedAt:      now,
	})
	if err != nil {
		errs = append(errs, err)
	}

	for _, path := range v.stores.Layout.SessionFiles() {
		if err := jsonfile.Remove(path); err != nil {
			errs = append(errs, err)
		}
	}

	if v.stores.Settings.Exists() {
		_, err := v.stores.Settings.Update(func(m *map[string]any) error {
			delete(*m, jsonstore.SettingsKeyEmail)
			return nil
		})
		if err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		v.log.Error("logout sweep incomplete", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	v.log.Info("local caches cleared for logout")
	return nil
}
