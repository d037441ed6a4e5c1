package jsonstore

import (
	"log/slog"
	"path/filepath"

	"github.com/magabrotheeeer/cohost-credits/internal/models"
)

// Layout раскладка локальных файлов агента.
type Layout struct {
	ConfigDir string
	TempDir   string
}

// SubscriptionStatus config/subscription_status.json
func (l Layout) SubscriptionStatus() string {
	return filepath.Join(l.ConfigDir, "subscription_status.json")
}

// Settings config/settings.json
func (l Layout) Settings() string {
	return filepath.Join(l.ConfigDir, "settings.json")
}

// DailyUsage temp/daily_usage.json
func (l Layout) DailyUsage() string {
	return filepath.Join(l.TempDir, "daily_usage.json")
}

// LicenseCache temp/license_cache.json
func (l Layout) LicenseCache() string {
	return filepath.Join(l.TempDir, "license_cache.json")
}

// DailyLimit temp/daily_usage_limit.json
func (l Layout) DailyLimit() string {
	return filepath.Join(l.TempDir, "daily_usage_limit.json")
}

// SessionFiles кеши и сессионные файлы, которые удаляются при выходе из аккаунта.
// Статус подписки и кеш лицензии сюда не входят: они перезаписываются маркером.
func (l Layout) SessionFiles() []string {
	return []string{
		l.DailyUsage(),
		filepath.Join(l.TempDir, "credit_cache.json"),
		filepath.Join(l.TempDir, "user_session.json"),
		filepath.Join(l.TempDir, "session_cache.json"),
		filepath.Join(l.TempDir, "demo_status.json"),
		filepath.Join(l.TempDir, "last_validation.json"),
		filepath.Join(l.TempDir, "usage_sync_state.json"),
		filepath.Join(l.ConfigDir, "google_token.json"),
		filepath.Join(l.ConfigDir, "user_profile.json"),
	}
}

// Stores набор типизированных хранилищ агента.
type Stores struct {
	Layout       Layout
	Status       *Store[models.SubscriptionStatus]
	Settings     *Store[map[string]any]
	Histogram    *Store[models.UsageHistogram]
	DailyLimit   *Store[models.DailyUsage]
	LicenseCache *Store[models.LicenseCache]
}

// NewStores создаёт все хранилища по раскладке l.
func NewStores(l Layout, log *slog.Logger) *Stores {
	return &Stores{
		Layout:       l,
		Status:       New[models.SubscriptionStatus](l.SubscriptionStatus(), log),
		Settings:     New[map[string]any](l.Settings(), log),
		Histogram:    New[models.UsageHistogram](l.DailyUsage(), log),
		DailyLimit:   New[models.DailyUsage](l.DailyLimit(), log),
		LicenseCache: New[models.LicenseCache](l.LicenseCache(), log),
	}
}

// SettingsKeyEmail ключ email пользователя в settings.json.
const SettingsKeyEmail = "user_email"
