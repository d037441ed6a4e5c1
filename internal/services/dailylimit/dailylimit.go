// Package dailylimit ограничивает суммарное время работы приложения за сутки.
// Сутки отсчитываются в фиксированном часовом поясе (по умолчанию Asia/Jakarta)
// и не зависят от баланса кредитов.
package dailylimit

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/magabrotheeeer/cohost-credits/internal/lib/sl"
	"github.com/magabrotheeeer/cohost-credits/internal/models"
)

// ErrNoActiveSession завершение сессии, которая не была начата.
var ErrNoActiveSession = errors.New("no active session")

// Store хранилище дневного учёта.
type Store interface {
	LoadOrZero() models.DailyUsage
	Update(fn func(*models.DailyUsage) error) (models.DailyUsage, error)
}

// Manager учитывает сессии работы приложения.
type Manager struct {
	store    Store
	maxHours float64
	loc      *time.Location
	now      func() time.Time
	log      *slog.Logger

	mu     sync.Mutex
	active *time.Time
}

// NewManager создаёт менеджер. maxHours <= 0 заменяется на 10 часов.
func NewManager(store Store, maxHours float64, loc *time.Location, now func() time.Time, log *slog.Logger) *Manager {
	if maxHours <= 0 {
		maxHours = 10
	}
	if loc == nil {
		loc = models.WIB
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store:    store,
		maxHours: maxHours,
		loc:      loc,
		now:      now,
		log:      log,
	}
}

// StartSession отмечает начало сессии. Повторный вызов при активной сессии
// возвращает время её начала.
func (m *Manager) StartSession() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return *m.active
	}
	start := m.now()
	m.active = &start
	m.log.Info("session started", slog.Time("start", start))
	return start
}

// EndSession закрывает активную сессию и добавляет её длительность к дню,
// в котором она закончилась.
func (m *Manager) EndSession() (models.Session, error) {
	const op = "dailylimit.EndSession"
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return models.Session{}, fmt.Errorf("%s: %w", op, ErrNoActiveSession)
	}

	end := m.now()
	session := models.Session{
		Start:    *m.active,
		End:      end,
		Duration: max(0, end.Sub(*m.active).Seconds()),
	}
	today := models.DateKey(end, m.loc)

	usage, err := m.store.Update(func(d *models.DailyUsage) error {
		d.ResetIfStale(today)
		d.Sessions = append(d.Sessions, session)
		d.TotalHoursUsed += session.Duration / 3600
		d.IsLimited = d.TotalHoursUsed >= m.maxHours
		return nil
	})
	if err != nil {
		return models.Session{}, fmt.Errorf("%s: %w", op, err)
	}
	m.active = nil

	m.log.Info("session ended",
		slog.Float64("duration_sec", session.Duration),
		slog.Float64("total_hours", usage.TotalHoursUsed),
	)
	return session, nil
}

// CanStartApp возвращает, можно ли запустить приложение, и сколько часов
// использовано и осталось сегодня. Устаревший день сбрасывается.
func (m *Manager) CanStartApp() (bool, float64, float64) {
	st := m.status(false)
	return st.Allowed, st.UsedHours, st.RemainingHours
}

// Status текущее состояние лимита с учётом идущей сессии.
func (m *Manager) Status() models.LimitStatus {
	return m.status(true)
}

func (m *Manager) status(includeActive bool) models.LimitStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	today := models.DateKey(now, m.loc)
	usage := m.store.LoadOrZero()
	if usage.Date != today {
		var err error
		usage, err = m.store.Update(func(d *models.DailyUsage) error {
			d.ResetIfStale(today)
			return nil
		})
		if err != nil {
			m.log.Warn("failed to reset daily usage", sl.Err(err))
			usage = models.DailyUsage{Date: today}
		}
	}

	used := usage.TotalHoursUsed
	if includeActive && m.active != nil {
		used += max(0, now.Sub(*m.active).Hours())
	}
	return models.LimitStatus{
		Allowed:        used < m.maxHours,
		UsedHours:      used,
		RemainingHours: max(0, m.maxHours-used),
		MaxHours:       m.maxHours,
		SessionActive:  m.active != nil,
	}
}

// Usage дневной учёт без сброса, для отчётов.
func (m *Manager) Usage() models.DailyUsage {
	return m.store.LoadOrZero()
}
