// Package outbox реализует долговременную очередь списаний, ещё не подтверждённых сервером.
// Записи переживают падение процесса и офлайн и удаляются только после ответа сервера.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/magabrotheeeer/cohost-credits/internal/models"
)

// ErrNotFound запись отсутствует.
var ErrNotFound = errors.New("outbox entry not found")

type record struct {
	ID              string `gorm:"primaryKey;size:36"`
	Email           string `gorm:"index;not null"`
	CreditsUsed     float64
	HoursUsed       float64
	CreatedAt       time.Time
	CreatedUnix     int64 `gorm:"index"`
	Attempts        int
	LastError       string
	NextAttemptUnix int64 `gorm:"index"`
	Dead            bool  `gorm:"index"`
}

func (record) TableName() string { return "usage_outbox" }

// Outbox очередь на SQLite.
type Outbox struct {
	db  *gorm.DB
	now func() time.Time
}

// Open открывает (и при необходимости создаёт) файл очереди.
func Open(path string) (*Outbox, error) {
	const op = "outbox.Open"
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ob, err := New(db)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ob, nil
}

// New создаёт очередь поверх готового соединения и мигрирует схему.
func New(db *gorm.DB) (*Outbox, error) {
	const op = "outbox.New"
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// SQLite допускает одного писателя; для :memory: это ещё и одна и та же база.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&record{}); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Outbox{db: db, now: time.Now}, nil
}

// WithClock подменяет часы. Используется в тестах.
func (o *Outbox) WithClock(now func() time.Time) *Outbox {
	o.now = now
	return o
}

// Close закрывает соединение.
func (o *Outbox) Close() error {
	sqlDB, err := o.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Enqueue добавляет списание. Пустой ID заменяется на uuid, пустое время на текущее.
func (o *Outbox) Enqueue(ctx context.Context, d models.UsageDelta) (models.UsageDelta, error) {
	const op = "outbox.Enqueue"
	if d.Email == "" {
		return models.UsageDelta{}, fmt.Errorf("%s: empty email", op)
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = o.now()
	}
	rec := record{
		ID:              d.ID,
		Email:           d.Email,
		CreditsUsed:     d.CreditsUsed,
		HoursUsed:       d.HoursUsed,
		CreatedAt:       d.Timestamp.UTC(),
		CreatedUnix:     d.Timestamp.UnixNano(),
		NextAttemptUnix: d.Timestamp.UnixNano(),
	}
	if err := o.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return models.UsageDelta{}, fmt.Errorf("%s: %w", op, err)
	}
	return d, nil
}

// Due возвращает не более limit записей, время повторной попытки которых наступило.
func (o *Outbox) Due(ctx context.Context, limit int) ([]models.UsageDelta, error) {
	const op = "outbox.Due"
	var recs []record
	err := o.db.WithContext(ctx).
		Where("dead = ? AND next_attempt_unix <= ?", false, o.now().UnixNano()).
		Order("created_unix ASC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out := make([]models.UsageDelta, 0, len(recs))
	for _, r := range recs {
		out = append(out, toDelta(r))
	}
	return out, nil
}

// Ack удаляет подтверждённую сервером запись.
func (o *Outbox) Ack(ctx context.Context, id string) error {
	const op = "outbox.Ack"
	res := o.db.WithContext(ctx).Delete(&record{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("%s: %w", op, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// Fail фиксирует неудачную попытку. После maxAttempts запись помечается мёртвой
// и больше не выбирается Due. Возвращает true, если запись стала мёртвой.
func (o *Outbox) Fail(ctx context.Context, id string, cause error, next time.Time, maxAttempts int) (bool, error) {
	const op = "outbox.Fail"
	var dead bool
	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec record
		if err := tx.First(&rec, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		rec.Attempts++
		if cause != nil {
			rec.LastError = cause.Error()
		}
		rec.NextAttemptUnix = next.UnixNano()
		rec.Dead = maxAttempts > 0 && rec.Attempts >= maxAttempts
		dead = rec.Dead
		return tx.Save(&rec).Error
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return dead, nil
}

// PendingCredits сумма неподтверждённых списаний пользователя без мёртвых записей.
func (o *Outbox) PendingCredits(ctx context.Context, email string) (float64, error) {
	const op = "outbox.PendingCredits"
	var total float64
	err := o.db.WithContext(ctx).Model(&record{}).
		Where("email = ? AND dead = ?", email, false).
		Select("COALESCE(SUM(credits_used), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return total, nil
}

// Stats количество живых и мёртвых записей.
func (o *Outbox) Stats(ctx context.Context) (pending, dead int64, err error) {
	const op = "outbox.Stats"
	if err = o.db.WithContext(ctx).Model(&record{}).Where("dead = ?", false).Count(&pending).Error; err != nil {
		return 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	if err = o.db.WithContext(ctx).Model(&record{}).Where("dead = ?", true).Count(&dead).Error; err != nil {
		return 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	return pending, dead, nil
}

func toDelta(r record) models.UsageDelta {
	return models.UsageDelta{
		ID:          r.ID,
		Email:       r.Email,
		CreditsUsed: r.CreditsUsed,
		HoursUsed:   r.HoursUsed,
		Timestamp:   time.Unix(0, r.CreatedUnix),
		Attempts:    r.Attempts,
	}
}
