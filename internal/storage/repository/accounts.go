package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/cohost-credits/internal/models"
)

const accountColumns = `email, status, tier, credit_balance, credit_used, hours_used,
	expire_date, demo_used, hardware_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		a      models.Account
		expire sql.NullTime
	)
	err := row.Scan(&a.Email, &a.Status, &a.Tier, &a.CreditBalance, &a.CreditUsed, &a.HoursUsed,
		&expire, &a.DemoUsed, &a.HardwareID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if expire.Valid {
		a.ExpireDate = &expire.Time
	}
	return &a, nil
}

// GetAccount возвращает аккаунт по email.
func (s *Storage) GetAccount(ctx context.Context, email string) (*models.Account, error) {
	const op = "storage.GetAccount"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	a, err := scanAccount(s.DB.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

// EnsureAccount создаёт неактивный аккаунт, если его ещё нет, и возвращает текущую запись.
func (s *Storage) EnsureAccount(ctx context.Context, email string, now time.Time) (*models.Account, error) {
	const op = "storage.EnsureAccount"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `INSERT INTO accounts (email, status, tier, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $4)
			  ON CONFLICT (email) DO NOTHING`
	if _, err := s.DB.ExecContext(ctx, query, email, models.StatusInactive, models.TierNone, now); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.GetAccount(ctx, email)
}

// BindHardware привязывает аккаунт к устройству. Остальные поля не трогает.
func (s *Storage) BindHardware(ctx context.Context, email, hardwareID string, now time.Time) error {
	const op = "storage.BindHardware"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	query := `UPDATE accounts SET hardware_id = $2, updated_at = $3 WHERE email = $1`
	res, err := s.DB.ExecContext(ctx, query, email, hardwareID, now)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return nil
}

// ExpireDemo закрывает демо, срок которого истёк к now. Возвращает false, если
// аккаунт уже не в демо (например, оплачен параллельным webhook) или срок не вышел.
func (s *Storage) ExpireDemo(ctx context.Context, email string, now time.Time) (bool, error) {
	const op = "storage.ExpireDemo"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}

	query := `UPDATE accounts
			  SET status = $2, tier = $3, updated_at = $4
			  WHERE email = $1 AND status = $5 AND expire_date <= $4`
	res, err := s.DB.ExecContext(ctx, query, email, models.StatusExpired, models.TierNone, now, models.StatusDemo)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}

// RegisterDemo переводит аккаунт в демо до expire. Демо выдаётся один раз.
func (s *Storage) RegisterDemo(ctx context.Context, email string, expire, now time.Time) error {
	const op = "storage.RegisterDemo"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	query := `UPDATE accounts
			  SET status = $2, tier = $3, expire_date = $4, demo_used = TRUE, updated_at = $5
			  WHERE email = $1 AND demo_used = FALSE AND status <> $6`
	res, err := s.DB.ExecContext(ctx, query, email, models.StatusDemo, models.TierBasic, expire, now, models.StatusPaid)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n > 0 {
		return nil
	}

	var status string
	err = s.DB.QueryRowContext(ctx, `SELECT status FROM accounts WHERE email = $1`, email).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	case err != nil:
		return fmt.Errorf("%s: %w", op, err)
	case models.Status(status) == models.StatusPaid:
		return fmt.Errorf("%s: %w", op, models.ErrAccountPaid)
	}
	return fmt.Errorf("%s: %w", op, models.ErrDemoAlreadyUsed)
}
