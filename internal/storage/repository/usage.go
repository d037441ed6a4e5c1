package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/cohost-credits/internal/models"
)

// ApplyUsage списывает кредиты по событию использования. Повторное событие с тем же
// event_id ничего не меняет и возвращает duplicate=true. Баланс не уходит ниже нуля.
func (s *Storage) ApplyUsage(ctx context.Context, rec models.UsageRecord) (remaining float64, duplicate bool, err error) {
	const op = "storage.ApplyUsage"
	if err := checkCtx(ctx, op); err != nil {
		return 0, false, err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var balance float64
	err = tx.QueryRowContext(ctx,
		`SELECT credit_balance FROM accounts WHERE email = $1 FOR UPDATE`, rec.Email).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = models.ErrNotFound
		}
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO usage_events (event_id, email, credits_used, hours_used, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (event_id) DO NOTHING`,
		rec.EventID, rec.Email, rec.CreditsUsed, rec.HoursUsed, rec.OccurredAt)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}

	if inserted == 0 {
		if err = tx.Commit(); err != nil {
			return 0, false, fmt.Errorf("%s: %w", op, err)
		}
		return balance, true, nil
	}

	err = tx.QueryRowContext(ctx,
		`UPDATE accounts
		 SET credit_balance = GREATEST(0, credit_balance - $2),
		     credit_used = credit_used + $2,
		     hours_used = hours_used + $3,
		     updated_at = NOW()
		 WHERE email = $1
		 RETURNING credit_balance`,
		rec.Email, rec.CreditsUsed, rec.HoursUsed).Scan(&remaining)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	if err = tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	return remaining, false, nil
}

// ListUsage события использования аккаунта, новые первыми.
func (s *Storage) ListUsage(ctx context.Context, email string, limit int) ([]models.UsageRecord, error) {
	const op = "storage.ListUsage"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT event_id, email, credits_used, hours_used, occurred_at
		 FROM usage_events
		 WHERE email = $1
		 ORDER BY occurred_at DESC
		 LIMIT $2`, email, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []models.UsageRecord
	for rows.Next() {
		var r models.UsageRecord
		if err := rows.Scan(&r.EventID, &r.Email, &r.CreditsUsed, &r.HoursUsed, &r.OccurredAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}
