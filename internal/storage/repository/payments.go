package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/cohost-credits/internal/models"
)

// CreatePayment сохраняет платёж в статусе pending.
func (s *Storage) CreatePayment(ctx context.Context, p models.Payment) error {
	const op = "storage.CreatePayment"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	query := `INSERT INTO payments (id, email, package, credits, amount, currency, status, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.DB.ExecContext(ctx, query,
		p.ID, p.Email, p.Package, p.Credits, p.Amount, p.Currency, p.Status, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CompletePayment помечает pending-платёж успешным и начисляет кредиты пакета,
// переводя аккаунт в paid. Для уже обработанного платежа applied=false и баланс
// не меняется.
func (s *Storage) CompletePayment(ctx context.Context, id string) (p *models.Payment, balance float64, applied bool, err error) {
	const op = "storage.CompletePayment"
	if err := checkCtx(ctx, op); err != nil {
		return nil, 0, false, err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, false, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var pay models.Payment
	err = tx.QueryRowContext(ctx,
		`SELECT id, email, package, credits, amount, currency, status, created_at
		 FROM payments WHERE id = $1 FOR UPDATE`, id).
		Scan(&pay.ID, &pay.Email, &pay.Package, &pay.Credits, &pay.Amount, &pay.Currency, &pay.Status, &pay.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = models.ErrNotFound
		}
		return nil, 0, false, fmt.Errorf("%s: %w", op, err)
	}

	if pay.Status != models.PaymentPending {
		if err = tx.Commit(); err != nil {
			return nil, 0, false, fmt.Errorf("%s: %w", op, err)
		}
		return &pay, 0, false, nil
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE payments SET status = $2 WHERE id = $1`, id, models.PaymentSucceeded); err != nil {
		return nil, 0, false, fmt.Errorf("%s: %w", op, err)
	}
	err = tx.QueryRowContext(ctx,
		`UPDATE accounts
		 SET credit_balance = credit_balance + $2, status = $3, tier = $4, updated_at = NOW()
		 WHERE email = $1
		 RETURNING credit_balance`,
		pay.Email, pay.Credits, models.StatusPaid, pay.Package).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = models.ErrNotFound
		}
		return nil, 0, false, fmt.Errorf("%s: %w", op, err)
	}
	if err = tx.Commit(); err != nil {
		return nil, 0, false, fmt.Errorf("%s: %w", op, err)
	}
	pay.Status = models.PaymentSucceeded
	return &pay, balance, true, nil
}

// SetPaymentStatus меняет статус pending-платежа (например, на canceled).
func (s *Storage) SetPaymentStatus(ctx context.Context, id, status string) error {
	const op = "storage.SetPaymentStatus"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	res, err := s.DB.ExecContext(ctx,
		`UPDATE payments SET status = $2 WHERE id = $1 AND status = $3`, id, status, models.PaymentPending)
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
