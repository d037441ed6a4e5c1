package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/cohost-credits/internal/models"
)

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

var accountCols = []string{"email", "status", "tier", "credit_balance", "credit_used", "hours_used",
	"expire_date", "demo_used", "hardware_id", "created_at", "updated_at"}

func TestStorage_GetAccount(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectQuery(regexp.QuoteMeta(`FROM accounts WHERE email = $1`)).
			WithArgs("a@b.c").
			WillReturnRows(sqlmock.NewRows(accountCols).
				AddRow("a@b.c", "paid", "pro", 12.5, 3.0, 3.0, nil, false, "hw", now, now))

		acc, err := s.GetAccount(context.Background(), "a@b.c")
		require.NoError(t, err)
		assert.Equal(t, models.StatusPaid, acc.Status)
		assert.Equal(t, models.TierPro, acc.Tier)
		assert.InDelta(t, 12.5, acc.CreditBalance, 1e-9)
		assert.Nil(t, acc.ExpireDate)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectQuery(regexp.QuoteMeta(`FROM accounts WHERE email = $1`)).
			WithArgs("x@y.z").
			WillReturnError(sql.ErrNoRows)

		_, err := s.GetAccount(context.Background(), "x@y.z")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("cancelled context", func(t *testing.T) {
		s, _ := newMockStorage(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := s.GetAccount(ctx, "a@b.c")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestStorage_ApplyUsage(t *testing.T) {
	rec := models.UsageRecord{
		EventID:     "evt-1",
		Email:       "a@b.c",
		CreditsUsed: 3,
		HoursUsed:   3,
		OccurredAt:  time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
	}

	t.Run("applied", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT credit_balance FROM accounts WHERE email = $1 FOR UPDATE`)).
			WithArgs("a@b.c").
			WillReturnRows(sqlmock.NewRows([]string{"credit_balance"}).AddRow(10.0))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO usage_events`)).
			WithArgs("evt-1", "a@b.c", 3.0, 3.0, rec.OccurredAt).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE accounts`)).
			WithArgs("a@b.c", 3.0, 3.0).
			WillReturnRows(sqlmock.NewRows([]string{"credit_balance"}).AddRow(7.0))
		mock.ExpectCommit()

		remaining, dup, err := s.ApplyUsage(context.Background(), rec)
		require.NoError(t, err)
		assert.False(t, dup)
		assert.InDelta(t, 7.0, remaining, 1e-9)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate event", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT credit_balance FROM accounts`)).
			WillReturnRows(sqlmock.NewRows([]string{"credit_balance"}).AddRow(7.0))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO usage_events`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		remaining, dup, err := s.ApplyUsage(context.Background(), rec)
		require.NoError(t, err)
		assert.True(t, dup)
		assert.InDelta(t, 7.0, remaining, 1e-9)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown account", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT credit_balance FROM accounts`)).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, _, err := s.ApplyUsage(context.Background(), rec)
		assert.ErrorIs(t, err, models.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert failure rolls back", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT credit_balance FROM accounts`)).
			WillReturnRows(sqlmock.NewRows([]string{"credit_balance"}).AddRow(7.0))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO usage_events`)).
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		_, _, err := s.ApplyUsage(context.Background(), rec)
		assert.Error(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStorage_RegisterDemo(t *testing.T) {
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	expire := now.Add(30 * time.Minute)

	t.Run("first demo", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectExec(regexp.QuoteMeta(`WHERE email = $1 AND demo_used = FALSE AND status <> $6`)).
			WithArgs("a@b.c", models.StatusDemo, models.TierBasic, expire, now, models.StatusPaid).
			WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, s.RegisterDemo(context.Background(), "a@b.c", expire, now))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already used", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectExec(regexp.QuoteMeta(`WHERE email = $1 AND demo_used = FALSE AND status <> $6`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM accounts WHERE email = $1`)).
			WithArgs("a@b.c").
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("expired"))
		err := s.RegisterDemo(context.Background(), "a@b.c", expire, now)
		assert.ErrorIs(t, err, models.ErrDemoAlreadyUsed)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("paid account keeps its state", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectExec(regexp.QuoteMeta(`WHERE email = $1 AND demo_used = FALSE AND status <> $6`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM accounts WHERE email = $1`)).
			WithArgs("a@b.c").
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("paid"))
		err := s.RegisterDemo(context.Background(), "a@b.c", expire, now)
		assert.ErrorIs(t, err, models.ErrAccountPaid)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing account", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectExec(regexp.QuoteMeta(`WHERE email = $1 AND demo_used = FALSE AND status <> $6`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM accounts WHERE email = $1`)).
			WillReturnError(sql.ErrNoRows)
		err := s.RegisterDemo(context.Background(), "a@b.c", expire, now)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestStorage_CompletePayment(t *testing.T) {
	created := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	payCols := []string{"id", "email", "package", "credits", "amount", "currency", "status", "created_at"}

	t.Run("pending is credited", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`FROM payments WHERE id = $1 FOR UPDATE`)).
			WithArgs("pay-1").
			WillReturnRows(sqlmock.NewRows(payCols).AddRow("pay-1", "a@b.c", "pro", 300.0, "250000.00", "IDR", "pending", created))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE payments SET status = $2 WHERE id = $1`)).
			WithArgs("pay-1", models.PaymentSucceeded).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta(`SET credit_balance = credit_balance + $2`)).
			WithArgs("a@b.c", 300.0, models.StatusPaid, "pro").
			WillReturnRows(sqlmock.NewRows([]string{"credit_balance"}).AddRow(305.0))
		mock.ExpectCommit()

		p, balance, applied, err := s.CompletePayment(context.Background(), "pay-1")
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, models.PaymentSucceeded, p.Status)
		assert.InDelta(t, 305.0, balance, 1e-9)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already succeeded", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`FROM payments WHERE id = $1 FOR UPDATE`)).
			WillReturnRows(sqlmock.NewRows(payCols).AddRow("pay-1", "a@b.c", "pro", 300.0, "250000.00", "IDR", "succeeded", created))
		mock.ExpectCommit()

		_, _, applied, err := s.CompletePayment(context.Background(), "pay-1")
		require.NoError(t, err)
		assert.False(t, applied)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown payment", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`FROM payments WHERE id = $1 FOR UPDATE`)).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, _, _, err := s.CompletePayment(context.Background(), "nope")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestStorage_BindHardware(t *testing.T) {
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	t.Run("only hardware id is written", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE accounts SET hardware_id = $2, updated_at = $3 WHERE email = $1`)).
			WithArgs("a@b.c", "hw-2", now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, s.BindHardware(context.Background(), "a@b.c", "hw-2", now))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE accounts SET hardware_id`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		err := s.BindHardware(context.Background(), "a@b.c", "hw-2", now)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestStorage_ExpireDemo(t *testing.T) {
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	t.Run("expired demo closed", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectExec(regexp.QuoteMeta(`WHERE email = $1 AND status = $5 AND expire_date <= $4`)).
			WithArgs("a@b.c", models.StatusExpired, models.TierNone, now, models.StatusDemo).
			WillReturnResult(sqlmock.NewResult(0, 1))
		applied, err := s.ExpireDemo(context.Background(), "a@b.c", now)
		require.NoError(t, err)
		assert.True(t, applied)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("status changed concurrently", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectExec(regexp.QuoteMeta(`WHERE email = $1 AND status = $5 AND expire_date <= $4`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		applied, err := s.ExpireDemo(context.Background(), "a@b.c", now)
		require.NoError(t, err)
		assert.False(t, applied)
	})
}
