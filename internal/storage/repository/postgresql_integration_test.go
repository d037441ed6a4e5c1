package repository

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/cohost-credits/internal/migrations"
	"github.com/magabrotheeeer/cohost-credits/internal/models"
)

func setupTestDatabase(t *testing.T) *Storage {
	t.Helper()
	if testing.Short() || os.Getenv("SKIP_CONTAINER_TESTS") == "1" {
		t.Skip("container tests disabled")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	root, err := filepath.Abs("../../..")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(db, filepath.Join(root, "migrations")))

	s := NewWithDB(db)
	require.NoError(t, CheckDatabaseReady(ctx, s))
	return s
}

func TestIntegration_UsageLedger(t *testing.T) {
	s := setupTestDatabase(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	acc, err := s.EnsureAccount(ctx, "a@b.c", now)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInactive, acc.Status)

	// повторный вызов не пересоздаёт аккаунт
	_, err = s.EnsureAccount(ctx, "a@b.c", now.Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, s.CreatePayment(ctx, models.Payment{
		ID: "pay-1", Email: "a@b.c", Package: "basic", Credits: 100,
		Amount: "100000.00", Currency: "IDR", Status: models.PaymentPending, CreatedAt: now,
	}))
	_, balance, applied, err := s.CompletePayment(ctx, "pay-1")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.InDelta(t, 100.0, balance, 1e-9)

	_, _, applied, err = s.CompletePayment(ctx, "pay-1")
	require.NoError(t, err)
	assert.False(t, applied)

	rec := models.UsageRecord{EventID: "evt-1", Email: "a@b.c", CreditsUsed: 3, HoursUsed: 3, OccurredAt: now}
	remaining, dup, err := s.ApplyUsage(ctx, rec)
	require.NoError(t, err)
	assert.False(t, dup)
	assert.InDelta(t, 97.0, remaining, 1e-9)

	remaining, dup, err = s.ApplyUsage(ctx, rec)
	require.NoError(t, err)
	assert.True(t, dup)
	assert.InDelta(t, 97.0, remaining, 1e-9)

	remaining, _, err = s.ApplyUsage(ctx, models.UsageRecord{EventID: "evt-2", Email: "a@b.c", CreditsUsed: 500, OccurredAt: now})
	require.NoError(t, err)
	assert.Zero(t, remaining)

	events, err := s.ListUsage(ctx, "a@b.c", 10)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	acc, err = s.GetAccount(ctx, "a@b.c")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, acc.Status)
	assert.InDelta(t, 503.0, acc.CreditUsed, 1e-9)
}

func TestIntegration_DemoOnce(t *testing.T) {
	s := setupTestDatabase(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := s.EnsureAccount(ctx, "demo@b.c", now)
	require.NoError(t, err)

	require.NoError(t, s.RegisterDemo(ctx, "demo@b.c", now.Add(30*time.Minute), now))
	err = s.RegisterDemo(ctx, "demo@b.c", now.Add(time.Hour), now)
	assert.ErrorIs(t, err, models.ErrDemoAlreadyUsed)

	acc, err := s.GetAccount(ctx, "demo@b.c")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDemo, acc.Status)
	assert.True(t, acc.DemoUsed)
}

func TestIntegration_DemoRefusedForPaidAccount(t *testing.T) {
	s := setupTestDatabase(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := s.EnsureAccount(ctx, "paid@b.c", now)
	require.NoError(t, err)
	_, err = s.DB.ExecContext(ctx,
		`UPDATE accounts SET status = 'paid', tier = 'pro', credit_balance = 50 WHERE email = $1`, "paid@b.c")
	require.NoError(t, err)

	err = s.RegisterDemo(ctx, "paid@b.c", now.Add(30*time.Minute), now)
	assert.ErrorIs(t, err, models.ErrAccountPaid)

	acc, err := s.GetAccount(ctx, "paid@b.c")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, acc.Status)
	assert.InDelta(t, 50.0, acc.CreditBalance, 0.001)
	assert.False(t, acc.DemoUsed)
}

func TestIntegration_ExpireDemoKeepsPayment(t *testing.T) {
	s := setupTestDatabase(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := s.EnsureAccount(ctx, "race@b.c", now)
	require.NoError(t, err)
	require.NoError(t, s.RegisterDemo(ctx, "race@b.c", now.Add(-time.Minute), now.Add(-time.Hour)))

	// webhook успел перевести аккаунт в paid между чтением и записью
	_, err = s.DB.ExecContext(ctx,
		`UPDATE accounts SET status = 'paid', tier = 'pro', credit_balance = 300 WHERE email = $1`, "race@b.c")
	require.NoError(t, err)

	applied, err := s.ExpireDemo(ctx, "race@b.c", now)
	require.NoError(t, err)
	assert.False(t, applied)
	require.NoError(t, s.BindHardware(ctx, "race@b.c", "hw-9", now))

	acc, err := s.GetAccount(ctx, "race@b.c")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, acc.Status)
	assert.Equal(t, models.TierPro, acc.Tier)
	assert.InDelta(t, 300.0, acc.CreditBalance, 0.001)
	assert.Equal(t, "hw-9", acc.HardwareID)
}
