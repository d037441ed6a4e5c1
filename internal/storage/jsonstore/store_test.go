package jsonstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/cohost-credits/internal/lib/logger"
	"github.com/magabrotheeeer/cohost-credits/internal/models"
)

func newTestStores(t *testing.T) *Stores {
	t.Helper()
	root := t.TempDir()
	return NewStores(Layout{
		ConfigDir: filepath.Join(root, "config"),
		TempDir:   filepath.Join(root, "temp"),
	}, logger.Discard())
}

func TestStore_LoadMissing(t *testing.T) {
	s := newTestStores(t)

	st, err := s.Status.Load()
	assert.True(t, errors.Is(err, ErrNotExist))
	assert.Equal(t, models.SubscriptionStatus{}, st)
	assert.False(t, s.Status.Exists())
}

func TestStore_SaveLoad(t *testing.T) {
	s := newTestStores(t)

	in := models.SubscriptionStatus{Email: "a@b.c", Status: models.StatusPaid, Package: models.TierPro, CreditBalance: 10}
	require.NoError(t, s.Status.Save(in))

	out, err := s.Status.Load()
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestStore_UpdateAppliesAndPersists(t *testing.T) {
	s := newTestStores(t)
	require.NoError(t, s.Status.Save(models.SubscriptionStatus{Email: "a@b.c", CreditBalance: 10}))

	got, err := s.Status.Update(func(st *models.SubscriptionStatus) error {
		st.ApplyDebit(3)
		return nil
	})
	require.NoError(t, err)
	assert.InDelta(t, 7.0, got.CreditBalance, 1e-9)

	out, err := s.Status.Load()
	require.NoError(t, err)
	assert.InDelta(t, 7.0, out.CreditBalance, 1e-9)
	assert.InDelta(t, 3.0, out.CreditUsed, 1e-9)
}

func TestStore_UpdateErrorKeepsFile(t *testing.T) {
	s := newTestStores(t)
	require.NoError(t, s.Status.Save(models.SubscriptionStatus{Email: "a@b.c", CreditBalance: 10}))

	boom := errors.New("abort")
	_, err := s.Status.Update(func(st *models.SubscriptionStatus) error {
		st.CreditBalance = 0
		return boom
	})
	assert.ErrorIs(t, err, boom)

	out, err := s.Status.Load()
	require.NoError(t, err)
	assert.InDelta(t, 10.0, out.CreditBalance, 1e-9)
}

func TestStore_CorruptFileFallsBackToZero(t *testing.T) {
	s := newTestStores(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Status.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Status.Path(), []byte("{not json"), 0o600))

	assert.Equal(t, models.SubscriptionStatus{}, s.Status.LoadOrZero())

	got, err := s.Status.Update(func(st *models.SubscriptionStatus) error {
		st.Email = "fresh@b.c"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh@b.c", got.Email)
}

func TestLayout_Paths(t *testing.T) {
	l := Layout{ConfigDir: "config", TempDir: "temp"}
	assert.Equal(t, filepath.Join("config", "subscription_status.json"), l.SubscriptionStatus())
	assert.Equal(t, filepath.Join("temp", "daily_usage_limit.json"), l.DailyLimit())
	assert.Equal(t, filepath.Join("temp", "license_cache.json"), l.LicenseCache())
	assert.Contains(t, l.SessionFiles(), l.DailyUsage())
	assert.NotContains(t, l.SessionFiles(), l.SubscriptionStatus())
}
