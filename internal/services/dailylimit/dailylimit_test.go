package dailylimit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/cohost-credits/internal/lib/logger"
	"github.com/magabrotheeeer/cohost-credits/internal/models"
	"github.com/magabrotheeeer/cohost-credits/internal/storage/jsonstore"
)

func newTestManager(t *testing.T, now *time.Time) (*Manager, *jsonstore.Store[models.DailyUsage]) {
	t.Helper()
	store := jsonstore.New[models.DailyUsage](filepath.Join(t.TempDir(), "daily_usage_limit.json"), logger.Discard())
	return NewManager(store, 10, models.WIB, func() time.Time { return *now }, logger.Discard()), store
}

func TestManager_OneHourSession(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, models.WIB)
	m, store := newTestManager(t, &now)

	m.StartSession()
	now = now.Add(3600 * time.Second)
	session, err := m.EndSession()
	require.NoError(t, err)
	assert.InDelta(t, 3600.0, session.Duration, 1e-9)

	allowed, used, remaining := m.CanStartApp()
	assert.True(t, allowed)
	assert.InDelta(t, 1.0, used, 1e-9)
	assert.InDelta(t, 9.0, remaining, 1e-9)

	usage, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01", usage.Date)
	assert.Len(t, usage.Sessions, 1)
	assert.False(t, usage.IsLimited)
}

func TestManager_EndWithoutStart(t *testing.T) {
	now := time.Now()
	m, _ := newTestManager(t, &now)
	_, err := m.EndSession()
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestManager_StartIsIdempotent(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, models.WIB)
	m, _ := newTestManager(t, &now)

	first := m.StartSession()
	now = now.Add(time.Minute)
	assert.Equal(t, first, m.StartSession())
}

func TestManager_LimitReached(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, models.WIB)
	m, store := newTestManager(t, &now)

	m.StartSession()
	now = now.Add(10 * time.Hour)
	_, err := m.EndSession()
	require.NoError(t, err)

	allowed, used, remaining := m.CanStartApp()
	assert.False(t, allowed)
	assert.InDelta(t, 10.0, used, 1e-9)
	assert.Zero(t, remaining)

	usage, err := store.Load()
	require.NoError(t, err)
	assert.True(t, usage.IsLimited)
}

func TestManager_ResetOnDateChange(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		reset   bool
	}{
		{name: "same WIB day", advance: 6 * time.Hour, reset: false},
		{name: "next WIB day", advance: 14 * time.Hour, reset: true},
		{name: "many days later", advance: 9 * 24 * time.Hour, reset: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// 10:00 WIB == 03:00 UTC
			now := time.Date(2025, 3, 1, 3, 0, 0, 0, time.UTC)
			m, _ := newTestManager(t, &now)

			m.StartSession()
			now = now.Add(time.Hour)
			_, err := m.EndSession()
			require.NoError(t, err)

			now = now.Add(tt.advance)
			_, used, _ := m.CanStartApp()
			if tt.reset {
				assert.Zero(t, used)
			} else {
				assert.InDelta(t, 1.0, used, 1e-9)
			}
		})
	}
}

func TestManager_SessionCrossingMidnightBookedToEndDay(t *testing.T) {
	now := time.Date(2025, 3, 1, 23, 0, 0, 0, models.WIB)
	m, store := newTestManager(t, &now)

	m.StartSession()
	now = now.Add(2 * time.Hour)
	_, err := m.EndSession()
	require.NoError(t, err)

	usage, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "2025-03-02", usage.Date)
	assert.InDelta(t, 2.0, usage.TotalHoursUsed, 1e-9)
}

func TestManager_StatusCountsActiveSession(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, models.WIB)
	m, _ := newTestManager(t, &now)

	m.StartSession()
	now = now.Add(30 * time.Minute)

	st := m.Status()
	assert.True(t, st.SessionActive)
	assert.InDelta(t, 0.5, st.UsedHours, 1e-9)
	assert.InDelta(t, 9.5, st.RemainingHours, 1e-9)
	assert.InDelta(t, 10.0, st.MaxHours, 1e-9)

	_, used, _ := m.CanStartApp()
	assert.Zero(t, used)
}
