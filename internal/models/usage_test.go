package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageHistogram_Record(t *testing.T) {
	var h UsageHistogram
	h.ResetIfStale("2025-05-01")

	now := time.Now()
	h.Record(UsageEvent{Timestamp: now, Component: ComponentAI, Units: 100, Credits: 3})
	h.Record(UsageEvent{Timestamp: now, Component: ComponentAI, Units: 50, Credits: 2.25})
	h.Record(UsageEvent{Timestamp: now, Component: ComponentTTS, Variant: "premium", Units: 10, Credits: 0.12})

	require.Contains(t, h.Components, ComponentAI)
	assert.Equal(t, 2, h.Components[ComponentAI].Count)
	assert.InDelta(t, 150.0, h.Components[ComponentAI].Units, 1e-9)
	assert.InDelta(t, 5.37, h.TotalCredits, 1e-9)
	assert.Len(t, h.Events, 3)
}

func TestUsageHistogram_ResetIfStale(t *testing.T) {
	h := UsageHistogram{Date: "2025-05-01", Components: map[Component]*ComponentUsage{ComponentSTT: {Count: 1}}}

	assert.False(t, h.ResetIfStale("2025-05-01"))
	assert.Len(t, h.Components, 1)

	assert.True(t, h.ResetIfStale("2025-05-09"))
	assert.Equal(t, "2025-05-09", h.Date)
	assert.Empty(t, h.Components)
	assert.Zero(t, h.TotalCredits)
}

func TestParseTimestamp(t *testing.T) {
	got, err := ParseTimestamp("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ParseTimestamp("2025-01-02T03:04:05Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), got.UTC())

	got, err = ParseTimestamp("2025-01-02 10:00:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 2, 3, 0, 0, 0, time.UTC), got.UTC())
}

func TestDateKey(t *testing.T) {
	utcLate := time.Date(2025, 1, 1, 18, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-01-02", DateKey(utcLate, WIB))
	assert.Equal(t, "2025-01-01", DateKey(utcLate, time.UTC))
}
