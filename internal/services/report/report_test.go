package report

import (
	"bytes"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/magabrotheeeer/cohost-credits/internal/models"
)

func sampleInput() Input {
	loc := time.FixedZone("WIB", 7*60*60)
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, loc)

	h := models.UsageHistogram{}
	h.ResetIfStale("2025-03-10")
	h.Record(models.UsageEvent{Timestamp: start, Component: models.ComponentAI, Units: 100, Credits: 3})
	h.Record(models.UsageEvent{Timestamp: start.Add(time.Minute), Component: models.ComponentSTT, Variant: "premium", Units: 10, Credits: 0.6})

	return Input{
		Status: models.SubscriptionStatus{
			Email: "host@example.com", Status: models.StatusPaid, Package: models.TierPro, CreditBalance: 96.4, CreditUsed: 3.6,
		},
		Histogram: h,
		Daily: models.DailyUsage{
			Date:           "2025-03-10",
			TotalHoursUsed: 1.5,
			Sessions: []models.Session{
				{Start: start, End: start.Add(90 * time.Minute), Duration: 5400},
			},
		},
		Location: loc,
	}
}

func TestExport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, sampleInput()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{SheetSummary, SheetEvents, SheetSessions}, f.GetSheetList())

	summary, err := f.GetRows(SheetSummary)
	require.NoError(t, err)
	assert.Equal(t, []string{"Metric", "Value"}, summary[0])
	assert.Equal(t, []string{"Email", "host@example.com"}, summary[1])
	assert.Contains(t, summary, []string{"ai credits (1 calls)", "3"})

	events, err := f.GetRows(SheetEvents)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []string{"1", "2025-03-10 09:00:00", "ai", "", "100", "3"}, events[1])
	assert.Equal(t, "premium", events[2][3])

	sessions, err := f.GetRows(SheetSessions)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	minutes, err := strconv.ParseFloat(sessions[1][3], 64)
	require.NoError(t, err)
	assert.InDelta(t, 90.0, minutes, 1e-9)
	assert.Equal(t, "2025-03-10 10:30:00", sessions[1][2])
}

func TestExport_EmptyDay(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, Input{}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	events, err := f.GetRows(SheetEvents)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
