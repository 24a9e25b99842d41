package reports

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodRangeToday(t *testing.T) {
	now := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)

	start, end, prevStart, prevEnd, err := PeriodRange("today", now)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, now, end)

	// previous window immediately precedes and has the same length
	assert.Equal(t, start, prevEnd)
	assert.Equal(t, end.Sub(start), prevEnd.Sub(prevStart))
}

func TestPeriodRangeWeekAndMonth(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	start, end, _, _, err := PeriodRange("week", now)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, -7), start)
	assert.Equal(t, now, end)

	start, _, prevStart, prevEnd, err := PeriodRange("month", now)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, -1, 0), start)
	assert.Equal(t, start, prevEnd)
	assert.True(t, prevStart.Before(prevEnd))
}

func TestPeriodRangeUnknown(t *testing.T) {
	_, _, _, _, err := PeriodRange("fortnight", time.Now())
	assert.Error(t, err)
}

func TestSalesPipelineExcludesCancelled(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	pipeline := SalesPipeline(start, end)
	require.NotEmpty(t, pipeline)

	match := pipeline[0][0]
	assert.Equal(t, "$match", match.Key)
}
