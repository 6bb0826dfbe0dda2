package timewin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayWindowIsHalfOpen(t *testing.T) {
	now := time.Date(2025, 6, 4, 15, 30, 45, 0, time.UTC)
	from, to := DayWindow(now)

	assert.Equal(t, time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC), to)
}

func TestWeekWindowStartsMonday(t *testing.T) {
	cases := []struct {
		name      string
		now       time.Time
		wantStart time.Time
	}{
		{
			name:      "wednesday maps back to monday",
			now:       time.Date(2025, 6, 4, 10, 0, 0, 0, time.UTC),
			wantStart: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "monday is its own start",
			now:       time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
			wantStart: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "sunday belongs to the preceding monday",
			now:       time.Date(2025, 6, 8, 23, 59, 0, 0, time.UTC),
			wantStart: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			from, to := WeekWindow(tc.now)
			assert.Equal(t, tc.wantStart, from)
			assert.Equal(t, tc.wantStart.AddDate(0, 0, 7), to)
		})
	}
}

func TestMonthWindow(t *testing.T) {
	from, to := MonthWindow(time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), to)

	from, to = MonthWindow(time.Date(2024, 12, 15, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), to)
}

func TestLastNDaysIncludesToday(t *testing.T) {
	now := time.Date(2025, 6, 7, 18, 0, 0, 0, time.UTC)
	from, to := LastNDays(now, 7)

	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC), to)
}

func TestDayKeysAscendingAndCrossingMonthBoundary(t *testing.T) {
	now := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	keys := DayKeys(now, 5)

	require.Len(t, keys, 5)
	assert.Equal(t, []string{"2025-02-26", "2025-02-27", "2025-02-28", "2025-03-01", "2025-03-02"}, keys)
}

func TestDayKeyUsesLocationOfInput(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	late := time.Date(2025, 6, 4, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, "2025-06-04", DayKey(late))
	assert.Equal(t, "2025-06-05", DayKey(late.In(loc)))
}
