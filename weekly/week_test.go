package weekly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWeekOfMidYear(t *testing.T) {
	// Wednesday 2026-08-26 falls in ISO week 35 of 2026.
	week, year := WeekOf(time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, 35, week)
	assert.Equal(t, 2026, year)
}

func TestWeekOfYearBoundary(t *testing.T) {
	// 2025-12-29 is a Monday; its week's Thursday is 2026-01-01, so the
	// whole week belongs to ISO year 2026.
	week, year := WeekOf(time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 1, week)
	assert.Equal(t, 2026, year)

	// 2027-01-01 is a Friday; its week's Thursday is 2026-12-31, so it
	// still counts as week 53 of 2026.
	week, year = WeekOf(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 53, week)
	assert.Equal(t, 2026, year)
}

func TestWeekOfIgnoresLocalTimezone(t *testing.T) {
	// Sunday 23:30 in UTC+10 is Sunday 13:30 UTC, same ISO week.
	loc := time.FixedZone("UTC+10", 10*3600)
	local := time.Date(2026, 8, 30, 23, 30, 0, 0, loc)

	week, year := WeekOf(local)
	utcWeek, utcYear := WeekOf(local.UTC())
	assert.Equal(t, utcWeek, week)
	assert.Equal(t, utcYear, year)
}

func TestWeekStartIsMondayMidnightUTC(t *testing.T) {
	start := WeekStart(35, 2026)
	assert.Equal(t, time.Monday, start.Weekday())
	assert.Equal(t, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), start)

	// Week 1 of 2026 starts in the previous calendar year.
	start = WeekStart(1, 2026)
	assert.Equal(t, time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC), start)
}

func TestWeekStartRoundTripsWeekOf(t *testing.T) {
	for _, tc := range []struct{ week, year int }{
		{1, 2026}, {35, 2026}, {53, 2026}, {52, 2025}, {1, 2027},
	} {
		start := WeekStart(tc.week, tc.year)
		week, year := WeekOf(start)
		assert.Equal(t, tc.week, week, "week start of %d/%d", tc.week, tc.year)
		assert.Equal(t, tc.year, year, "week start of %d/%d", tc.week, tc.year)
	}
}

func TestNextResetAndCountdown(t *testing.T) {
	// Sunday evening: the boundary is a few hours away.
	now := time.Date(2026, 8, 30, 22, 0, 0, 0, time.UTC)
	reset := NextReset(now)
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), reset)
	assert.Equal(t, 2*time.Hour, Countdown(now))

	// Exactly at the boundary the countdown points a full week ahead.
	atBoundary := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 7*24*time.Hour, Countdown(atBoundary))

	assert.GreaterOrEqual(t, Countdown(time.Now()), time.Duration(0))
}

func TestPrevious(t *testing.T) {
	week, year := Previous(1, 2026)
	assert.Equal(t, 52, week)
	assert.Equal(t, 2025, year)

	week, year = Previous(35, 2026)
	assert.Equal(t, 34, week)
	assert.Equal(t, 2026, year)
}

func TestLockKeyDistinct(t *testing.T) {
	seen := map[int64]bool{}
	for year := 2024; year <= 2028; year++ {
		for week := 1; week <= 53; week++ {
			key := LockKey(week, year)
			assert.False(t, seen[key], "duplicate lock key for %d/%d", week, year)
			seen[key] = true
		}
	}
}
