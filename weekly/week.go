// weekly/week.go
package weekly

import (
	"time"
)

// Week identity follows ISO-8601: weeks run Monday through Sunday, and a
// week belongs to the year containing its Thursday. time.Time.ISOWeek
// implements exactly that, which sidesteps the off-by-one traps around
// year boundaries.

// WeekOf returns the ISO week and ISO year of t, evaluated in UTC.
func WeekOf(t time.Time) (week, year int) {
	y, w := t.UTC().ISOWeek()
	return w, y
}

// WeekStart returns Monday 00:00 UTC of the given ISO week.
func WeekStart(week, year int) time.Time {
	// January 4th is always inside ISO week 1 of its year.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	weekday := int(jan4.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	monday := jan4.AddDate(0, 0, 1-weekday)
	return monday.AddDate(0, 0, (week-1)*7)
}

// NextReset returns the next Monday 00:00 UTC boundary strictly after now.
func NextReset(now time.Time) time.Time {
	now = now.UTC()
	week, year := now.ISOWeek()
	start := WeekStart(week, year)
	return start.AddDate(0, 0, 7)
}

// Countdown is the time remaining until the next weekly boundary.
// Always non-negative, independent of the server's local timezone.
func Countdown(now time.Time) time.Duration {
	d := NextReset(now).Sub(now.UTC())
	if d < 0 {
		return 0
	}
	return d
}

// Previous returns the week immediately before the given one.
func Previous(week, year int) (int, int) {
	start := WeekStart(week, year)
	prev := start.AddDate(0, 0, -7)
	w, y := prev.ISOWeek()
	return w, y
}

// LockKey derives the advisory-lock key for a rollover. Week and year
// pack into disjoint bit ranges, so distinct weeks never collide.
func LockKey(week, year int) int64 {
	return int64(year)<<16 | int64(week)
}
