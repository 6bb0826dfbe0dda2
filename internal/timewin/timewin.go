// Package timewin computes the calendar windows used by the dashboard and
// the sales-by-day series. Every function is a pure function of the given
// reference time; callers inject "now" so window arithmetic stays testable
// without a clock. Windows are half-open [from, to) in the reference time's
// location, so a timestamp belongs to exactly one day.
package timewin

import "time"

const dayKeyFormat = "2006-01-02"

// StartOfDay returns local midnight of t's calendar day.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DayWindow returns [local midnight, next local midnight) around now.
func DayWindow(now time.Time) (time.Time, time.Time) {
	from := StartOfDay(now)
	return from, from.AddDate(0, 0, 1)
}

// WeekWindow returns the Monday-through-Sunday week containing now,
// as [Monday 00:00, next Monday 00:00). The week start is fixed to Monday
// regardless of locale.
func WeekWindow(now time.Time) (time.Time, time.Time) {
	day := StartOfDay(now)
	offset := (int(day.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	from := day.AddDate(0, 0, -offset)
	return from, from.AddDate(0, 0, 7)
}

// MonthWindow returns [first of month 00:00, first of next month 00:00).
func MonthWindow(now time.Time) (time.Time, time.Time) {
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return from, from.AddDate(0, 1, 0)
}

// LastNDays returns the window covering the n consecutive calendar days
// ending on now's day: [midnight n-1 days ago, next local midnight).
func LastNDays(now time.Time, n int) (time.Time, time.Time) {
	if n < 1 {
		n = 1
	}
	to := StartOfDay(now).AddDate(0, 0, 1)
	from := StartOfDay(now).AddDate(0, 0, -(n - 1))
	return from, to
}

// DayKey formats t's calendar date as YYYY-MM-DD in t's location.
func DayKey(t time.Time) string {
	return t.Format(dayKeyFormat)
}

// DayKeys returns the keys for the n consecutive calendar days ending on
// now's day, chronologically ascending.
func DayKeys(now time.Time, n int) []string {
	if n < 1 {
		n = 1
	}
	keys := make([]string, 0, n)
	day := StartOfDay(now).AddDate(0, 0, -(n - 1))
	for i := 0; i < n; i++ {
		keys = append(keys, DayKey(day))
		day = day.AddDate(0, 0, 1)
	}
	return keys
}
