package tool

import "time"

// DateOnly truncates t to midnight UTC. Subscription coverage is tracked
// at day granularity.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EndDate returns the coverage end for a period starting at start and
// lasting durationDays.
func EndDate(start time.Time, durationDays int) time.Time {
	return DateOnly(start).AddDate(0, 0, durationDays)
}

// DaysBetween returns the number of whole days from start to end.
func DaysBetween(start, end time.Time) int {
	return int(DateOnly(end).Sub(DateOnly(start)) / (24 * time.Hour))
}
