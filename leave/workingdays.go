package leave

import (
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// WorkingDays counts the days from start to end inclusive that are not
// Saturday or Sunday. If start is after end the result is 0; callers must
// reject that range themselves rather than treat it as "zero days".
func WorkingDays(start, end time.Time) int {
	day := calendarDay(start)
	last := calendarDay(end)

	count := 0
	for !day.After(last) {
		if isWorkday(day) {
			count++
		}
		day = day.AddDate(0, 0, 1)
	}
	return count
}

func isWorkday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// calendarDay drops the clock, keeping the date as written in t's location.
func calendarDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp (date part kept).
func ParseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, &ValidationError{Field: field, Message: field + " is required"}
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return calendarDay(t), nil
	}
	return time.Time{}, &ValidationError{
		Field:   field,
		Message: field + " must be a date in YYYY-MM-DD format",
	}
}

// FormatDate renders a calendar date the way the API expects it.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}
