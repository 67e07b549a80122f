package utils

import (
	"fmt"
	"time"
)

// DateOnly truncates a timestamp to midnight UTC. Holding periods and
// wash-sale windows are computed on whole days.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of whole days from a to b.
// Negative if b is before a.
func DaysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)).Hours() / 24)
}

// ParseDate parses a YYYY-MM-DD date string into a midnight-UTC timestamp.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format (expected YYYY-MM-DD): %w", err)
	}
	return t, nil
}

// FormatDate renders a timestamp as a YYYY-MM-DD date string.
func FormatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
