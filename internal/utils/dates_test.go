package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("02/01/2024")
	assert.Error(t, err)
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	b := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 30, DaysBetween(a, b))
	assert.Equal(t, -30, DaysBetween(b, a))
	assert.Equal(t, 0, DaysBetween(a, a))

	// Time-of-day is ignored.
	late := time.Date(2024, 2, 1, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, 30, DaysBetween(late, b))
}

func TestDateOnly(t *testing.T) {
	ts := time.Date(2024, 6, 10, 15, 4, 5, 123, time.UTC)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), DateOnly(ts))
	assert.Equal(t, "2024-06-10", FormatDate(ts))
}
