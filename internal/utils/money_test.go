package utils

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestToCents(t *testing.T) {
	testCases := []struct {
		amount float64
		want   int64
	}{
		{0, 0},
		{1, 100},
		{185.50, 18550},
		{501.30, 50130},
		{0.005, 1},    // half rounds away from zero
		{-0.005, -1},  // symmetric for negatives
		{-185.50, -18550},
		{19.999, 2000},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, ToCents(tc.amount), "amount %v", tc.amount)
	}
}

func TestMulCents(t *testing.T) {
	assert.Equal(t, int64(185500), MulCents(18550, decimal.NewFromInt(10)))
	assert.Equal(t, int64(9275), MulCents(18550, decimal.RequireFromString("0.5")))
	// Rounds to a whole cent, half away from zero.
	assert.Equal(t, int64(3), MulCents(5, decimal.RequireFromString("0.5")))
}

func TestProRataCents(t *testing.T) {
	// 100 cents split 1/3: the slice rounds, the caller reconciles.
	assert.Equal(t, int64(33), ProRataCents(100, decimal.NewFromInt(1), decimal.NewFromInt(3)))
	assert.Equal(t, int64(0), ProRataCents(100, decimal.NewFromInt(1), decimal.Zero))
	assert.Equal(t, int64(100), ProRataCents(100, decimal.NewFromInt(3), decimal.NewFromInt(3)))
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "$1,234.56", FormatCents(123456, "USD"))
	assert.Equal(t, "-$5.00", FormatCents(-500, "USD"))
}
