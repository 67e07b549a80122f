// Package utils provides small shared helpers for money and date handling.
package utils

import (
	"math"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// ToCents converts a fractional dollar amount to integer cents, rounding
// half away from zero. This is the single place fractional external
// amounts become integers; all arithmetic after this point is on cents.
func ToCents(amount float64) int64 {
	if amount >= 0 {
		return int64(math.Floor(amount*100 + 0.5))
	}
	return -int64(math.Floor(-amount*100 + 0.5))
}

// MulCents multiplies a cents amount by a decimal quantity and rounds the
// result to a whole cent (half away from zero).
func MulCents(cents int64, qty decimal.Decimal) int64 {
	return qty.Mul(decimal.NewFromInt(cents)).Round(0).IntPart()
}

// ProRataCents allocates part of a cents total proportionally to
// part/whole, rounded to a whole cent.
func ProRataCents(total int64, part, whole decimal.Decimal) int64 {
	if whole.IsZero() {
		return 0
	}
	return decimal.NewFromInt(total).Mul(part).Div(whole).Round(0).IntPart()
}

// FormatCents renders a cents amount for human-readable output,
// e.g. FormatCents(123456, "USD") == "$1,234.56".
func FormatCents(cents int64, currencyCode string) string {
	return money.New(cents, currencyCode).Display()
}
