// Package options implements the option position lifecycle: opening legs
// create long or short positions, closing legs are matched to the open
// position sharing their strike and option type, realizing profit or loss
// through the ledger.
package options

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/bookkeeper/internal/domain"
)

// LegAction is the closed set of normalized leg actions. Raw broker action
// codes must be mapped to one of these before entering the engine.
type LegAction string

const (
	BuyToOpen   LegAction = "buy_to_open"
	SellToOpen  LegAction = "sell_to_open"
	BuyToClose  LegAction = "buy_to_close"
	SellToClose LegAction = "sell_to_close"
)

// ParseLegAction validates a normalized action string at the boundary.
func ParseLegAction(s string) (LegAction, error) {
	switch LegAction(s) {
	case BuyToOpen, SellToOpen, BuyToClose, SellToClose:
		return LegAction(s), nil
	default:
		return "", fmt.Errorf("unknown leg action: %q", s)
	}
}

// IsOpening reports whether the action creates a new position.
func (a LegAction) IsOpening() bool {
	return a == BuyToOpen || a == SellToOpen
}

// Leg is one side of an option strategy as delivered by the normalized
// feed. Amount and Fees are fractional dollars; they are rounded to cents
// exactly once when the leg enters the engine.
type Leg struct {
	UserID     string
	Symbol     string // full contract symbol, e.g. "AAPL 240119C00190000"
	Underlying string
	OptionType domain.OptionType
	Strike     int64 // cents
	Expiration *time.Time
	Action     LegAction
	Quantity   decimal.Decimal // contracts
	Amount     float64         // fractional dollars, sign per broker convention
	Fees       float64         // fractional dollars
	Date       time.Time
	Strategy   string
	TradeNum   int64
}

// Validate checks the structural fields of a leg before processing.
func (l *Leg) Validate() error {
	if l.UserID == "" {
		return fmt.Errorf("leg missing user id")
	}
	if l.Underlying == "" {
		return fmt.Errorf("leg missing underlying symbol")
	}
	if _, err := ParseLegAction(string(l.Action)); err != nil {
		return err
	}
	if l.Quantity.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("leg quantity must be positive, got %s", l.Quantity)
	}
	switch l.OptionType {
	case domain.Call, domain.Put, "":
	default:
		return fmt.Errorf("unknown option type: %q", l.OptionType)
	}
	return nil
}

// maxLegGroupSpanDays is the widest date window a multi-leg strategy may
// span. Legs further apart under one trade number are almost certainly
// unrelated trades.
const maxLegGroupSpanDays = 7

// ValidateLegGroup checks that all legs sharing one trade number fall
// within the allowed date window.
func ValidateLegGroup(legs []*Leg) error {
	if len(legs) < 2 {
		return nil
	}
	earliest, latest := legs[0].Date, legs[0].Date
	for _, leg := range legs[1:] {
		if leg.Date.Before(earliest) {
			earliest = leg.Date
		}
		if leg.Date.After(latest) {
			latest = leg.Date
		}
	}
	span := int(latest.Sub(earliest).Hours() / 24)
	if span > maxLegGroupSpanDays {
		return &domain.InvalidLegGroupingError{
			TradeNum: legs[0].TradeNum,
			SpanDays: span,
			MaxDays:  maxLegGroupSpanDays,
		}
	}
	return nil
}
