package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// UnbalancedEntryError indicates a journal posting whose debit and credit
// totals do not match. Nothing is written when this is returned.
type UnbalancedEntryError struct {
	Debits  int64 // cents
	Credits int64 // cents
}

func (e *UnbalancedEntryError) Error() string {
	return fmt.Sprintf("unbalanced journal entry: debits %d != credits %d (difference %d cents)",
		e.Debits, e.Credits, e.Debits-e.Credits)
}

// AccountNotFoundError names every account code a posting referenced that
// does not exist in the chart of accounts.
type AccountNotFoundError struct {
	Codes []string
}

func (e *AccountNotFoundError) Error() string {
	return fmt.Sprintf("account(s) not found: %s", strings.Join(e.Codes, ", "))
}

// LotNotFoundError indicates a specific-identification sale referenced a
// lot id that is not among the open candidates for the symbol.
type LotNotFoundError struct {
	LotID  int64
	Symbol string
}

func (e *LotNotFoundError) Error() string {
	return fmt.Sprintf("lot %d not found among open lots for %s", e.LotID, e.Symbol)
}

// InsufficientLotsError indicates a sale that exceeds available inventory.
// Partial matches are never accepted; the whole sale is rejected.
type InsufficientLotsError struct {
	Symbol    string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientLotsError) Error() string {
	return fmt.Sprintf("insufficient lots for %s: requested %s shares, only %s available",
		e.Symbol, e.Requested.String(), e.Available.String())
}

// NoMatchingPositionError indicates a closing option leg with no open
// position sharing its strike and option type. Candidates lists the open
// positions that were considered.
type NoMatchingPositionError struct {
	Underlying string
	OptionType OptionType
	Strike     int64 // cents
	Candidates []string
}

func (e *NoMatchingPositionError) Error() string {
	msg := fmt.Sprintf("no open position matches closing leg %s %s strike %d", e.Underlying, e.OptionType, e.Strike)
	if len(e.Candidates) > 0 {
		msg += fmt.Sprintf(" (open candidates: %s)", strings.Join(e.Candidates, "; "))
	}
	return msg
}

// PositionSizeMismatchError indicates a closing option leg whose contract
// count differs from the matched position's. Closes are whole-position;
// booking a one-contract close against a two-contract basis would misstate
// the realized P&L.
type PositionSizeMismatchError struct {
	PositionID       int64
	Underlying       string
	PositionQuantity decimal.Decimal
	LegQuantity      decimal.Decimal
}

func (e *PositionSizeMismatchError) Error() string {
	return fmt.Sprintf("closing leg for %s covers %s contracts but position %d holds %s: positions close whole",
		e.Underlying, e.LegQuantity.String(), e.PositionID, e.PositionQuantity.String())
}

// InvalidLegGroupingError indicates legs sharing one trade number span more
// than the allowed window, suggesting unrelated trades were grouped together.
type InvalidLegGroupingError struct {
	TradeNum int64
	SpanDays int
	MaxDays  int
}

func (e *InvalidLegGroupingError) Error() string {
	return fmt.Sprintf("legs for trade %d span %d days (max %d): refusing to group unrelated trades",
		e.TradeNum, e.SpanDays, e.MaxDays)
}

// VersionConflictError indicates an optimistic-version mismatch on an
// account balance write. Transient: the caller should re-read and retry
// the whole posting.
type VersionConflictError struct {
	Code    string
	Version int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict updating account %s (expected version %d): concurrent posting detected",
		e.Code, e.Version)
}
