// Package washsale detects wash-sale violations: realized losses with a
// substantially identical replacement purchase inside the 61-day window
// (30 days before and after the loss), across stock and option positions
// in both directions.
package washsale

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceKind discriminates stock and option sides of a violation.
// Carried explicitly on every trigger and replacement; never inferred
// from price magnitude or other heuristics.
type SourceKind string

const (
	KindStock  SourceKind = "stock"
	KindOption SourceKind = "option"
)

// Direction categorizes a violation by trigger and replacement kind.
type Direction string

const (
	StockToStock   Direction = "stock_to_stock"
	StockToOption  Direction = "stock_to_option"
	OptionToStock  Direction = "option_to_stock"
	OptionToOption Direction = "option_to_option"
)

// windowDays is the one-sided width of the wash-sale window.
const windowDays = 30

// Violation links one losing disposition or closed position to one
// replacement purchase within the window.
type Violation struct {
	Direction       Direction       `msgpack:"direction" json:"direction"`
	TriggerKind     SourceKind      `msgpack:"trigger_kind" json:"trigger_kind"`
	TriggerID       int64           `msgpack:"trigger_id" json:"trigger_id"`
	Symbol          string          `msgpack:"symbol" json:"symbol"` // underlying for options
	TriggerDate     time.Time       `msgpack:"trigger_date" json:"trigger_date"`
	ReplacementKind SourceKind      `msgpack:"replacement_kind" json:"replacement_kind"`
	ReplacementID   int64           `msgpack:"replacement_id" json:"replacement_id"`
	ReplacementDate time.Time       `msgpack:"replacement_date" json:"replacement_date"`
	AffectedUnits   decimal.Decimal `msgpack:"affected_units" json:"affected_units"` // share-equivalents
	DisallowedLoss  int64           `msgpack:"disallowed_loss" json:"disallowed_loss"` // cents
	AdjustedBasis   int64           `msgpack:"adjusted_basis" json:"adjusted_basis"`   // replacement basis + disallowed, cents
}

// Summary aggregates a detection pass.
type Summary struct {
	ViolationCount  int                 `msgpack:"violation_count" json:"violation_count"`
	CountByDir      map[Direction]int   `msgpack:"count_by_direction" json:"count_by_direction"`
	DisallowedByDir map[Direction]int64 `msgpack:"disallowed_by_direction" json:"disallowed_by_direction"`
	TotalDisallowed int64               `msgpack:"total_disallowed" json:"total_disallowed"` // cents
	TotalDisplay    string              `msgpack:"total_display" json:"total_display"`
}

// Report is the output of one detection pass for one user.
type Report struct {
	UserID      string      `msgpack:"user_id" json:"user_id"`
	GeneratedAt time.Time   `msgpack:"generated_at" json:"generated_at"`
	Violations  []Violation `msgpack:"violations" json:"violations"`
	Summary     Summary     `msgpack:"summary" json:"summary"`
}

// trigger is a realized loss being scanned for replacements.
type trigger struct {
	kind       SourceKind
	id         int64
	symbol     string // underlying for option triggers
	date       time.Time
	loss       int64           // cents, positive magnitude
	units      decimal.Decimal // share-equivalents
	excludeLot int64           // stock triggers: the lot consumed by the sale
	excludePos int64           // option triggers: the closed position itself
}

// replacement is a purchase candidate inside a trigger's window.
type replacement struct {
	kind      SourceKind
	id        int64
	date      time.Time
	units     decimal.Decimal // share-equivalents
	costBasis int64           // cents
}
