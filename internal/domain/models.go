// Package domain holds the core bookkeeping models shared across modules.
// The domain layer is pure: no database or HTTP dependencies.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType classifies a chart-of-accounts entry.
type AccountType string

const (
	AccountAsset     AccountType = "asset"
	AccountLiability AccountType = "liability"
	AccountEquity    AccountType = "equity"
	AccountRevenue   AccountType = "revenue"
	AccountExpense   AccountType = "expense"
)

// BalanceSide is the side of a ledger entry (and an account's normal balance).
type BalanceSide string

const (
	Debit  BalanceSide = "debit"
	Credit BalanceSide = "credit"
)

// LotStatus tracks the lifecycle of a stock lot.
type LotStatus string

const (
	LotOpen    LotStatus = "OPEN"
	LotPartial LotStatus = "PARTIAL"
	LotClosed  LotStatus = "CLOSED"
)

// PositionStatus tracks the lifecycle of an option position.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// OptionType is the contract type of an option position.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// PositionType is the direction of an option position.
type PositionType string

const (
	Long  PositionType = "long"
	Short PositionType = "short"
)

// Account is a chart-of-accounts entry with a running settled balance.
// The balance is mutated only by the ledger service when posting entries;
// the version counter guards against lost updates between racing postings.
// All monetary values are integer cents.
type Account struct {
	ID             int64       `json:"id"`
	Code           string      `json:"code"`            // Unique, e.g. "T-1010"
	Name           string      `json:"name"`
	Type           AccountType `json:"type"`
	NormalBalance  BalanceSide `json:"normal_balance"`
	SettledBalance int64       `json:"settled_balance"` // cents
	Version        int64       `json:"version"`         // Optimistic concurrency guard
	CreatedAt      time.Time   `json:"created_at"`
}

// JournalTransaction is an immutable journal header. Corrections are made
// by posting offsetting transactions, never by editing history.
type JournalTransaction struct {
	ID          string        `json:"id"`           // uuid
	Date        time.Time     `json:"date"`
	Description string        `json:"description"`
	ExternalRef string        `json:"external_ref"`
	Strategy    string        `json:"strategy"`
	TradeNum    int64         `json:"trade_num"`
	TotalAmount int64         `json:"total_amount"` // cents, sum of the debit side
	CreatedAt   time.Time     `json:"created_at"`
	Entries     []LedgerEntry `json:"entries"`
}

// LedgerEntry belongs to exactly one JournalTransaction and references
// exactly one Account. Amount is always positive; the side carries the sign.
type LedgerEntry struct {
	ID            int64       `json:"id"`
	TransactionID string      `json:"transaction_id"`
	AccountCode   string      `json:"account_code"`
	Amount        int64       `json:"amount"`         // cents, > 0
	Side          BalanceSide `json:"side"`
}

// StockLot is a batch of shares acquired together, tracked until disposed.
type StockLot struct {
	ID                 int64           `json:"id"`
	UserID             string          `json:"user_id"`
	Symbol             string          `json:"symbol"`
	AcquiredDate       time.Time       `json:"acquired_date"`
	OriginalQuantity   decimal.Decimal `json:"original_quantity"`
	RemainingQuantity  decimal.Decimal `json:"remaining_quantity"`   // Monotonically non-increasing
	CostPerShare       int64           `json:"cost_per_share"`       // cents
	CostBasis          int64           `json:"cost_basis"`           // cents
	Status             LotStatus       `json:"status"`
	// Wash-sale adjustment fields, written by the wash-sale detector.
	WashSaleAdjustment int64           `json:"wash_sale_adjustment"` // cents added to basis
	DisallowedLoss     int64           `json:"disallowed_loss"`      // cents
	AdjustmentSource   int64           `json:"adjustment_source"`    // Disposition id the adjustment came from, 0 if none
	CreatedAt          time.Time       `json:"created_at"`
}

// Disposition records consuming all or part of a lot to satisfy a sale.
// Immutable once created except for the wash-sale fields.
type Disposition struct {
	ID               int64           `json:"id"`
	LotID            int64           `json:"lot_id"`
	UserID           string          `json:"user_id"`
	Symbol           string          `json:"symbol"`
	SaleRef          string          `json:"sale_ref"`          // Journal transaction id of the sale posting
	SaleDate         time.Time       `json:"sale_date"`
	Quantity         decimal.Decimal `json:"quantity"`
	Proceeds         int64           `json:"proceeds"`          // cents, pro-rata slice of the sale
	Fees             int64           `json:"fees"`              // cents, pro-rata slice of the sale
	CostBasis        int64           `json:"cost_basis"`        // cents
	GainLoss         int64           `json:"gain_loss"`         // cents, negative = loss
	HoldingDays      int             `json:"holding_days"`
	LongTerm         bool            `json:"long_term"`         // Holding period >= 365 days
	Method           string          `json:"method"`
	WashSale         bool            `json:"wash_sale"`
	DisallowedAmount int64           `json:"disallowed_amount"` // cents
	CreatedAt        time.Time       `json:"created_at"`
}

// OptionPosition is one leg of an option strategy (or a stock-equivalent
// row when OptionType is empty). Opened by an opening leg, closed with
// realized P&L once matched to a closing leg.
type OptionPosition struct {
	ID                int64           `json:"id"`
	UserID            string          `json:"user_id"`
	Symbol            string          `json:"symbol"`
	Underlying        string          `json:"underlying"`
	OptionType        OptionType      `json:"option_type"`        // empty for stock-equivalent rows
	Strike            int64           `json:"strike"`             // cents, 0 for stock-equivalent rows
	Expiration        *time.Time      `json:"expiration"`
	PositionType      PositionType    `json:"position_type"`
	Quantity          decimal.Decimal `json:"quantity"`           // contracts
	RemainingQuantity decimal.Decimal `json:"remaining_quantity"`
	CostBasis         int64           `json:"cost_basis"`         // cents
	OpenPrice         int64           `json:"open_price"`         // cents per contract
	OpenDate          time.Time       `json:"open_date"`
	Status            PositionStatus  `json:"status"`
	ClosePrice        int64           `json:"close_price"`
	CloseDate         *time.Time      `json:"close_date"`
	Proceeds          int64           `json:"proceeds"`
	RealizedPL        int64           `json:"realized_pl"`        // cents, negative = loss
	Strategy          string          `json:"strategy"`
	TradeNum          int64           `json:"trade_num"`
	CreatedAt         time.Time       `json:"created_at"`
}

// OptionShareMultiplier converts option contracts to share-equivalents.
const OptionShareMultiplier = 100

// ShareEquivalents returns the position's remaining size in share-equivalents
// (contracts x 100). Stock-equivalent rows count 1:1.
func (p *OptionPosition) ShareEquivalents() decimal.Decimal {
	if p.OptionType == "" {
		return p.Quantity
	}
	return p.Quantity.Mul(decimal.NewFromInt(OptionShareMultiplier))
}
