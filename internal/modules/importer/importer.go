// Package importer ingests normalized brokerage transaction records and
// dispatches them to the lot matching and options services. Broker-specific
// codes must already be mapped to the normalized actions; anything else is
// rejected at this boundary and never reaches the engine.
package importer

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/bookkeeper/internal/domain"
	"github.com/aristath/bookkeeper/internal/modules/lots"
	"github.com/aristath/bookkeeper/internal/modules/options"
	"github.com/aristath/bookkeeper/internal/utils"
)

// Stock record actions. Option records use the leg actions from the
// options package.
const (
	ActionBuy  = "buy"
	ActionSell = "sell"
)

// Record is one normalized transaction from the upstream feed.
type Record struct {
	UserID     string          `json:"user_id"`
	Date       time.Time       `json:"date"`
	Symbol     string          `json:"symbol"`
	Underlying string          `json:"underlying,omitempty"` // options only
	Action     string          `json:"action"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      float64         `json:"price"`  // per share, fractional dollars (stock)
	Amount     float64         `json:"amount"` // total premium, fractional dollars (options)
	Fees       float64         `json:"fees"`
	OptionType string          `json:"option_type,omitempty"`
	Strike     float64         `json:"strike,omitempty"` // fractional dollars
	Expiration *time.Time      `json:"expiration,omitempty"`
	Strategy   string          `json:"strategy,omitempty"`
	TradeNum   int64           `json:"trade_num,omitempty"`
	Method     string          `json:"method,omitempty"` // optional per-sale override
}

// Result summarizes one import batch.
type Result struct {
	BatchID   string   `json:"batch_id"`
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Importer dispatches normalized records to the trading services.
type Importer struct {
	lots          *lots.Service
	options       *options.Service
	defaultMethod lots.Method
	log           zerolog.Logger
}

// New creates an importer with the configured default matching method.
func New(lotsService *lots.Service, optionsService *options.Service, defaultMethod lots.Method, log zerolog.Logger) *Importer {
	return &Importer{
		lots:          lotsService,
		options:       optionsService,
		defaultMethod: defaultMethod,
		log:           log.With().Str("service", "importer").Logger(),
	}
}

// Import processes records in order. Option legs sharing a trade number
// are validated as a group before any of them is processed. Failures are
// per-record: a bad record is reported and skipped, the rest proceed.
func (i *Importer) Import(records []Record) (*Result, error) {
	result := &Result{BatchID: uuid.NewString()}

	// Leg-group validation happens up front so a mis-grouped strategy is
	// rejected before any of its legs post.
	legGroups := make(map[int64][]*options.Leg)
	legs := make([]*options.Leg, len(records))
	for idx := range records {
		rec := &records[idx]
		if rec.OptionType == "" && (rec.Action == ActionBuy || rec.Action == ActionSell) {
			continue
		}
		leg, err := i.toLeg(rec)
		if err != nil {
			continue // reported again during processing
		}
		legs[idx] = leg
		if rec.TradeNum != 0 {
			legGroups[rec.TradeNum] = append(legGroups[rec.TradeNum], leg)
		}
	}
	badGroups := make(map[int64]error)
	for tradeNum, group := range legGroups {
		if err := options.ValidateLegGroup(group); err != nil {
			badGroups[tradeNum] = err
		}
	}

	for idx := range records {
		rec := &records[idx]
		if err := i.processRecord(rec, legs[idx], badGroups); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("record %d (%s %s): %v", idx, rec.Action, rec.Symbol, err))
			continue
		}
		result.Processed++
	}

	i.log.Info().
		Str("batch", result.BatchID).
		Int("processed", result.Processed).
		Int("failed", result.Failed).
		Msg("Imported transaction batch")

	return result, nil
}

func (i *Importer) processRecord(rec *Record, leg *options.Leg, badGroups map[int64]error) error {
	// Stock records carry no option metadata.
	if rec.OptionType == "" {
		switch rec.Action {
		case ActionBuy:
			_, err := i.lots.RecordPurchase(lots.PurchaseInput{
				UserID:   rec.UserID,
				Symbol:   rec.Symbol,
				Quantity: rec.Quantity,
				Price:    rec.Price,
				Fees:     rec.Fees,
				Date:     rec.Date,
			})
			return err
		case ActionSell:
			method := i.defaultMethod
			if rec.Method != "" {
				parsed, err := lots.ParseMethod(rec.Method)
				if err != nil {
					return err
				}
				method = parsed
			}
			_, err := i.lots.MatchSale(lots.SaleInput{
				UserID:   rec.UserID,
				Symbol:   rec.Symbol,
				Quantity: rec.Quantity,
				Price:    rec.Price,
				Fees:     rec.Fees,
				Date:     rec.Date,
				Method:   method,
			})
			return err
		default:
			return fmt.Errorf("unknown stock action: %q", rec.Action)
		}
	}

	// Option records.
	if leg == nil {
		var err error
		leg, err = i.toLeg(rec)
		if err != nil {
			return err
		}
	}
	if rec.TradeNum != 0 {
		if err := badGroups[rec.TradeNum]; err != nil {
			return err
		}
	}
	if leg.Action.IsOpening() {
		_, err := i.options.OpenLeg(leg)
		return err
	}
	_, err := i.options.CloseLeg(leg)
	return err
}

func (i *Importer) toLeg(rec *Record) (*options.Leg, error) {
	action, err := options.ParseLegAction(rec.Action)
	if err != nil {
		return nil, err
	}
	underlying := rec.Underlying
	if underlying == "" {
		underlying = rec.Symbol
	}
	return &options.Leg{
		UserID:     rec.UserID,
		Symbol:     rec.Symbol,
		Underlying: underlying,
		OptionType: domain.OptionType(rec.OptionType),
		Strike:     utils.ToCents(rec.Strike),
		Expiration: rec.Expiration,
		Action:     action,
		Quantity:   rec.Quantity,
		Amount:     rec.Amount,
		Fees:       rec.Fees,
		Date:       rec.Date,
		Strategy:   rec.Strategy,
		TradeNum:   rec.TradeNum,
	}, nil
}
