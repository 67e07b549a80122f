package options

import (
	"database/sql"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/bookkeeper/internal/database"
	"github.com/aristath/bookkeeper/internal/domain"
	"github.com/aristath/bookkeeper/internal/modules/ledger"
	"github.com/aristath/bookkeeper/internal/utils"
)

// Service opens and closes option positions, realizing profit or loss
// through the ledger. Opening and closing each run in one database
// transaction covering the position write and the journal posting.
type Service struct {
	db     *sql.DB
	repo   *Repository
	ledger *ledger.Service
	log    zerolog.Logger
}

// NewService creates a new options service.
func NewService(db *sql.DB, repo *Repository, ledgerService *ledger.Service, log zerolog.Logger) *Service {
	return &Service{
		db:     db,
		repo:   repo,
		ledger: ledgerService,
		log:    log.With().Str("service", "options").Logger(),
	}
}

// OpenLeg opens a new long or short position from an opening leg.
// Buying to open creates an asset; selling to open creates a liability.
// Cost basis = |amount| + fees, rounded to the nearest cent exactly once
// before integer conversion so repeated legs never accumulate drift.
func (s *Service) OpenLeg(leg *Leg) (*domain.OptionPosition, error) {
	if err := leg.Validate(); err != nil {
		return nil, err
	}
	if !leg.Action.IsOpening() {
		return nil, fmt.Errorf("OpenLeg called with closing action %q", leg.Action)
	}

	// Round once, then convert: the fractional sum is settled before any
	// integer math happens.
	costBasis := utils.ToCents(math.Abs(leg.Amount) + leg.Fees)

	positionType := domain.Long
	if leg.Action == SellToOpen {
		positionType = domain.Short
	}

	openPrice := int64(0)
	if !leg.Quantity.IsZero() {
		openPrice = decimal.NewFromInt(costBasis).Div(leg.Quantity).Round(0).IntPart()
	}

	position := &domain.OptionPosition{
		UserID:            leg.UserID,
		Symbol:            leg.Symbol,
		Underlying:        leg.Underlying,
		OptionType:        leg.OptionType,
		Strike:            leg.Strike,
		Expiration:        leg.Expiration,
		PositionType:      positionType,
		Quantity:          leg.Quantity,
		RemainingQuantity: leg.Quantity,
		CostBasis:         costBasis,
		OpenPrice:         openPrice,
		OpenDate:          utils.DateOnly(leg.Date),
		Status:            domain.PositionOpen,
		Strategy:          leg.Strategy,
		TradeNum:          leg.TradeNum,
	}

	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		if err := s.repo.InsertPositionTx(tx, position); err != nil {
			return err
		}

		var lines []ledger.Line
		if positionType == domain.Long {
			// Premium paid: option asset in, cash out.
			lines = []ledger.Line{
				{AccountCode: ledger.AccountLongOptions, Amount: costBasis, Side: domain.Debit},
				{AccountCode: ledger.AccountTradingCash, Amount: costBasis, Side: domain.Credit},
			}
		} else {
			// Premium received: cash in, obligation booked as a liability.
			lines = []ledger.Line{
				{AccountCode: ledger.AccountTradingCash, Amount: costBasis, Side: domain.Debit},
				{AccountCode: ledger.AccountShortOptions, Amount: costBasis, Side: domain.Credit},
			}
		}

		_, err := s.ledger.PostInTx(tx, ledger.PostInput{
			Date:        position.OpenDate,
			Description: fmt.Sprintf("Open %s %s %s", positionType, leg.Underlying, legContractLabel(leg)),
			Strategy:    leg.Strategy,
			TradeNum:    leg.TradeNum,
			Lines:       lines,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("user", leg.UserID).
		Str("underlying", leg.Underlying).
		Str("position_type", string(positionType)).
		Int64("cost_basis", costBasis).
		Msg("Opened option position")

	return position, nil
}

// CloseLeg matches a closing leg to the open position sharing its strike,
// option type, and contract count, realizes the P&L, and posts it. The
// action side is deliberately not part of the match key: a short position
// is closed by buying and a long position is closed by selling. Positions
// close whole; a leg covering fewer contracts than the position holds is
// rejected rather than booked against the full basis.
func (s *Service) CloseLeg(leg *Leg) (*domain.OptionPosition, error) {
	if err := leg.Validate(); err != nil {
		return nil, err
	}
	if leg.Action.IsOpening() {
		return nil, fmt.Errorf("CloseLeg called with opening action %q", leg.Action)
	}

	var matched *domain.OptionPosition
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		candidates, err := s.repo.OpenPositionsTx(tx, leg.UserID, leg.Underlying)
		if err != nil {
			return err
		}

		var sizeMismatch *domain.OptionPosition
		matched, sizeMismatch = matchPosition(leg, candidates)
		if matched == nil {
			if sizeMismatch != nil {
				return &domain.PositionSizeMismatchError{
					PositionID:       sizeMismatch.ID,
					Underlying:       leg.Underlying,
					PositionQuantity: sizeMismatch.Quantity,
					LegQuantity:      leg.Quantity,
				}
			}
			names := make([]string, 0, len(candidates))
			for _, c := range candidates {
				names = append(names, fmt.Sprintf("%s %s %s strike %d", c.PositionType, c.Underlying, c.OptionType, c.Strike))
			}
			return &domain.NoMatchingPositionError{
				Underlying: leg.Underlying,
				OptionType: leg.OptionType,
				Strike:     leg.Strike,
				Candidates: names,
			}
		}

		closeDate := utils.DateOnly(leg.Date)
		var proceeds, realizedPL int64
		if matched.PositionType == domain.Long {
			// Sold to close: cash in, net of fees.
			proceeds = utils.ToCents(math.Abs(leg.Amount) - leg.Fees)
			realizedPL = proceeds - matched.CostBasis
		} else {
			// Bought to close: cash out, fees added.
			proceeds = utils.ToCents(math.Abs(leg.Amount) + leg.Fees)
			realizedPL = matched.CostBasis - proceeds
		}

		closePrice := int64(0)
		if !matched.Quantity.IsZero() {
			closePrice = decimal.NewFromInt(proceeds).Div(matched.Quantity).Round(0).IntPart()
		}

		if err := s.repo.ClosePositionTx(tx, matched.ID, closePrice, closeDate, proceeds, realizedPL); err != nil {
			return err
		}

		lines := closeLines(matched, proceeds, realizedPL)
		_, err = s.ledger.PostInTx(tx, ledger.PostInput{
			Date:        closeDate,
			Description: fmt.Sprintf("Close %s %s %s", matched.PositionType, matched.Underlying, positionContractLabel(matched)),
			Strategy:    leg.Strategy,
			TradeNum:    leg.TradeNum,
			Lines:       lines,
		})
		if err != nil {
			return err
		}

		matched.Status = domain.PositionClosed
		matched.ClosePrice = closePrice
		matched.CloseDate = &closeDate
		matched.Proceeds = proceeds
		matched.RealizedPL = realizedPL
		matched.RemainingQuantity = decimal.Zero
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("user", leg.UserID).
		Str("underlying", leg.Underlying).
		Int64("realized_pl", matched.RealizedPL).
		Msg("Closed option position")

	return matched, nil
}

// Positions returns the user's positions filtered by status (all when empty).
func (s *Service) Positions(userID string, status domain.PositionStatus) ([]*domain.OptionPosition, error) {
	return s.repo.ListPositions(userID, status)
}

// matchPosition finds the earliest open position sharing the leg's option
// type, strike, and contract count. Expiration participates only when both
// sides carry one. The second return is the earliest position matching on
// contract terms but not size, for error reporting.
func matchPosition(leg *Leg, candidates []*domain.OptionPosition) (*domain.OptionPosition, *domain.OptionPosition) {
	var sizeMismatch *domain.OptionPosition
	for _, c := range candidates {
		if c.OptionType != leg.OptionType || c.Strike != leg.Strike {
			continue
		}
		if leg.Expiration != nil && c.Expiration != nil && !leg.Expiration.Equal(*c.Expiration) {
			continue
		}
		if !c.Quantity.Equal(leg.Quantity) {
			if sizeMismatch == nil {
				sizeMismatch = c
			}
			continue
		}
		return c, nil
	}
	return nil, sizeMismatch
}

// closeLines builds the balanced posting for a position close.
func closeLines(p *domain.OptionPosition, proceeds, realizedPL int64) []ledger.Line {
	var lines []ledger.Line
	if p.PositionType == domain.Long {
		// Cash in for proceeds, asset out at basis, difference to P&L.
		// Fees above the sale amount turn the close into a cash outflow.
		if proceeds > 0 {
			lines = append(lines, ledger.Line{AccountCode: ledger.AccountTradingCash, Amount: proceeds, Side: domain.Debit})
		} else if proceeds < 0 {
			lines = append(lines, ledger.Line{AccountCode: ledger.AccountTradingCash, Amount: -proceeds, Side: domain.Credit})
		}
		if p.CostBasis > 0 {
			lines = append(lines, ledger.Line{AccountCode: ledger.AccountLongOptions, Amount: p.CostBasis, Side: domain.Credit})
		}
	} else {
		// Liability removed at basis, cash out for the buy-to-close.
		if p.CostBasis > 0 {
			lines = append(lines, ledger.Line{AccountCode: ledger.AccountShortOptions, Amount: p.CostBasis, Side: domain.Debit})
		}
		if proceeds > 0 {
			lines = append(lines, ledger.Line{AccountCode: ledger.AccountTradingCash, Amount: proceeds, Side: domain.Credit})
		}
	}
	if realizedPL > 0 {
		lines = append(lines, ledger.Line{AccountCode: ledger.AccountRealizedGains, Amount: realizedPL, Side: domain.Credit})
	} else if realizedPL < 0 {
		lines = append(lines, ledger.Line{AccountCode: ledger.AccountRealizedLosses, Amount: -realizedPL, Side: domain.Debit})
	}
	return lines
}

func legContractLabel(leg *Leg) string {
	if leg.OptionType == "" {
		return leg.Symbol
	}
	return fmt.Sprintf("%s strike %s", leg.OptionType, utils.FormatCents(leg.Strike, "USD"))
}

func positionContractLabel(p *domain.OptionPosition) string {
	if p.OptionType == "" {
		return p.Symbol
	}
	return fmt.Sprintf("%s strike %s", p.OptionType, utils.FormatCents(p.Strike, "USD"))
}
