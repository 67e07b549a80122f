package lots

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/bookkeeper/internal/database"
	"github.com/aristath/bookkeeper/internal/domain"
	"github.com/aristath/bookkeeper/internal/modules/ledger"
	"github.com/aristath/bookkeeper/internal/utils"
)

// PurchaseInput describes a normalized stock buy.
type PurchaseInput struct {
	UserID   string
	Symbol   string
	Quantity decimal.Decimal
	Price    float64 // per share, fractional dollars
	Fees     float64 // fractional dollars
	Date     time.Time
}

// SaleInput describes a normalized stock sale to be matched against lots.
type SaleInput struct {
	UserID    string
	Symbol    string
	Quantity  decimal.Decimal
	Price     float64 // per share, fractional dollars
	Fees      float64 // fractional dollars
	Date      time.Time
	Method    Method
	Selected  []LotSelection // required for SPECIFIC, ignored otherwise
	Reference string         // external reference carried onto the posting
}

// MatchResult is the outcome of a matched sale.
type MatchResult struct {
	Dispositions   []*domain.Disposition
	TotalCostBasis int64 // cents
	ShortTermGain  int64 // cents, net
	LongTermGain   int64 // cents, net
	TransactionID  string
}

// Service matches sales against lot inventory and posts the resulting
// journal transactions. Every multi-write path runs in one database
// transaction; there is no partial commit.
type Service struct {
	db     *sql.DB
	repo   *Repository
	ledger *ledger.Service
	log    zerolog.Logger
}

// NewService creates a new lot matching service.
func NewService(db *sql.DB, repo *Repository, ledgerService *ledger.Service, log zerolog.Logger) *Service {
	return &Service{
		db:     db,
		repo:   repo,
		ledger: ledgerService,
		log:    log.With().Str("service", "lots").Logger(),
	}
}

// RecordPurchase creates a lot from a buy and posts the acquisition
// (debit stock positions, credit trading cash) atomically.
func (s *Service) RecordPurchase(input PurchaseInput) (*domain.StockLot, error) {
	if input.Quantity.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("purchase quantity must be positive, got %s", input.Quantity)
	}

	// Fractional amounts become cents exactly once, at this boundary.
	costPerShare := utils.ToCents(input.Price)
	fees := utils.ToCents(input.Fees)
	costBasis := utils.MulCents(costPerShare, input.Quantity) + fees

	lot := &domain.StockLot{
		UserID:            input.UserID,
		Symbol:            input.Symbol,
		AcquiredDate:      utils.DateOnly(input.Date),
		OriginalQuantity:  input.Quantity,
		RemainingQuantity: input.Quantity,
		CostPerShare:      costPerShare,
		CostBasis:         costBasis,
		Status:            domain.LotOpen,
	}

	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		if err := s.repo.InsertLotTx(tx, lot); err != nil {
			return err
		}
		_, err := s.ledger.PostInTx(tx, ledger.PostInput{
			Date:        lot.AcquiredDate,
			Description: fmt.Sprintf("Buy %s %s @ %s", input.Quantity, input.Symbol, utils.FormatCents(costPerShare, "USD")),
			Lines: []ledger.Line{
				{AccountCode: ledger.AccountStockPositions, Amount: costBasis, Side: domain.Debit},
				{AccountCode: ledger.AccountTradingCash, Amount: costBasis, Side: domain.Credit},
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("user", input.UserID).
		Str("symbol", input.Symbol).
		Str("quantity", input.Quantity.String()).
		Int64("cost_basis", costBasis).
		Msg("Recorded purchase lot")

	return lot, nil
}

// MatchSale selects lots for a sale under the requested method, persists
// one disposition per consumed slice, updates lot inventory, and posts one
// balanced journal transaction. All inside a single database transaction:
// an insufficient-inventory or unknown-lot failure writes nothing.
func (s *Service) MatchSale(input SaleInput) (*MatchResult, error) {
	if input.Quantity.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("sale quantity must be positive, got %s", input.Quantity)
	}

	salePrice := utils.ToCents(input.Price)
	totalFees := utils.ToCents(input.Fees)
	totalProceeds := utils.MulCents(salePrice, input.Quantity)
	saleDate := utils.DateOnly(input.Date)

	var result *MatchResult
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		candidates, err := s.repo.OpenLotsTx(tx, input.UserID, input.Symbol)
		if err != nil {
			return err
		}

		ordered, err := orderCandidates(input.Method, candidates, salePrice, saleDate, input.Selected)
		if err != nil {
			return err
		}

		slices, err := computeSlices(ordered, input.Symbol, input.Quantity, totalProceeds, totalFees, saleDate)
		if err != nil {
			return err
		}

		var totalBasis, shortTerm, longTerm int64
		for _, sl := range slices {
			totalBasis += sl.costBasis
			if sl.longTerm {
				longTerm += sl.gainLoss
			} else {
				shortTerm += sl.gainLoss
			}
		}
		net := shortTerm + longTerm
		netProceeds := totalProceeds - totalFees

		// Debit cash for net proceeds, credit positions for the basis
		// consumed, and book the net as a realized gain or loss. Fees above
		// gross proceeds mean cash goes out, not in.
		lines := make([]ledger.Line, 0, 3)
		if netProceeds > 0 {
			lines = append(lines, ledger.Line{AccountCode: ledger.AccountTradingCash, Amount: netProceeds, Side: domain.Debit})
		} else if netProceeds < 0 {
			lines = append(lines, ledger.Line{AccountCode: ledger.AccountTradingCash, Amount: -netProceeds, Side: domain.Credit})
		}
		if totalBasis > 0 {
			lines = append(lines, ledger.Line{AccountCode: ledger.AccountStockPositions, Amount: totalBasis, Side: domain.Credit})
		}
		if net > 0 {
			lines = append(lines, ledger.Line{AccountCode: ledger.AccountRealizedGains, Amount: net, Side: domain.Credit})
		} else if net < 0 {
			lines = append(lines, ledger.Line{AccountCode: ledger.AccountRealizedLosses, Amount: -net, Side: domain.Debit})
		}

		jt, err := s.ledger.PostInTx(tx, ledger.PostInput{
			Date:        saleDate,
			Description: fmt.Sprintf("Sell %s %s @ %s (%s)", input.Quantity, input.Symbol, utils.FormatCents(salePrice, "USD"), input.Method),
			ExternalRef: input.Reference,
			Lines:       lines,
		})
		if err != nil {
			return err
		}

		dispositions := make([]*domain.Disposition, 0, len(slices))
		for _, sl := range slices {
			d := &domain.Disposition{
				LotID:       sl.lot.ID,
				UserID:      input.UserID,
				Symbol:      input.Symbol,
				SaleRef:     jt.ID,
				SaleDate:    saleDate,
				Quantity:    sl.quantity,
				Proceeds:    sl.proceeds,
				Fees:        sl.fees,
				CostBasis:   sl.costBasis,
				GainLoss:    sl.gainLoss,
				HoldingDays: sl.holdingDays,
				LongTerm:    sl.longTerm,
				Method:      input.Method.String(),
			}
			if err := s.repo.InsertDispositionTx(tx, d); err != nil {
				return err
			}
			dispositions = append(dispositions, d)

			// Slices for the same lot share the pointer, so decrementing
			// in place keeps each write consistent with the ones before.
			sl.lot.RemainingQuantity = sl.lot.RemainingQuantity.Sub(sl.quantity)
			status := domain.LotPartial
			if sl.lot.RemainingQuantity.LessThanOrEqual(matchEpsilon) {
				status = domain.LotClosed
			}
			if err := s.repo.UpdateLotConsumptionTx(tx, sl.lot.ID, sl.lot.RemainingQuantity, status); err != nil {
				return err
			}
		}

		result = &MatchResult{
			Dispositions:   dispositions,
			TotalCostBasis: totalBasis,
			ShortTermGain:  shortTerm,
			LongTermGain:   longTerm,
			TransactionID:  jt.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("user", input.UserID).
		Str("symbol", input.Symbol).
		Str("method", input.Method.String()).
		Int("dispositions", len(result.Dispositions)).
		Int64("short_term_gain", result.ShortTermGain).
		Int64("long_term_gain", result.LongTermGain).
		Msg("Matched sale against lots")

	return result, nil
}

// Lots returns the user's lots for a symbol (all symbols when empty).
func (s *Service) Lots(userID, symbol string) ([]*domain.StockLot, error) {
	return s.repo.ListLots(userID, symbol)
}

// Dispositions returns the user's dispositions for a symbol (all when empty).
func (s *Service) Dispositions(userID, symbol string) ([]*domain.Disposition, error) {
	return s.repo.ListDispositions(userID, symbol)
}
