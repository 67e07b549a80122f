package lots

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/bookkeeper/internal/domain"
	"github.com/aristath/bookkeeper/internal/utils"
)

// Repository handles stock lot and disposition persistence in ledger.db.
// Every query touching lots or dispositions is scoped by user id: lots are
// exclusively owned by the user who created them.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new lots repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "lots").Logger(),
	}
}

// InsertLotTx inserts a new stock lot inside a transaction.
func (r *Repository) InsertLotTx(tx *sql.Tx, lot *domain.StockLot) error {
	result, err := tx.Exec(
		`INSERT INTO stock_lots (user_id, symbol, acquired_date, original_quantity, remaining_quantity,
		                         cost_per_share, cost_basis, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lot.UserID, lot.Symbol, utils.FormatDate(lot.AcquiredDate),
		lot.OriginalQuantity.String(), lot.RemainingQuantity.String(),
		lot.CostPerShare, lot.CostBasis, string(lot.Status),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert stock lot: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get stock lot id: %w", err)
	}
	lot.ID = id
	return nil
}

// OpenLotsTx loads a user's open inventory for a symbol inside a
// transaction, in FIFO base order (acquisition date ascending, id
// ascending for same-day ties).
func (r *Repository) OpenLotsTx(tx *sql.Tx, userID, symbol string) ([]*domain.StockLot, error) {
	rows, err := tx.Query(
		`SELECT id, user_id, symbol, acquired_date, original_quantity, remaining_quantity,
		        cost_per_share, cost_basis, status, wash_sale_adjustment, disallowed_loss,
		        adjustment_source, created_at
		 FROM stock_lots
		 WHERE user_id = ? AND symbol = ? AND status IN ('OPEN','PARTIAL')
		   AND CAST(remaining_quantity AS REAL) > 0
		 ORDER BY acquired_date ASC, id ASC`,
		userID, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query open lots for %s: %w", symbol, err)
	}
	defer rows.Close()
	return collectLots(rows)
}

// GetLotByID returns one of the user's lots, or nil if not found.
func (r *Repository) GetLotByID(userID string, id int64) (*domain.StockLot, error) {
	row := r.db.QueryRow(
		`SELECT id, user_id, symbol, acquired_date, original_quantity, remaining_quantity,
		        cost_per_share, cost_basis, status, wash_sale_adjustment, disallowed_loss,
		        adjustment_source, created_at
		 FROM stock_lots WHERE user_id = ? AND id = ?`, userID, id)
	lot, err := scanLot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return lot, err
}

// ListLots returns the user's lots for a symbol (all symbols when empty),
// newest acquisition first.
func (r *Repository) ListLots(userID, symbol string) ([]*domain.StockLot, error) {
	query := `SELECT id, user_id, symbol, acquired_date, original_quantity, remaining_quantity,
	                 cost_per_share, cost_basis, status, wash_sale_adjustment, disallowed_loss,
	                 adjustment_source, created_at
	          FROM stock_lots WHERE user_id = ?`
	args := []interface{}{userID}
	if symbol != "" {
		query += ` AND symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY acquired_date DESC, id DESC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lots: %w", err)
	}
	defer rows.Close()
	return collectLots(rows)
}

// LotsAcquiredBetween returns the user's lots for a symbol acquired inside
// a date window (both bounds inclusive). Used by the wash-sale detector.
func (r *Repository) LotsAcquiredBetween(userID, symbol string, from, to time.Time) ([]*domain.StockLot, error) {
	rows, err := r.db.Query(
		`SELECT id, user_id, symbol, acquired_date, original_quantity, remaining_quantity,
		        cost_per_share, cost_basis, status, wash_sale_adjustment, disallowed_loss,
		        adjustment_source, created_at
		 FROM stock_lots
		 WHERE user_id = ? AND symbol = ? AND acquired_date >= ? AND acquired_date <= ?
		 ORDER BY acquired_date ASC, id ASC`,
		userID, symbol, utils.FormatDate(from), utils.FormatDate(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query lots in window for %s: %w", symbol, err)
	}
	defer rows.Close()
	return collectLots(rows)
}

// UpdateLotConsumptionTx writes a lot's reduced remaining quantity and new
// status after a matched sale.
func (r *Repository) UpdateLotConsumptionTx(tx *sql.Tx, lotID int64, remaining decimal.Decimal, status domain.LotStatus) error {
	_, err := tx.Exec(
		`UPDATE stock_lots SET remaining_quantity = ?, status = ? WHERE id = ?`,
		remaining.String(), string(status), lotID)
	if err != nil {
		return fmt.Errorf("failed to update lot %d consumption: %w", lotID, err)
	}
	return nil
}

// ApplyLotAdjustmentTx raises a replacement lot's cost basis by a
// wash-sale disallowed amount and records where the adjustment came from.
func (r *Repository) ApplyLotAdjustmentTx(tx *sql.Tx, lotID int64, basisIncrease, perShareIncrease int64, sourceDispositionID int64) error {
	_, err := tx.Exec(
		`UPDATE stock_lots
		 SET cost_basis = cost_basis + ?,
		     cost_per_share = cost_per_share + ?,
		     wash_sale_adjustment = wash_sale_adjustment + ?,
		     adjustment_source = ?
		 WHERE id = ?`,
		basisIncrease, perShareIncrease, basisIncrease, sourceDispositionID, lotID)
	if err != nil {
		return fmt.Errorf("failed to apply wash-sale adjustment to lot %d: %w", lotID, err)
	}
	return nil
}

// InsertDispositionTx inserts one disposition slice inside a transaction.
func (r *Repository) InsertDispositionTx(tx *sql.Tx, d *domain.Disposition) error {
	result, err := tx.Exec(
		`INSERT INTO lot_dispositions (lot_id, user_id, symbol, sale_ref, sale_date, quantity,
		                               proceeds, fees, cost_basis, gain_loss, holding_days,
		                               long_term, method, wash_sale, disallowed_amount, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.LotID, d.UserID, d.Symbol, d.SaleRef, utils.FormatDate(d.SaleDate), d.Quantity.String(),
		d.Proceeds, d.Fees, d.CostBasis, d.GainLoss, d.HoldingDays,
		boolToInt(d.LongTerm), d.Method, boolToInt(d.WashSale), d.DisallowedAmount,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert disposition: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get disposition id: %w", err)
	}
	d.ID = id
	return nil
}

// ListDispositions returns the user's dispositions for a symbol (all
// symbols when empty), most recent sale first.
func (r *Repository) ListDispositions(userID, symbol string) ([]*domain.Disposition, error) {
	query := `SELECT id, lot_id, user_id, symbol, sale_ref, sale_date, quantity, proceeds, fees,
	                 cost_basis, gain_loss, holding_days, long_term, method, wash_sale,
	                 disallowed_amount, created_at
	          FROM lot_dispositions WHERE user_id = ?`
	args := []interface{}{userID}
	if symbol != "" {
		query += ` AND symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY sale_date DESC, id DESC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dispositions: %w", err)
	}
	defer rows.Close()
	return collectDispositions(rows)
}

// LossDispositions returns the user's realized-loss dispositions, oldest
// sale first. These are the stock-side wash-sale triggers.
func (r *Repository) LossDispositions(userID string) ([]*domain.Disposition, error) {
	rows, err := r.db.Query(
		`SELECT id, lot_id, user_id, symbol, sale_ref, sale_date, quantity, proceeds, fees,
		        cost_basis, gain_loss, holding_days, long_term, method, wash_sale,
		        disallowed_amount, created_at
		 FROM lot_dispositions
		 WHERE user_id = ? AND gain_loss < 0
		 ORDER BY sale_date ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query loss dispositions: %w", err)
	}
	defer rows.Close()
	return collectDispositions(rows)
}

// MarkDispositionWashSaleTx flags a losing disposition and records the
// aggregate disallowed amount.
func (r *Repository) MarkDispositionWashSaleTx(tx *sql.Tx, dispositionID int64, disallowed int64) error {
	_, err := tx.Exec(
		`UPDATE lot_dispositions
		 SET wash_sale = 1, disallowed_amount = disallowed_amount + ?
		 WHERE id = ?`,
		disallowed, dispositionID)
	if err != nil {
		return fmt.Errorf("failed to mark disposition %d as wash sale: %w", dispositionID, err)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func collectLots(rows *sql.Rows) ([]*domain.StockLot, error) {
	var lots []*domain.StockLot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func collectDispositions(rows *sql.Rows) ([]*domain.Disposition, error) {
	var dispositions []*domain.Disposition
	for rows.Next() {
		d, err := scanDisposition(rows)
		if err != nil {
			return nil, err
		}
		dispositions = append(dispositions, d)
	}
	return dispositions, rows.Err()
}

func scanLot(s scanner) (*domain.StockLot, error) {
	var lot domain.StockLot
	var acquiredDate, originalQty, remainingQty, status, createdAt string
	err := s.Scan(&lot.ID, &lot.UserID, &lot.Symbol, &acquiredDate, &originalQty, &remainingQty,
		&lot.CostPerShare, &lot.CostBasis, &status, &lot.WashSaleAdjustment, &lot.DisallowedLoss,
		&lot.AdjustmentSource, &createdAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan stock lot: %w", err)
	}
	lot.Status = domain.LotStatus(status)
	if lot.AcquiredDate, err = utils.ParseDate(acquiredDate); err != nil {
		return nil, err
	}
	if lot.OriginalQuantity, err = decimal.NewFromString(originalQty); err != nil {
		return nil, fmt.Errorf("invalid original quantity %q for lot %d: %w", originalQty, lot.ID, err)
	}
	if lot.RemainingQuantity, err = decimal.NewFromString(remainingQty); err != nil {
		return nil, fmt.Errorf("invalid remaining quantity %q for lot %d: %w", remainingQty, lot.ID, err)
	}
	if t, perr := time.Parse(time.RFC3339, createdAt); perr == nil {
		lot.CreatedAt = t
	}
	return &lot, nil
}

func scanDisposition(s scanner) (*domain.Disposition, error) {
	var d domain.Disposition
	var saleDate, qty, createdAt string
	var longTerm, washSale int
	err := s.Scan(&d.ID, &d.LotID, &d.UserID, &d.Symbol, &d.SaleRef, &saleDate, &qty,
		&d.Proceeds, &d.Fees, &d.CostBasis, &d.GainLoss, &d.HoldingDays,
		&longTerm, &d.Method, &washSale, &d.DisallowedAmount, &createdAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan disposition: %w", err)
	}
	d.LongTerm = longTerm != 0
	d.WashSale = washSale != 0
	if d.SaleDate, err = utils.ParseDate(saleDate); err != nil {
		return nil, err
	}
	if d.Quantity, err = decimal.NewFromString(qty); err != nil {
		return nil, fmt.Errorf("invalid quantity %q for disposition %d: %w", qty, d.ID, err)
	}
	if t, perr := time.Parse(time.RFC3339, createdAt); perr == nil {
		d.CreatedAt = t
	}
	return &d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
