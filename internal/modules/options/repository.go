package options

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/bookkeeper/internal/domain"
	"github.com/aristath/bookkeeper/internal/utils"
)

// Repository handles option position persistence in ledger.db.
// All queries are scoped by user id.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new options repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "options").Logger(),
	}
}

const positionColumns = `id, user_id, symbol, underlying, option_type, strike, expiration,
	position_type, quantity, remaining_quantity, cost_basis, open_price, open_date,
	status, close_price, close_date, proceeds, realized_pl, strategy, trade_num, created_at`

// InsertPositionTx inserts a newly opened position inside a transaction.
func (r *Repository) InsertPositionTx(tx *sql.Tx, p *domain.OptionPosition) error {
	var expiration interface{}
	if p.Expiration != nil {
		expiration = utils.FormatDate(*p.Expiration)
	}
	result, err := tx.Exec(
		`INSERT INTO trading_positions (user_id, symbol, underlying, option_type, strike, expiration,
		                                position_type, quantity, remaining_quantity, cost_basis,
		                                open_price, open_date, status, strategy, trade_num, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.Symbol, p.Underlying, string(p.OptionType), p.Strike, expiration,
		string(p.PositionType), p.Quantity.String(), p.RemainingQuantity.String(), p.CostBasis,
		p.OpenPrice, utils.FormatDate(p.OpenDate), string(p.Status), p.Strategy, p.TradeNum,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert option position: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get option position id: %w", err)
	}
	p.ID = id
	return nil
}

// OpenPositionsTx loads the user's open positions on an underlying inside
// a transaction, oldest first so closing legs match the earliest open leg.
func (r *Repository) OpenPositionsTx(tx *sql.Tx, userID, underlying string) ([]*domain.OptionPosition, error) {
	rows, err := tx.Query(
		`SELECT `+positionColumns+`
		 FROM trading_positions
		 WHERE user_id = ? AND underlying = ? AND status = 'OPEN'
		 ORDER BY open_date ASC, id ASC`,
		userID, underlying)
	if err != nil {
		return nil, fmt.Errorf("failed to query open positions for %s: %w", underlying, err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

// ClosePositionTx marks a position closed with its realized P&L.
func (r *Repository) ClosePositionTx(tx *sql.Tx, id int64, closePrice int64, closeDate time.Time, proceeds, realizedPL int64) error {
	_, err := tx.Exec(
		`UPDATE trading_positions
		 SET status = 'CLOSED', close_price = ?, close_date = ?, proceeds = ?, realized_pl = ?,
		     remaining_quantity = '0'
		 WHERE id = ?`,
		closePrice, utils.FormatDate(closeDate), proceeds, realizedPL, id)
	if err != nil {
		return fmt.Errorf("failed to close position %d: %w", id, err)
	}
	return nil
}

// ListPositions returns the user's positions filtered by status
// (all when empty), newest first.
func (r *Repository) ListPositions(userID string, status domain.PositionStatus) ([]*domain.OptionPosition, error) {
	query := `SELECT ` + positionColumns + ` FROM trading_positions WHERE user_id = ?`
	args := []interface{}{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY open_date DESC, id DESC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

// LossClosedPositions returns the user's closed positions with a realized
// loss, oldest close first. These are the option-side wash-sale triggers.
func (r *Repository) LossClosedPositions(userID string) ([]*domain.OptionPosition, error) {
	rows, err := r.db.Query(
		`SELECT `+positionColumns+`
		 FROM trading_positions
		 WHERE user_id = ? AND status = 'CLOSED' AND realized_pl < 0
		 ORDER BY close_date ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query loss positions: %w", err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

// LongPositionsOpenedBetween returns the user's long positions on an
// underlying opened inside a date window (both bounds inclusive).
// Used by the wash-sale detector to find option replacements.
func (r *Repository) LongPositionsOpenedBetween(userID, underlying string, from, to time.Time) ([]*domain.OptionPosition, error) {
	rows, err := r.db.Query(
		`SELECT `+positionColumns+`
		 FROM trading_positions
		 WHERE user_id = ? AND underlying = ? AND position_type = 'long'
		   AND open_date >= ? AND open_date <= ?
		 ORDER BY open_date ASC, id ASC`,
		userID, underlying, utils.FormatDate(from), utils.FormatDate(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query positions in window for %s: %w", underlying, err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

func collectPositions(rows *sql.Rows) ([]*domain.OptionPosition, error) {
	var positions []*domain.OptionPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func scanPosition(rows *sql.Rows) (*domain.OptionPosition, error) {
	var p domain.OptionPosition
	var optionType, positionType, status, qty, remainingQty, openDate, createdAt string
	var expiration, closeDate sql.NullString
	err := rows.Scan(&p.ID, &p.UserID, &p.Symbol, &p.Underlying, &optionType, &p.Strike, &expiration,
		&positionType, &qty, &remainingQty, &p.CostBasis, &p.OpenPrice, &openDate,
		&status, &p.ClosePrice, &closeDate, &p.Proceeds, &p.RealizedPL, &p.Strategy, &p.TradeNum,
		&createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan option position: %w", err)
	}
	p.OptionType = domain.OptionType(optionType)
	p.PositionType = domain.PositionType(positionType)
	p.Status = domain.PositionStatus(status)
	if p.Quantity, err = decimal.NewFromString(qty); err != nil {
		return nil, fmt.Errorf("invalid quantity %q for position %d: %w", qty, p.ID, err)
	}
	if p.RemainingQuantity, err = decimal.NewFromString(remainingQty); err != nil {
		return nil, fmt.Errorf("invalid remaining quantity %q for position %d: %w", remainingQty, p.ID, err)
	}
	if p.OpenDate, err = utils.ParseDate(openDate); err != nil {
		return nil, err
	}
	if expiration.Valid && expiration.String != "" {
		if t, perr := utils.ParseDate(expiration.String); perr == nil {
			p.Expiration = &t
		}
	}
	if closeDate.Valid && closeDate.String != "" {
		if t, perr := utils.ParseDate(closeDate.String); perr == nil {
			p.CloseDate = &t
		}
	}
	if t, perr := time.Parse(time.RFC3339, createdAt); perr == nil {
		p.CreatedAt = t
	}
	return &p, nil
}
