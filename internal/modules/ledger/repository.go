// Package ledger implements the double-entry ledger core: balanced journal
// postings and running account balances over ledger.db.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/bookkeeper/internal/domain"
	"github.com/aristath/bookkeeper/internal/utils"
)

// Repository handles persistence for accounts, journal transactions and
// ledger entries. Balance mutations only happen through the transaction-
// scoped methods, called by the Service inside one database transaction.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new ledger repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "ledger").Logger(),
	}
}

// EnsureAccount inserts an account if its code does not exist yet.
func (r *Repository) EnsureAccount(acct *domain.Account) error {
	query := `
		INSERT INTO accounts (code, name, type, normal_balance, settled_balance, version, created_at)
		VALUES (?, ?, ?, ?, 0, 0, ?)
		ON CONFLICT(code) DO NOTHING
	`
	_, err := r.db.Exec(query, acct.Code, acct.Name, string(acct.Type), string(acct.NormalBalance),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to ensure account %s: %w", acct.Code, err)
	}
	return nil
}

// GetAccountByCode returns one account, or nil if not found.
func (r *Repository) GetAccountByCode(code string) (*domain.Account, error) {
	row := r.db.QueryRow(
		`SELECT id, code, name, type, normal_balance, settled_balance, version, created_at
		 FROM accounts WHERE code = ?`, code)
	acct, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return acct, err
}

// ListAccounts returns all accounts ordered by code.
func (r *Repository) ListAccounts() ([]*domain.Account, error) {
	rows, err := r.db.Query(
		`SELECT id, code, name, type, normal_balance, settled_balance, version, created_at
		 FROM accounts ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

// GetAccountsByCodesTx resolves account codes inside a transaction, keyed
// by code. Missing codes are simply absent from the map.
func (r *Repository) GetAccountsByCodesTx(tx *sql.Tx, codes []string) (map[string]*domain.Account, error) {
	accounts := make(map[string]*domain.Account, len(codes))
	for _, code := range codes {
		if _, ok := accounts[code]; ok {
			continue
		}
		row := tx.QueryRow(
			`SELECT id, code, name, type, normal_balance, settled_balance, version, created_at
			 FROM accounts WHERE code = ?`, code)
		acct, err := scanAccount(row)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		accounts[code] = acct
	}
	return accounts, nil
}

// InsertTransactionTx inserts a journal transaction header.
func (r *Repository) InsertTransactionTx(tx *sql.Tx, jt *domain.JournalTransaction) error {
	_, err := tx.Exec(
		`INSERT INTO journal_transactions (id, date, description, external_ref, strategy, trade_num, total_amount, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		jt.ID, utils.FormatDate(jt.Date), jt.Description, jt.ExternalRef, jt.Strategy, jt.TradeNum,
		jt.TotalAmount, jt.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert journal transaction: %w", err)
	}
	return nil
}

// InsertEntryTx inserts one ledger entry for a journal transaction.
func (r *Repository) InsertEntryTx(tx *sql.Tx, e *domain.LedgerEntry) error {
	result, err := tx.Exec(
		`INSERT INTO ledger_entries (transaction_id, account_code, amount, side)
		 VALUES (?, ?, ?, ?)`,
		e.TransactionID, e.AccountCode, e.Amount, string(e.Side))
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get ledger entry id: %w", err)
	}
	e.ID = id
	return nil
}

// ApplyBalanceDeltaTx applies a signed balance delta to an account using
// optimistic versioning. Zero rows affected means another posting moved
// the version underneath us and the whole transaction must be retried.
func (r *Repository) ApplyBalanceDeltaTx(tx *sql.Tx, code string, delta int64, expectedVersion int64) error {
	result, err := tx.Exec(
		`UPDATE accounts
		 SET settled_balance = settled_balance + ?, version = version + 1
		 WHERE code = ? AND version = ?`,
		delta, code, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update balance for %s: %w", code, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check balance update for %s: %w", code, err)
	}
	if affected == 0 {
		return &domain.VersionConflictError{Code: code, Version: expectedVersion}
	}
	return nil
}

// GetTransaction returns a journal transaction with its entries, or nil.
func (r *Repository) GetTransaction(id string) (*domain.JournalTransaction, error) {
	row := r.db.QueryRow(
		`SELECT id, date, description, external_ref, strategy, trade_num, total_amount, created_at
		 FROM journal_transactions WHERE id = ?`, id)
	jt, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(
		`SELECT id, transaction_id, account_code, amount, side
		 FROM ledger_entries WHERE transaction_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e domain.LedgerEntry
		var side string
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.AccountCode, &e.Amount, &side); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Side = domain.BalanceSide(side)
		jt.Entries = append(jt.Entries, e)
	}
	return jt, rows.Err()
}

// ListTransactions returns the most recent journal transactions.
func (r *Repository) ListTransactions(limit int) ([]*domain.JournalTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(
		`SELECT id, date, description, external_ref, strategy, trade_num, total_amount, created_at
		 FROM journal_transactions ORDER BY date DESC, created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal transactions: %w", err)
	}
	defer rows.Close()

	var txns []*domain.JournalTransaction
	for rows.Next() {
		jt, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, jt)
	}
	return txns, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(s scanner) (*domain.Account, error) {
	var acct domain.Account
	var accountType, normalBalance, createdAt string
	err := s.Scan(&acct.ID, &acct.Code, &acct.Name, &accountType, &normalBalance,
		&acct.SettledBalance, &acct.Version, &createdAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	acct.Type = domain.AccountType(accountType)
	acct.NormalBalance = domain.BalanceSide(normalBalance)
	if t, perr := time.Parse(time.RFC3339, createdAt); perr == nil {
		acct.CreatedAt = t
	}
	return &acct, nil
}

func scanTransaction(s scanner) (*domain.JournalTransaction, error) {
	var jt domain.JournalTransaction
	var date, createdAt string
	var externalRef, strategy sql.NullString
	err := s.Scan(&jt.ID, &date, &jt.Description, &externalRef, &strategy, &jt.TradeNum,
		&jt.TotalAmount, &createdAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan journal transaction: %w", err)
	}
	jt.ExternalRef = externalRef.String
	jt.Strategy = strategy.String
	if t, perr := utils.ParseDate(date); perr == nil {
		jt.Date = t
	}
	if t, perr := time.Parse(time.RFC3339, createdAt); perr == nil {
		jt.CreatedAt = t
	}
	return &jt, nil
}
