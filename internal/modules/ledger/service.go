package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/bookkeeper/internal/database"
	"github.com/aristath/bookkeeper/internal/domain"
)

// Standard chart-of-accounts codes used by the trading modules.
const (
	AccountTradingCash    = "T-1010" // asset, debit-normal
	AccountStockPositions = "T-1400" // asset, debit-normal
	AccountLongOptions    = "T-1410" // asset, debit-normal
	AccountShortOptions   = "T-2410" // liability, credit-normal
	AccountRealizedGains  = "T-4200" // revenue, credit-normal
	AccountRealizedLosses = "T-5200" // expense, debit-normal
)

// Line is one side of a journal posting: an account code, a positive
// amount in cents, and the entry side.
type Line struct {
	AccountCode string
	Amount      int64 // cents, must be > 0
	Side        domain.BalanceSide
}

// PostInput describes a journal posting request.
type PostInput struct {
	Date        time.Time
	Description string
	ExternalRef string
	Strategy    string
	TradeNum    int64
	Lines       []Line
}

// Service posts balanced journal transactions and maintains running
// account balances. PostTransaction is the only legal mutation path for
// account balances.
type Service struct {
	db   *sql.DB
	repo *Repository
	log  zerolog.Logger
}

// NewService creates a new ledger service.
func NewService(db *sql.DB, repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		db:   db,
		repo: repo,
		log:  log.With().Str("service", "ledger").Logger(),
	}
}

// EnsureDefaultAccounts seeds the standard trading chart of accounts.
// Existing accounts are left untouched.
func (s *Service) EnsureDefaultAccounts() error {
	defaults := []domain.Account{
		{Code: AccountTradingCash, Name: "Trading Cash", Type: domain.AccountAsset, NormalBalance: domain.Debit},
		{Code: AccountStockPositions, Name: "Stock Positions", Type: domain.AccountAsset, NormalBalance: domain.Debit},
		{Code: AccountLongOptions, Name: "Long Option Positions", Type: domain.AccountAsset, NormalBalance: domain.Debit},
		{Code: AccountShortOptions, Name: "Short Option Positions", Type: domain.AccountLiability, NormalBalance: domain.Credit},
		{Code: AccountRealizedGains, Name: "Realized Gains", Type: domain.AccountRevenue, NormalBalance: domain.Credit},
		{Code: AccountRealizedLosses, Name: "Realized Losses", Type: domain.AccountExpense, NormalBalance: domain.Debit},
	}
	for i := range defaults {
		if err := s.repo.EnsureAccount(&defaults[i]); err != nil {
			return err
		}
	}
	return nil
}

// PostTransaction validates and posts one balanced journal transaction
// atomically: the header, one entry per line, and the balance delta on
// every touched account all commit or roll back together.
func (s *Service) PostTransaction(input PostInput) (*domain.JournalTransaction, error) {
	var jt *domain.JournalTransaction
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		var txErr error
		jt, txErr = s.PostInTx(tx, input)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return jt, nil
}

// PostInTx posts a journal transaction inside a caller-owned transaction.
// Used by the lot matching and options services so a sale's dispositions,
// lot updates and ledger posting share one atomic scope.
func (s *Service) PostInTx(tx *sql.Tx, input PostInput) (*domain.JournalTransaction, error) {
	if len(input.Lines) == 0 {
		return nil, fmt.Errorf("journal posting requires at least one line")
	}

	// Structural validation and the balance invariant come before any write.
	var debits, credits int64
	codes := make([]string, 0, len(input.Lines))
	for i, line := range input.Lines {
		if line.Amount <= 0 {
			return nil, fmt.Errorf("line %d (%s): amount must be positive, got %d", i, line.AccountCode, line.Amount)
		}
		switch line.Side {
		case domain.Debit:
			debits += line.Amount
		case domain.Credit:
			credits += line.Amount
		default:
			return nil, fmt.Errorf("line %d (%s): invalid side %q", i, line.AccountCode, line.Side)
		}
		codes = append(codes, line.AccountCode)
	}
	if debits != credits {
		return nil, &domain.UnbalancedEntryError{Debits: debits, Credits: credits}
	}

	accounts, err := s.repo.GetAccountsByCodesTx(tx, codes)
	if err != nil {
		return nil, err
	}
	var missing []string
	seen := make(map[string]bool)
	for _, code := range codes {
		if _, ok := accounts[code]; !ok && !seen[code] {
			missing = append(missing, code)
			seen[code] = true
		}
	}
	if len(missing) > 0 {
		return nil, &domain.AccountNotFoundError{Codes: missing}
	}

	jt := &domain.JournalTransaction{
		ID:          uuid.NewString(),
		Date:        input.Date,
		Description: input.Description,
		ExternalRef: input.ExternalRef,
		Strategy:    input.Strategy,
		TradeNum:    input.TradeNum,
		TotalAmount: debits,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.InsertTransactionTx(tx, jt); err != nil {
		return nil, err
	}

	// Balance deltas are interpreted by each account's normal side: an
	// entry on the normal side increases the balance, the other decreases.
	// Per-account deltas are accumulated so an account referenced twice is
	// updated once against one observed version.
	deltas := make(map[string]int64)
	for _, line := range input.Lines {
		entry := domain.LedgerEntry{
			TransactionID: jt.ID,
			AccountCode:   line.AccountCode,
			Amount:        line.Amount,
			Side:          line.Side,
		}
		if err := s.repo.InsertEntryTx(tx, &entry); err != nil {
			return nil, err
		}
		jt.Entries = append(jt.Entries, entry)

		acct := accounts[line.AccountCode]
		if line.Side == acct.NormalBalance {
			deltas[line.AccountCode] += line.Amount
		} else {
			deltas[line.AccountCode] -= line.Amount
		}
	}

	for code, delta := range deltas {
		if err := s.repo.ApplyBalanceDeltaTx(tx, code, delta, accounts[code].Version); err != nil {
			return nil, err
		}
	}

	s.log.Debug().
		Str("transaction_id", jt.ID).
		Int64("amount", jt.TotalAmount).
		Str("description", jt.Description).
		Msg("Posted journal transaction")

	return jt, nil
}

// Accounts returns the chart of accounts with current balances.
func (s *Service) Accounts() ([]*domain.Account, error) {
	return s.repo.ListAccounts()
}

// Account returns one account by code, or nil when it does not exist.
func (s *Service) Account(code string) (*domain.Account, error) {
	return s.repo.GetAccountByCode(code)
}

// Transaction returns a journal transaction with its entries, or nil.
func (s *Service) Transaction(id string) (*domain.JournalTransaction, error) {
	return s.repo.GetTransaction(id)
}

// Transactions returns the most recent journal transactions.
func (s *Service) Transactions(limit int) ([]*domain.JournalTransaction, error) {
	return s.repo.ListTransactions(limit)
}
