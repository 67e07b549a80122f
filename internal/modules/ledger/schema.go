package ledger

import "database/sql"

// Schema for the double-entry tables in ledger.db.
// Journal transactions and entries are append-only; account balances are
// the only mutable rows and are written exclusively by the posting service.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id INTEGER PRIMARY KEY,
    code TEXT UNIQUE NOT NULL,
    name TEXT NOT NULL,
    type TEXT NOT NULL CHECK (type IN ('asset','liability','equity','revenue','expense')),
    normal_balance TEXT NOT NULL CHECK (normal_balance IN ('debit','credit')),
    settled_balance INTEGER NOT NULL DEFAULT 0,
    version INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS journal_transactions (
    id TEXT PRIMARY KEY,
    date TEXT NOT NULL,
    description TEXT NOT NULL,
    external_ref TEXT,
    strategy TEXT,
    trade_num INTEGER NOT NULL DEFAULT 0,
    total_amount INTEGER NOT NULL,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_entries (
    id INTEGER PRIMARY KEY,
    transaction_id TEXT NOT NULL REFERENCES journal_transactions(id),
    account_code TEXT NOT NULL REFERENCES accounts(code),
    amount INTEGER NOT NULL CHECK (amount > 0),
    side TEXT NOT NULL CHECK (side IN ('debit','credit'))
);

CREATE INDEX IF NOT EXISTS idx_journal_transactions_date ON journal_transactions(date);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_transaction ON ledger_entries(transaction_id);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_account ON ledger_entries(account_code);
`

// InitSchema ensures the ledger tables exist in ledger.db
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
