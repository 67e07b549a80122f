package lots

import "database/sql"

// Schema for stock lots and lot dispositions in ledger.db.
// Quantities are stored as TEXT decimals to keep fractional shares exact;
// all monetary columns are integer cents.
const Schema = `
CREATE TABLE IF NOT EXISTS stock_lots (
    id INTEGER PRIMARY KEY,
    user_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    acquired_date TEXT NOT NULL,
    original_quantity TEXT NOT NULL,
    remaining_quantity TEXT NOT NULL,
    cost_per_share INTEGER NOT NULL,
    cost_basis INTEGER NOT NULL,
    status TEXT NOT NULL DEFAULT 'OPEN' CHECK (status IN ('OPEN','PARTIAL','CLOSED')),
    wash_sale_adjustment INTEGER NOT NULL DEFAULT 0,
    disallowed_loss INTEGER NOT NULL DEFAULT 0,
    adjustment_source INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS lot_dispositions (
    id INTEGER PRIMARY KEY,
    lot_id INTEGER NOT NULL REFERENCES stock_lots(id),
    user_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    sale_ref TEXT NOT NULL,
    sale_date TEXT NOT NULL,
    quantity TEXT NOT NULL,
    proceeds INTEGER NOT NULL,
    fees INTEGER NOT NULL DEFAULT 0,
    cost_basis INTEGER NOT NULL,
    gain_loss INTEGER NOT NULL,
    holding_days INTEGER NOT NULL,
    long_term INTEGER NOT NULL DEFAULT 0,
    method TEXT NOT NULL,
    wash_sale INTEGER NOT NULL DEFAULT 0,
    disallowed_amount INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stock_lots_user_symbol ON stock_lots(user_id, symbol);
CREATE INDEX IF NOT EXISTS idx_stock_lots_status ON stock_lots(status);
CREATE INDEX IF NOT EXISTS idx_lot_dispositions_user_symbol ON lot_dispositions(user_id, symbol);
CREATE INDEX IF NOT EXISTS idx_lot_dispositions_sale_date ON lot_dispositions(sale_date);
`

// InitSchema ensures the lot tables exist in ledger.db
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
