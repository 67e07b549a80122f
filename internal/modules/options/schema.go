package options

import "database/sql"

// Schema for option trading positions in ledger.db.
// Contract quantities are TEXT decimals; monetary columns are integer cents.
const Schema = `
CREATE TABLE IF NOT EXISTS trading_positions (
    id INTEGER PRIMARY KEY,
    user_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    underlying TEXT NOT NULL,
    option_type TEXT NOT NULL DEFAULT '' CHECK (option_type IN ('', 'call', 'put')),
    strike INTEGER NOT NULL DEFAULT 0,
    expiration TEXT,
    position_type TEXT NOT NULL CHECK (position_type IN ('long','short')),
    quantity TEXT NOT NULL,
    remaining_quantity TEXT NOT NULL,
    cost_basis INTEGER NOT NULL,
    open_price INTEGER NOT NULL,
    open_date TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'OPEN' CHECK (status IN ('OPEN','CLOSED')),
    close_price INTEGER NOT NULL DEFAULT 0,
    close_date TEXT,
    proceeds INTEGER NOT NULL DEFAULT 0,
    realized_pl INTEGER NOT NULL DEFAULT 0,
    strategy TEXT NOT NULL DEFAULT '',
    trade_num INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trading_positions_user_underlying ON trading_positions(user_id, underlying);
CREATE INDEX IF NOT EXISTS idx_trading_positions_status ON trading_positions(status);
CREATE INDEX IF NOT EXISTS idx_trading_positions_trade_num ON trading_positions(trade_num);
`

// InitSchema ensures the trading positions table exists in ledger.db
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
