package washsale

import "database/sql"

// Schema for the applied-adjustment ledger in ledger.db. One row per
// (trigger, replacement) pair that has been applied; re-running detection
// after apply skips recorded pairs so an already-adjusted loss is never
// disallowed twice.
const Schema = `
CREATE TABLE IF NOT EXISTS washsale_adjustments (
    id INTEGER PRIMARY KEY,
    user_id TEXT NOT NULL,
    trigger_kind TEXT NOT NULL CHECK (trigger_kind IN ('stock','option')),
    trigger_id INTEGER NOT NULL,
    replacement_kind TEXT NOT NULL CHECK (replacement_kind IN ('stock','option')),
    replacement_id INTEGER NOT NULL,
    disallowed INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    UNIQUE (user_id, trigger_kind, trigger_id, replacement_kind, replacement_id)
);

CREATE INDEX IF NOT EXISTS idx_washsale_adjustments_user ON washsale_adjustments(user_id);
`

// CacheSchema for the scan report cache in cache.db. Reports are msgpack
// blobs; losing this table only costs a re-scan.
const CacheSchema = `
CREATE TABLE IF NOT EXISTS washsale_scan_cache (
    user_id TEXT PRIMARY KEY,
    report BLOB NOT NULL,
    generated_at TEXT NOT NULL
);
`

// InitSchema ensures the adjustment table exists in ledger.db
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// InitCacheSchema ensures the scan cache table exists in cache.db
func InitCacheSchema(db *sql.DB) error {
	_, err := db.Exec(CacheSchema)
	return err
}
