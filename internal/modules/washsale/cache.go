package washsale

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Cache stores the latest scan report per user in cache.db as a msgpack
// blob. Purely ephemeral: apply invalidates, loss costs a re-scan.
type Cache struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCache creates a new scan report cache.
func NewCache(db *sql.DB, log zerolog.Logger) *Cache {
	return &Cache{
		db:  db,
		log: log.With().Str("repo", "washsale_cache").Logger(),
	}
}

// Put stores a report, replacing any previous one for the user.
func (c *Cache) Put(report *Report) error {
	blob, err := msgpack.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode scan report: %w", err)
	}
	_, err = c.db.Exec(
		`INSERT INTO washsale_scan_cache (user_id, report, generated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET report = excluded.report, generated_at = excluded.generated_at`,
		report.UserID, blob, report.GeneratedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to store scan report: %w", err)
	}
	return nil
}

// Get returns the cached report for a user, or nil when absent.
func (c *Cache) Get(userID string) (*Report, error) {
	var blob []byte
	err := c.db.QueryRow(
		`SELECT report FROM washsale_scan_cache WHERE user_id = ?`, userID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load scan report: %w", err)
	}
	var report Report
	if err := msgpack.Unmarshal(blob, &report); err != nil {
		// Corrupt cache entry: drop it rather than fail the caller.
		c.log.Warn().Err(err).Str("user", userID).Msg("Dropping undecodable scan report from cache")
		c.Invalidate(userID)
		return nil, nil
	}
	return &report, nil
}

// Invalidate removes a user's cached report.
func (c *Cache) Invalidate(userID string) {
	if _, err := c.db.Exec(`DELETE FROM washsale_scan_cache WHERE user_id = ?`, userID); err != nil {
		c.log.Warn().Err(err).Str("user", userID).Msg("Failed to invalidate scan report cache")
	}
}
