package washsale

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// pairKey identifies one applied (trigger, replacement) adjustment.
type pairKey struct {
	triggerKind     SourceKind
	triggerID       int64
	replacementKind SourceKind
	replacementID   int64
}

// Repository tracks applied wash-sale adjustments in ledger.db.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new wash-sale adjustments repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "washsale").Logger(),
	}
}

// AppliedPairs returns the already-applied (trigger, replacement) pairs
// for a user with the disallowed amount recorded for each.
func (r *Repository) AppliedPairs(userID string) (map[pairKey]int64, error) {
	rows, err := r.db.Query(
		`SELECT trigger_kind, trigger_id, replacement_kind, replacement_id, disallowed
		 FROM washsale_adjustments WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied adjustments: %w", err)
	}
	defer rows.Close()

	applied := make(map[pairKey]int64)
	for rows.Next() {
		var tk, rk string
		var key pairKey
		var disallowed int64
		if err := rows.Scan(&tk, &key.triggerID, &rk, &key.replacementID, &disallowed); err != nil {
			return nil, fmt.Errorf("failed to scan applied adjustment: %w", err)
		}
		key.triggerKind = SourceKind(tk)
		key.replacementKind = SourceKind(rk)
		applied[key] = disallowed
	}
	return applied, rows.Err()
}

// RecordPairTx records an applied adjustment pair inside a transaction.
// Returns false without error when the pair was already recorded.
func (r *Repository) RecordPairTx(tx *sql.Tx, userID string, v *Violation) (bool, error) {
	result, err := tx.Exec(
		`INSERT INTO washsale_adjustments
		     (user_id, trigger_kind, trigger_id, replacement_kind, replacement_id, disallowed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		userID, string(v.TriggerKind), v.TriggerID, string(v.ReplacementKind), v.ReplacementID,
		v.DisallowedLoss, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("failed to record adjustment pair: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check adjustment insert: %w", err)
	}
	return affected > 0, nil
}

// ActiveUsers returns every user with lot or position history. The
// scheduled scan iterates this set.
func (r *Repository) ActiveUsers() ([]string, error) {
	rows, err := r.db.Query(
		`SELECT DISTINCT user_id FROM stock_lots
		 UNION
		 SELECT DISTINCT user_id FROM trading_positions
		 ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		users = append(users, userID)
	}
	return users, rows.Err()
}
