package washsale

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aristath/bookkeeper/internal/database"
)

// Applier writes detected violations back into the bookkeeping records:
// wash-sale flags on losing dispositions and basis adjustments on
// replacement stock lots. Each violation is applied in its own
// transaction so a failure on one never corrupts another.
type Applier struct {
	db       *sql.DB // ledger.db: dispositions, lots, adjustment pairs
	detector *Detector
}

// NewApplier creates an applier sharing the detector's repositories.
func NewApplier(db *sql.DB, detector *Detector) *Applier {
	return &Applier{db: db, detector: detector}
}

// Apply writes each violation's adjustments. Already-recorded pairs are
// skipped, making repeated applies of the same report harmless. Returns
// the number of violations applied; per-violation failures are collected
// and returned joined after the remaining violations have been attempted.
func (a *Applier) Apply(userID string, violations []Violation) (int, error) {
	applied := 0
	var errs []error

	for i := range violations {
		v := &violations[i]
		didApply := false
		err := database.WithTransaction(a.db, func(tx *sql.Tx) error {
			recorded, err := a.detector.repo.RecordPairTx(tx, userID, v)
			if err != nil {
				return err
			}
			if !recorded {
				// Pair already applied in a previous pass.
				return nil
			}

			if v.TriggerKind == KindStock {
				if err := a.detector.lots.MarkDispositionWashSaleTx(tx, v.TriggerID, v.DisallowedLoss); err != nil {
					return err
				}
			}

			if v.ReplacementKind == KindStock {
				lot, err := a.detector.lots.GetLotByID(userID, v.ReplacementID)
				if err != nil {
					return err
				}
				if lot == nil {
					return fmt.Errorf("replacement lot %d not found for user %s", v.ReplacementID, userID)
				}
				perShare := int64(0)
				if lot.OriginalQuantity.GreaterThan(decimal.Zero) {
					perShare = decimal.NewFromInt(v.DisallowedLoss).Div(lot.OriginalQuantity).Round(0).IntPart()
				}
				if err := a.detector.lots.ApplyLotAdjustmentTx(tx, v.ReplacementID, v.DisallowedLoss, perShare, v.TriggerID); err != nil {
					return err
				}
			}

			didApply = true
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("violation %d (%s trigger %d): %w", i, v.TriggerKind, v.TriggerID, err))
		} else if didApply {
			applied++
		}
	}

	// Applied adjustments change what detection would report.
	if a.detector.cache != nil {
		a.detector.cache.Invalidate(userID)
	}

	if len(errs) > 0 {
		return applied, errors.Join(errs...)
	}
	return applied, nil
}
