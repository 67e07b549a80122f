package washsale

import (
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/bookkeeper/internal/modules/lots"
	"github.com/aristath/bookkeeper/internal/modules/options"
	"github.com/aristath/bookkeeper/internal/utils"
)

// Detector scans realized losses against the 61-day replacement window.
// Detection is a pure read: it writes nothing except the report cache.
type Detector struct {
	lots     *lots.Repository
	options  *options.Repository
	repo     *Repository
	cache    *Cache
	currency string
	log      zerolog.Logger
}

// NewDetector creates a wash-sale detector over the lot and position
// repositories.
func NewDetector(lotsRepo *lots.Repository, optionsRepo *options.Repository, repo *Repository, cache *Cache, currency string, log zerolog.Logger) *Detector {
	if currency == "" {
		currency = "USD"
	}
	return &Detector{
		lots:     lotsRepo,
		options:  optionsRepo,
		repo:     repo,
		cache:    cache,
		currency: currency,
		log:      log.With().Str("service", "washsale").Logger(),
	}
}

// Detect runs a full scan for one user and returns the report. Two
// consecutive calls without an apply between them return identical
// reports: the scan is deterministic and mutates nothing. The report is
// stored in the cache for cheap re-reads.
func (d *Detector) Detect(userID string) (*Report, error) {
	applied, err := d.repo.AppliedPairs(userID)
	if err != nil {
		return nil, err
	}

	triggers, err := d.collectTriggers(userID, applied)
	if err != nil {
		return nil, err
	}

	report := &Report{
		UserID:      userID,
		GeneratedAt: time.Now().UTC(),
		Summary: Summary{
			CountByDir:      make(map[Direction]int),
			DisallowedByDir: make(map[Direction]int64),
		},
	}

	for _, trig := range triggers {
		violations, err := d.scanTrigger(userID, trig, applied)
		if err != nil {
			return nil, err
		}
		for _, v := range violations {
			report.Violations = append(report.Violations, v)
			report.Summary.ViolationCount++
			report.Summary.CountByDir[v.Direction]++
			report.Summary.DisallowedByDir[v.Direction] += v.DisallowedLoss
			report.Summary.TotalDisallowed += v.DisallowedLoss
		}
	}
	report.Summary.TotalDisplay = utils.FormatCents(report.Summary.TotalDisallowed, d.currency)

	if d.cache != nil {
		if err := d.cache.Put(report); err != nil {
			// Cache failures never fail a scan.
			d.log.Warn().Err(err).Str("user", userID).Msg("Failed to cache scan report")
		}
	}

	d.log.Info().
		Str("user", userID).
		Int("triggers", len(triggers)).
		Int("violations", report.Summary.ViolationCount).
		Int64("total_disallowed", report.Summary.TotalDisallowed).
		Msg("Completed wash-sale scan")

	return report, nil
}

// CachedReport returns the last stored report for a user, or nil.
func (d *Detector) CachedReport(userID string) (*Report, error) {
	if d.cache == nil {
		return nil, nil
	}
	return d.cache.Get(userID)
}

// collectTriggers gathers every realized loss with disallowable remainder:
// losing stock dispositions and losing closed option positions. Amounts
// already disallowed by applied adjustments are subtracted so a second
// scan after apply never re-disallows them.
func (d *Detector) collectTriggers(userID string, applied map[pairKey]int64) ([]trigger, error) {
	var triggers []trigger

	dispositions, err := d.lots.LossDispositions(userID)
	if err != nil {
		return nil, err
	}
	for _, disp := range dispositions {
		remaining := -disp.GainLoss - appliedTotal(applied, KindStock, disp.ID)
		if remaining <= 0 || disp.Quantity.LessThanOrEqual(decimal.Zero) {
			continue
		}
		triggers = append(triggers, trigger{
			kind:       KindStock,
			id:         disp.ID,
			symbol:     disp.Symbol,
			date:       disp.SaleDate,
			loss:       remaining,
			units:      disp.Quantity,
			excludeLot: disp.LotID,
		})
	}

	positions, err := d.options.LossClosedPositions(userID)
	if err != nil {
		return nil, err
	}
	for _, pos := range positions {
		if pos.CloseDate == nil {
			continue
		}
		remaining := -pos.RealizedPL - appliedTotal(applied, KindOption, pos.ID)
		units := pos.ShareEquivalents()
		if remaining <= 0 || units.LessThanOrEqual(decimal.Zero) {
			continue
		}
		triggers = append(triggers, trigger{
			kind:       KindOption,
			id:         pos.ID,
			symbol:     pos.Underlying,
			date:       *pos.CloseDate,
			loss:       remaining,
			units:      units,
			excludePos: pos.ID,
		})
	}

	return triggers, nil
}

// scanTrigger finds replacements in the trigger's window and consumes the
// trigger's loss greedily across them in replacement-date order. The
// aggregate disallowed amount never exceeds the trigger's own loss.
func (d *Detector) scanTrigger(userID string, trig trigger, applied map[pairKey]int64) ([]Violation, error) {
	from := trig.date.AddDate(0, 0, -windowDays)
	to := trig.date.AddDate(0, 0, windowDays)

	var replacements []replacement

	lotCandidates, err := d.lots.LotsAcquiredBetween(userID, trig.symbol, from, to)
	if err != nil {
		return nil, err
	}
	for _, lot := range lotCandidates {
		if trig.kind == KindStock && lot.ID == trig.excludeLot {
			continue
		}
		replacements = append(replacements, replacement{
			kind:      KindStock,
			id:        lot.ID,
			date:      lot.AcquiredDate,
			units:     lot.OriginalQuantity,
			costBasis: lot.CostBasis,
		})
	}

	// Conservative substantial-identity rule: any long call or put on the
	// same underlying counts.
	posCandidates, err := d.options.LongPositionsOpenedBetween(userID, trig.symbol, from, to)
	if err != nil {
		return nil, err
	}
	for _, pos := range posCandidates {
		if trig.kind == KindOption && pos.ID == trig.excludePos {
			continue
		}
		replacements = append(replacements, replacement{
			kind:      KindOption,
			id:        pos.ID,
			date:      pos.OpenDate,
			units:     pos.ShareEquivalents(),
			costBasis: pos.CostBasis,
		})
	}

	// First-in-time consumption order; kind then id break date ties so
	// repeated scans are deterministic.
	sort.SliceStable(replacements, func(i, j int) bool {
		if !replacements[i].date.Equal(replacements[j].date) {
			return replacements[i].date.Before(replacements[j].date)
		}
		if replacements[i].kind != replacements[j].kind {
			return replacements[i].kind < replacements[j].kind
		}
		return replacements[i].id < replacements[j].id
	})

	lossPerUnit := decimal.NewFromInt(trig.loss).Div(trig.units)
	remaining := trig.loss

	var violations []Violation
	for _, repl := range replacements {
		if remaining <= 0 {
			break
		}
		if repl.units.LessThanOrEqual(decimal.Zero) {
			continue
		}
		key := pairKey{
			triggerKind:     trig.kind,
			triggerID:       trig.id,
			replacementKind: repl.kind,
			replacementID:   repl.id,
		}
		if _, done := applied[key]; done {
			continue
		}

		affected := decimal.Min(trig.units, repl.units)
		disallowed := lossPerUnit.Mul(affected).Round(0).IntPart()
		if disallowed > remaining {
			disallowed = remaining
		}
		if disallowed <= 0 {
			continue
		}

		violations = append(violations, Violation{
			Direction:       directionFor(trig.kind, repl.kind),
			TriggerKind:     trig.kind,
			TriggerID:       trig.id,
			Symbol:          trig.symbol,
			TriggerDate:     trig.date,
			ReplacementKind: repl.kind,
			ReplacementID:   repl.id,
			ReplacementDate: repl.date,
			AffectedUnits:   affected,
			DisallowedLoss:  disallowed,
			AdjustedBasis:   repl.costBasis + disallowed,
		})
		remaining -= disallowed
	}

	return violations, nil
}

func directionFor(tk, rk SourceKind) Direction {
	switch {
	case tk == KindStock && rk == KindStock:
		return StockToStock
	case tk == KindStock && rk == KindOption:
		return StockToOption
	case tk == KindOption && rk == KindStock:
		return OptionToStock
	default:
		return OptionToOption
	}
}

func appliedTotal(applied map[pairKey]int64, kind SourceKind, triggerID int64) int64 {
	var total int64
	for key, amount := range applied {
		if key.triggerKind == kind && key.triggerID == triggerID {
			total += amount
		}
	}
	return total
}
