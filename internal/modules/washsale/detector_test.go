package washsale

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/bookkeeper/internal/domain"
	"github.com/aristath/bookkeeper/internal/modules/ledger"
	"github.com/aristath/bookkeeper/internal/modules/lots"
	"github.com/aristath/bookkeeper/internal/modules/options"
)

const testUser = "user-1"

type fixture struct {
	lots     *lots.Service
	options  *options.Service
	detector *Detector
	applier  *Applier
	cache    *Cache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zerolog.Nop()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, ledger.InitSchema(db))
	require.NoError(t, lots.InitSchema(db))
	require.NoError(t, options.InitSchema(db))
	require.NoError(t, InitSchema(db))

	cacheDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { cacheDB.Close() })
	require.NoError(t, InitCacheSchema(cacheDB))

	ledgerSvc := ledger.NewService(db, ledger.NewRepository(db, log), log)
	require.NoError(t, ledgerSvc.EnsureDefaultAccounts())

	lotsRepo := lots.NewRepository(db, log)
	optionsRepo := options.NewRepository(db, log)
	cache := NewCache(cacheDB, log)
	detector := NewDetector(lotsRepo, optionsRepo, NewRepository(db, log), cache, "USD", log)

	return &fixture{
		lots:     lots.NewService(db, lotsRepo, ledgerSvc, log),
		options:  options.NewService(db, optionsRepo, ledgerSvc, log),
		detector: detector,
		applier:  NewApplier(db, detector),
		cache:    cache,
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func qty(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (f *fixture) buy(t *testing.T, symbol, quantity string, price float64, day time.Time) *domain.StockLot {
	t.Helper()
	lot, err := f.lots.RecordPurchase(lots.PurchaseInput{
		UserID:   testUser,
		Symbol:   symbol,
		Quantity: qty(quantity),
		Price:    price,
		Date:     day,
	})
	require.NoError(t, err)
	return lot
}

func (f *fixture) sell(t *testing.T, symbol, quantity string, price float64, day time.Time) *lots.MatchResult {
	t.Helper()
	result, err := f.lots.MatchSale(lots.SaleInput{
		UserID:   testUser,
		Symbol:   symbol,
		Quantity: qty(quantity),
		Price:    price,
		Date:     day,
		Method:   lots.FIFO,
	})
	require.NoError(t, err)
	return result
}

func (f *fixture) openCall(t *testing.T, underlying string, contracts string, amount float64, day time.Time) *domain.OptionPosition {
	t.Helper()
	position, err := f.options.OpenLeg(&options.Leg{
		UserID:     testUser,
		Symbol:     underlying + " CALL",
		Underlying: underlying,
		OptionType: domain.Call,
		Strike:     19000,
		Action:     options.BuyToOpen,
		Quantity:   qty(contracts),
		Amount:     amount,
		Date:       day,
	})
	require.NoError(t, err)
	return position
}

func (f *fixture) closeCall(t *testing.T, underlying string, contracts string, amount float64, day time.Time) *domain.OptionPosition {
	t.Helper()
	position, err := f.options.CloseLeg(&options.Leg{
		UserID:     testUser,
		Symbol:     underlying + " CALL",
		Underlying: underlying,
		OptionType: domain.Call,
		Strike:     19000,
		Action:     options.SellToClose,
		Quantity:   qty(contracts),
		Amount:     amount,
		Date:       day,
	})
	require.NoError(t, err)
	return position
}

// The canonical case: sell 100 shares at a $1,000 loss, repurchase 50
// within 30 days. Half the loss is disallowed and moves onto the
// replacement lot's basis.
func TestDetect_StockToStockPartialRepurchase(t *testing.T) {
	f := newFixture(t)

	f.buy(t, "AAPL", "100", 20.00, date(2023, 11, 1))
	f.sell(t, "AAPL", "100", 10.00, date(2024, 2, 1))
	repurchase := f.buy(t, "AAPL", "50", 11.00, date(2024, 2, 15))

	report, err := f.detector.Detect(testUser)
	require.NoError(t, err)

	require.Len(t, report.Violations, 1)
	v := report.Violations[0]
	assert.Equal(t, StockToStock, v.Direction)
	assert.Equal(t, KindStock, v.TriggerKind)
	assert.Equal(t, KindStock, v.ReplacementKind)
	assert.Equal(t, repurchase.ID, v.ReplacementID)
	assert.True(t, v.AffectedUnits.Equal(qty("50")))
	assert.Equal(t, int64(50000), v.DisallowedLoss)
	assert.Equal(t, repurchase.CostBasis+50000, v.AdjustedBasis)

	assert.Equal(t, int64(50000), report.Summary.TotalDisallowed)
	assert.Equal(t, 1, report.Summary.CountByDir[StockToStock])
	assert.Equal(t, "$500.00", report.Summary.TotalDisplay)
}

func TestDetect_WindowBoundaries(t *testing.T) {
	// Sale on 2024-02-01: the window closes 2024-03-02 inclusive.
	testCases := []struct {
		name       string
		repurchase time.Time
		violations int
	}{
		{"day 30 inside", date(2024, 3, 2), 1},
		{"day 31 outside", date(2024, 3, 3), 0},
		{"30 days before inside", date(2024, 1, 2), 1},
		{"31 days before outside", date(2024, 1, 1), 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.buy(t, "AAPL", "100", 20.00, date(2023, 11, 1))
			f.buy(t, "AAPL", "40", 21.00, tc.repurchase)
			f.sell(t, "AAPL", "100", 10.00, date(2024, 2, 1))

			report, err := f.detector.Detect(testUser)
			require.NoError(t, err)
			assert.Len(t, report.Violations, tc.violations)
		})
	}
}

func TestDetect_GainsProduceNoViolations(t *testing.T) {
	f := newFixture(t)

	f.buy(t, "AAPL", "100", 10.00, date(2023, 11, 1))
	f.sell(t, "AAPL", "100", 20.00, date(2024, 2, 1))
	f.buy(t, "AAPL", "100", 21.00, date(2024, 2, 10))

	report, err := f.detector.Detect(testUser)
	require.NoError(t, err)
	assert.Empty(t, report.Violations)
}

func TestDetect_DisallowedNeverExceedsLoss(t *testing.T) {
	f := newFixture(t)

	// $1,000 loss on 100 shares, then 160 replacement shares across two
	// lots. The second violation is capped at the remaining loss.
	f.buy(t, "AAPL", "100", 20.00, date(2023, 11, 1))
	f.sell(t, "AAPL", "100", 10.00, date(2024, 2, 1))
	f.buy(t, "AAPL", "80", 11.00, date(2024, 2, 10))
	f.buy(t, "AAPL", "80", 11.50, date(2024, 2, 20))

	report, err := f.detector.Detect(testUser)
	require.NoError(t, err)

	require.Len(t, report.Violations, 2)
	assert.Equal(t, int64(80000), report.Violations[0].DisallowedLoss)
	assert.Equal(t, int64(20000), report.Violations[1].DisallowedLoss)
	assert.Equal(t, int64(100000), report.Summary.TotalDisallowed)
}

func TestDetect_StockLossOptionReplacement(t *testing.T) {
	f := newFixture(t)

	f.buy(t, "AAPL", "100", 20.00, date(2023, 11, 1))
	f.sell(t, "AAPL", "100", 10.00, date(2024, 2, 1))
	// A long call on the same underlying inside the window counts as a
	// replacement at 100 share-equivalents per contract.
	f.openCall(t, "AAPL", "2", -500.00, date(2024, 2, 10))

	report, err := f.detector.Detect(testUser)
	require.NoError(t, err)

	require.Len(t, report.Violations, 1)
	v := report.Violations[0]
	assert.Equal(t, StockToOption, v.Direction)
	assert.Equal(t, KindOption, v.ReplacementKind)
	assert.True(t, v.AffectedUnits.Equal(qty("100"))) // min(100 shares, 200 equivalents)
	assert.Equal(t, int64(100000), v.DisallowedLoss)
}

func TestDetect_OptionLossStockReplacement(t *testing.T) {
	f := newFixture(t)

	// Long call closed at a $300 loss: basis $500, proceeds $200.
	f.openCall(t, "AAPL", "1", -500.00, date(2024, 1, 5))
	f.closeCall(t, "AAPL", "1", 200.00, date(2024, 2, 1))
	f.buy(t, "AAPL", "50", 11.00, date(2024, 2, 10))

	report, err := f.detector.Detect(testUser)
	require.NoError(t, err)

	require.Len(t, report.Violations, 1)
	v := report.Violations[0]
	assert.Equal(t, OptionToStock, v.Direction)
	assert.Equal(t, KindOption, v.TriggerKind)
	// Loss per share-equivalent: 30000 / 100 = 300; 50 shares affected.
	assert.True(t, v.AffectedUnits.Equal(qty("50")))
	assert.Equal(t, int64(15000), v.DisallowedLoss)
}

func TestDetect_SymbolsDoNotCrossMatch(t *testing.T) {
	f := newFixture(t)

	f.buy(t, "AAPL", "100", 20.00, date(2023, 11, 1))
	f.sell(t, "AAPL", "100", 10.00, date(2024, 2, 1))
	f.buy(t, "MSFT", "100", 11.00, date(2024, 2, 10))

	report, err := f.detector.Detect(testUser)
	require.NoError(t, err)
	assert.Empty(t, report.Violations)
}

func TestDetect_DeterministicWithoutApply(t *testing.T) {
	f := newFixture(t)

	f.buy(t, "AAPL", "100", 20.00, date(2023, 11, 1))
	f.sell(t, "AAPL", "100", 10.00, date(2024, 2, 1))
	f.buy(t, "AAPL", "80", 11.00, date(2024, 2, 10))
	f.buy(t, "AAPL", "80", 11.50, date(2024, 2, 20))

	first, err := f.detector.Detect(testUser)
	require.NoError(t, err)
	second, err := f.detector.Detect(testUser)
	require.NoError(t, err)

	assert.Equal(t, first.Violations, second.Violations)
	assert.Equal(t, first.Summary.TotalDisallowed, second.Summary.TotalDisallowed)
}

func TestApply_AdjustsRecordsAndIsIdempotent(t *testing.T) {
	f := newFixture(t)

	f.buy(t, "AAPL", "100", 20.00, date(2023, 11, 1))
	sale := f.sell(t, "AAPL", "100", 10.00, date(2024, 2, 1))
	repurchase := f.buy(t, "AAPL", "50", 11.00, date(2024, 2, 15))

	report, err := f.detector.Detect(testUser)
	require.NoError(t, err)
	require.Len(t, report.Violations, 1)

	applied, err := f.applier.Apply(testUser, report.Violations)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	// The losing disposition is flagged with the disallowed amount.
	dispositions, err := f.lots.Dispositions(testUser, "AAPL")
	require.NoError(t, err)
	require.Len(t, dispositions, 1)
	assert.Equal(t, sale.Dispositions[0].ID, dispositions[0].ID)
	assert.True(t, dispositions[0].WashSale)
	assert.Equal(t, int64(50000), dispositions[0].DisallowedAmount)

	// The replacement lot's basis grows by the disallowed loss.
	current, err := f.lots.Lots(testUser, "AAPL")
	require.NoError(t, err)
	var adjusted *domain.StockLot
	for _, lot := range current {
		if lot.ID == repurchase.ID {
			adjusted = lot
		}
	}
	require.NotNil(t, adjusted)
	assert.Equal(t, repurchase.CostBasis+50000, adjusted.CostBasis)
	assert.Equal(t, int64(50000), adjusted.WashSaleAdjustment)
	// 50000 disallowed over 50 shares: +1000 per share.
	assert.Equal(t, repurchase.CostPerShare+1000, adjusted.CostPerShare)

	// A re-scan reports nothing new: the pair is recorded and the
	// remaining loss has no other replacement.
	rescan, err := f.detector.Detect(testUser)
	require.NoError(t, err)
	assert.Empty(t, rescan.Violations)

	// Re-applying the original report is a no-op.
	applied, err = f.applier.Apply(testUser, report.Violations)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)

	// And the lot is not double-adjusted.
	again, err := f.lots.Lots(testUser, "AAPL")
	require.NoError(t, err)
	for _, lot := range again {
		if lot.ID == repurchase.ID {
			assert.Equal(t, repurchase.CostBasis+50000, lot.CostBasis)
		}
	}
}

func TestApply_StockTriggerOptionReplacementMarksDispositionOnly(t *testing.T) {
	f := newFixture(t)

	f.buy(t, "AAPL", "100", 20.00, date(2023, 11, 1))
	f.sell(t, "AAPL", "100", 10.00, date(2024, 2, 1))
	f.openCall(t, "AAPL", "2", -500.00, date(2024, 2, 10))

	report, err := f.detector.Detect(testUser)
	require.NoError(t, err)
	require.Len(t, report.Violations, 1)

	applied, err := f.applier.Apply(testUser, report.Violations)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	dispositions, err := f.lots.Dispositions(testUser, "AAPL")
	require.NoError(t, err)
	require.Len(t, dispositions, 1)
	assert.True(t, dispositions[0].WashSale)
	assert.Equal(t, int64(100000), dispositions[0].DisallowedAmount)
}

func TestCachedReport_Lifecycle(t *testing.T) {
	f := newFixture(t)

	f.buy(t, "AAPL", "100", 20.00, date(2023, 11, 1))
	f.sell(t, "AAPL", "100", 10.00, date(2024, 2, 1))
	f.buy(t, "AAPL", "50", 11.00, date(2024, 2, 15))

	// No scan yet: nothing cached.
	cached, err := f.detector.CachedReport(testUser)
	require.NoError(t, err)
	assert.Nil(t, cached)

	report, err := f.detector.Detect(testUser)
	require.NoError(t, err)

	cached, err = f.detector.CachedReport(testUser)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, testUser, cached.UserID)
	assert.Len(t, cached.Violations, len(report.Violations))
	assert.Equal(t, report.Summary.TotalDisallowed, cached.Summary.TotalDisallowed)

	// Applying invalidates the cached report.
	_, err = f.applier.Apply(testUser, report.Violations)
	require.NoError(t, err)

	cached, err = f.detector.CachedReport(testUser)
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestDetect_PartialReplacementProRatesLoss(t *testing.T) {
	f := newFixture(t)

	// 100 shares bought Jan 1 at $50, all sold Mar 1 at $40: a $1,000
	// short-term loss realized after 59 days. Half the position is
	// repurchased two weeks later, so half the loss is disallowed.
	f.buy(t, "XYZ", "100", 50.00, date(2023, 1, 1))
	sale := f.sell(t, "XYZ", "100", 40.00, date(2023, 3, 1))
	f.buy(t, "XYZ", "50", 41.00, date(2023, 3, 15))

	require.Len(t, sale.Dispositions, 1)
	d := sale.Dispositions[0]
	assert.Equal(t, int64(-100000), d.GainLoss)
	assert.Equal(t, 59, d.HoldingDays)
	assert.False(t, d.LongTerm)

	report, err := f.detector.Detect(testUser)
	require.NoError(t, err)

	require.Len(t, report.Violations, 1)
	v := report.Violations[0]
	assert.True(t, v.AffectedUnits.Equal(qty("50")))
	assert.Equal(t, int64(50000), v.DisallowedLoss)
	assert.Equal(t, "$500.00", report.Summary.TotalDisplay)
}
