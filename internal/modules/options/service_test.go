package options

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
)

const testUser = "user-1"

func newTestService(t *testing.T) (*Service, *ledger.Service) {
	t.Helper()
	log := zerolog.Nop()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, ledger.InitSchema(db))
	require.NoError(t, InitSchema(db))

	ledgerSvc := ledger.NewService(db, ledger.NewRepository(db, log), log)
	require.NoError(t, ledgerSvc.EnsureDefaultAccounts())

	return NewService(db, NewRepository(db, log), ledgerSvc, log), ledgerSvc
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func callLeg(action LegAction, amount, fees float64, day time.Time) *Leg {
	return &Leg{
		UserID:     testUser,
		Symbol:     "AAPL 240621C00190000",
		Underlying: "AAPL",
		OptionType: domain.Call,
		Strike:     19000,
		Action:     action,
		Quantity:   decimal.NewFromInt(2),
		Amount:     amount,
		Fees:       fees,
		Date:       day,
	}
}

func TestOpenLeg_LongPosition(t *testing.T) {
	svc, ledgerSvc := newTestService(t)

	position, err := svc.OpenLeg(callLeg(BuyToOpen, -500.00, 1.30, date(2024, 3, 1)))
	require.NoError(t, err)

	// |amount| + fees rounded once: 501.30 -> 50130 cents.
	assert.Equal(t, int64(50130), position.CostBasis)
	assert.Equal(t, domain.Long, position.PositionType)
	assert.Equal(t, domain.PositionOpen, position.Status)
	assert.Equal(t, int64(25065), position.OpenPrice) // basis / 2 contracts

	longOptions, err := ledgerSvc.Account(ledger.AccountLongOptions)
	require.NoError(t, err)
	assert.Equal(t, int64(50130), longOptions.SettledBalance)

	cash, err := ledgerSvc.Account(ledger.AccountTradingCash)
	require.NoError(t, err)
	assert.Equal(t, int64(-50130), cash.SettledBalance)
}

func TestCloseLeg_LongProfit(t *testing.T) {
	svc, ledgerSvc := newTestService(t)

	_, err := svc.OpenLeg(callLeg(BuyToOpen, -500.00, 1.30, date(2024, 3, 1)))
	require.NoError(t, err)

	closed, err := svc.CloseLeg(callLeg(SellToClose, 700.00, 1.30, date(2024, 3, 20)))
	require.NoError(t, err)

	// Proceeds net of fees: 698.70 -> 69870; P&L = 69870 - 50130.
	assert.Equal(t, int64(69870), closed.Proceeds)
	assert.Equal(t, int64(19740), closed.RealizedPL)
	assert.Equal(t, domain.PositionClosed, closed.Status)
	require.NotNil(t, closed.CloseDate)
	assert.Equal(t, date(2024, 3, 20), *closed.CloseDate)
	assert.True(t, closed.RemainingQuantity.IsZero())

	// Option asset fully released, gain booked, cash nets to +19740.
	longOptions, err := ledgerSvc.Account(ledger.AccountLongOptions)
	require.NoError(t, err)
	assert.Equal(t, int64(0), longOptions.SettledBalance)

	gains, err := ledgerSvc.Account(ledger.AccountRealizedGains)
	require.NoError(t, err)
	assert.Equal(t, int64(19740), gains.SettledBalance)

	cash, err := ledgerSvc.Account(ledger.AccountTradingCash)
	require.NoError(t, err)
	assert.Equal(t, int64(19740), cash.SettledBalance)
}

func TestShortLifecycle(t *testing.T) {
	svc, ledgerSvc := newTestService(t)

	opened, err := svc.OpenLeg(callLeg(SellToOpen, 300.00, 1.00, date(2024, 4, 1)))
	require.NoError(t, err)
	assert.Equal(t, domain.Short, opened.PositionType)
	assert.Equal(t, int64(30100), opened.CostBasis)

	// Premium received lands in cash; the obligation is a liability.
	shortOptions, err := ledgerSvc.Account(ledger.AccountShortOptions)
	require.NoError(t, err)
	assert.Equal(t, int64(30100), shortOptions.SettledBalance)

	// A short is closed by buying, at a cost of |amount| + fees.
	closed, err := svc.CloseLeg(callLeg(BuyToClose, -100.00, 1.00, date(2024, 5, 1)))
	require.NoError(t, err)
	assert.Equal(t, int64(10100), closed.Proceeds)
	assert.Equal(t, int64(20000), closed.RealizedPL)

	shortOptions, err = ledgerSvc.Account(ledger.AccountShortOptions)
	require.NoError(t, err)
	assert.Equal(t, int64(0), shortOptions.SettledBalance)

	cash, err := ledgerSvc.Account(ledger.AccountTradingCash)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), cash.SettledBalance)
}

func TestCloseLeg_ShortLoss(t *testing.T) {
	svc, ledgerSvc := newTestService(t)

	_, err := svc.OpenLeg(callLeg(SellToOpen, 300.00, 1.00, date(2024, 4, 1)))
	require.NoError(t, err)

	closed, err := svc.CloseLeg(callLeg(BuyToClose, -450.00, 1.00, date(2024, 4, 20)))
	require.NoError(t, err)
	assert.Equal(t, int64(-15000), closed.RealizedPL)

	losses, err := ledgerSvc.Account(ledger.AccountRealizedLosses)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), losses.SettledBalance)
}

func TestCloseLeg_NoMatchingPosition(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.OpenLeg(callLeg(BuyToOpen, -500.00, 1.30, date(2024, 3, 1)))
	require.NoError(t, err)

	// Different strike: no match, candidates reported.
	other := callLeg(SellToClose, 700.00, 1.30, date(2024, 3, 20))
	other.Strike = 20000
	_, err = svc.CloseLeg(other)
	require.Error(t, err)

	var noMatch *domain.NoMatchingPositionError
	require.ErrorAs(t, err, &noMatch)
	assert.Equal(t, "AAPL", noMatch.Underlying)
	assert.Equal(t, int64(20000), noMatch.Strike)
	assert.Len(t, noMatch.Candidates, 1)

	// The open position is untouched.
	open, err := svc.Positions(testUser, domain.PositionOpen)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestCloseLeg_ActionSideNotInMatchKey(t *testing.T) {
	svc, _ := newTestService(t)

	// Short position: the close arrives as a buy, yet matches.
	_, err := svc.OpenLeg(callLeg(SellToOpen, 300.00, 1.00, date(2024, 4, 1)))
	require.NoError(t, err)

	closed, err := svc.CloseLeg(callLeg(BuyToClose, -100.00, 1.00, date(2024, 5, 1)))
	require.NoError(t, err)
	assert.Equal(t, domain.Short, closed.PositionType)
}

func TestCloseLeg_ExpirationOnlyMatchesWhenBothSet(t *testing.T) {
	svc, _ := newTestService(t)

	exp := date(2024, 6, 21)
	opening := callLeg(BuyToOpen, -500.00, 1.30, date(2024, 3, 1))
	opening.Expiration = &exp
	_, err := svc.OpenLeg(opening)
	require.NoError(t, err)

	// Closing leg without expiration still matches.
	closed, err := svc.CloseLeg(callLeg(SellToClose, 600.00, 1.30, date(2024, 3, 20)))
	require.NoError(t, err)
	assert.Equal(t, domain.PositionClosed, closed.Status)

	// Re-open, then a mismatched expiration fails.
	_, err = svc.OpenLeg(opening)
	require.NoError(t, err)
	wrong := date(2024, 9, 20)
	closing := callLeg(SellToClose, 600.00, 1.30, date(2024, 4, 1))
	closing.Expiration = &wrong
	_, err = svc.CloseLeg(closing)
	var noMatch *domain.NoMatchingPositionError
	require.ErrorAs(t, err, &noMatch)
}

func TestCloseLeg_EarliestOpenPositionWins(t *testing.T) {
	svc, _ := newTestService(t)

	first, err := svc.OpenLeg(callLeg(BuyToOpen, -500.00, 1.30, date(2024, 3, 1)))
	require.NoError(t, err)
	_, err = svc.OpenLeg(callLeg(BuyToOpen, -480.00, 1.30, date(2024, 3, 5)))
	require.NoError(t, err)

	closed, err := svc.CloseLeg(callLeg(SellToClose, 700.00, 1.30, date(2024, 3, 20)))
	require.NoError(t, err)
	assert.Equal(t, first.ID, closed.ID)
}

func TestValidateLegGroup_SpanWindow(t *testing.T) {
	group := func(spanDays int) []*Leg {
		first := callLeg(SellToOpen, 300, 1, date(2024, 4, 1))
		first.TradeNum = 77
		second := callLeg(BuyToOpen, -120, 1, date(2024, 4, 1).AddDate(0, 0, spanDays))
		second.TradeNum = 77
		return []*Leg{first, second}
	}

	assert.NoError(t, ValidateLegGroup(group(7)))

	err := ValidateLegGroup(group(8))
	require.Error(t, err)
	var grouping *domain.InvalidLegGroupingError
	require.ErrorAs(t, err, &grouping)
	assert.Equal(t, int64(77), grouping.TradeNum)
	assert.Equal(t, 8, grouping.SpanDays)
}

func TestParseLegAction(t *testing.T) {
	for _, s := range []string{"buy_to_open", "sell_to_open", "buy_to_close", "sell_to_close"} {
		action, err := ParseLegAction(s)
		require.NoError(t, err)
		assert.Equal(t, s, string(action))
	}
	_, err := ParseLegAction("assigned")
	assert.Error(t, err)
}

func TestLegValidate(t *testing.T) {
	leg := callLeg(BuyToOpen, -500, 1.30, date(2024, 3, 1))
	assert.NoError(t, leg.Validate())

	bad := callLeg(BuyToOpen, -500, 1.30, date(2024, 3, 1))
	bad.Quantity = decimal.Zero
	assert.Error(t, bad.Validate())

	bad = callLeg(BuyToOpen, -500, 1.30, date(2024, 3, 1))
	bad.OptionType = "straddle"
	assert.Error(t, bad.Validate())
}

func TestCloseLeg_QuantityMismatchRejected(t *testing.T) {
	svc, ledgerSvc := newTestService(t)

	opened, err := svc.OpenLeg(callLeg(BuyToOpen, -1000.00, 0, date(2024, 3, 1)))
	require.NoError(t, err)

	// Selling 1 of 2 contracts must not close the whole position and book
	// one contract's proceeds against two contracts' basis.
	partial := callLeg(SellToClose, 600.00, 0, date(2024, 3, 20))
	partial.Quantity = decimal.NewFromInt(1)
	_, err = svc.CloseLeg(partial)
	require.Error(t, err)

	var mismatch *domain.PositionSizeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, opened.ID, mismatch.PositionID)
	assert.True(t, mismatch.PositionQuantity.Equal(decimal.NewFromInt(2)))
	assert.True(t, mismatch.LegQuantity.Equal(decimal.NewFromInt(1)))

	// Position untouched, nothing posted.
	positions, err := svc.Positions(testUser, domain.PositionOpen)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, domain.PositionOpen, positions[0].Status)
	assert.Equal(t, int64(0), positions[0].RealizedPL)

	longOptions, err := ledgerSvc.Account(ledger.AccountLongOptions)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), longOptions.SettledBalance)
}

func TestCloseLeg_FeesExceedSaleAmount(t *testing.T) {
	svc, ledgerSvc := newTestService(t)

	_, err := svc.OpenLeg(callLeg(BuyToOpen, -100.00, 0, date(2024, 3, 1)))
	require.NoError(t, err)

	// Worthless contracts sold for $5.00 with $6.95 in fees: the close
	// itself costs cash, and the posting still balances.
	closed, err := svc.CloseLeg(callLeg(SellToClose, 5.00, 6.95, date(2024, 6, 1)))
	require.NoError(t, err)

	assert.Equal(t, int64(-195), closed.Proceeds)
	assert.Equal(t, int64(-10195), closed.RealizedPL) // -195 - 10000
	assert.Equal(t, domain.PositionClosed, closed.Status)

	cash, err := ledgerSvc.Account(ledger.AccountTradingCash)
	require.NoError(t, err)
	assert.Equal(t, int64(-10195), cash.SettledBalance)

	longOptions, err := ledgerSvc.Account(ledger.AccountLongOptions)
	require.NoError(t, err)
	assert.Equal(t, int64(0), longOptions.SettledBalance)

	losses, err := ledgerSvc.Account(ledger.AccountRealizedLosses)
	require.NoError(t, err)
	assert.Equal(t, int64(10195), losses.SettledBalance)
}
