package lots

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/bookkeeper/internal/domain"
	"github.com/aristath/bookkeeper/internal/utils"
)

// matchEpsilon is the share tolerance below which a lot counts as fully
// consumed and an unmatched remainder is ignored.
var matchEpsilon = decimal.RequireFromString("0.01")

// LotSelection is one caller-supplied pair for specific identification.
type LotSelection struct {
	LotID    int64           `json:"lot_id"`
	Quantity decimal.Decimal `json:"quantity"`
}

// candidate is a lot in consumption order, optionally capped (SPECIFIC).
type candidate struct {
	lot *domain.StockLot
	cap decimal.Decimal // zero value = no cap beyond the lot's remaining
}

// slice is one consumed piece of one lot, computed before anything is
// persisted so a failed match writes nothing.
type slice struct {
	lot         *domain.StockLot
	quantity    decimal.Decimal
	costBasis   int64
	proceeds    int64
	fees        int64
	gainLoss    int64
	holdingDays int
	longTerm    bool
}

// orderCandidates reorders the FIFO-base candidate list per the matching
// method. The input is already sorted by acquisition date ascending.
func orderCandidates(method Method, fifo []*domain.StockLot, salePrice int64, saleDate time.Time, selections []LotSelection) ([]candidate, error) {
	switch method {
	case FIFO:
		return uncapped(fifo), nil

	case LIFO:
		reversed := make([]*domain.StockLot, len(fifo))
		for i, lot := range fifo {
			reversed[len(fifo)-1-i] = lot
		}
		return uncapped(reversed), nil

	case HIFO:
		sorted := append([]*domain.StockLot(nil), fifo...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].CostPerShare > sorted[j].CostPerShare
		})
		return uncapped(sorted), nil

	case LOFO:
		sorted := append([]*domain.StockLot(nil), fifo...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].CostPerShare < sorted[j].CostPerShare
		})
		return uncapped(sorted), nil

	case MinTax:
		return orderMinTax(fifo, salePrice, saleDate), nil

	case Specific:
		byID := make(map[int64]*domain.StockLot, len(fifo))
		for _, lot := range fifo {
			byID[lot.ID] = lot
		}
		candidates := make([]candidate, 0, len(selections))
		for _, sel := range selections {
			lot, ok := byID[sel.LotID]
			if !ok {
				symbol := ""
				if len(fifo) > 0 {
					symbol = fifo[0].Symbol
				}
				return nil, &domain.LotNotFoundError{LotID: sel.LotID, Symbol: symbol}
			}
			candidates = append(candidates, candidate{lot: lot, cap: sel.Quantity})
		}
		return candidates, nil
	}
	return uncapped(fifo), nil
}

// orderMinTax orders lots to minimize current-year tax: losses first
// (largest per-share loss first), then long-term gains (smallest first),
// then short-term gains (smallest first).
func orderMinTax(fifo []*domain.StockLot, salePrice int64, saleDate time.Time) []candidate {
	type ranked struct {
		lot          *domain.StockLot
		class        int   // 0 = loss, 1 = long-term gain, 2 = short-term gain
		perShareGain int64 // cents
	}
	rankedLots := make([]ranked, 0, len(fifo))
	for _, lot := range fifo {
		gain := salePrice - lot.CostPerShare
		class := 0
		if gain >= 0 {
			if utils.DaysBetween(lot.AcquiredDate, saleDate) >= 365 {
				class = 1
			} else {
				class = 2
			}
		}
		rankedLots = append(rankedLots, ranked{lot: lot, class: class, perShareGain: gain})
	}
	sort.SliceStable(rankedLots, func(i, j int) bool {
		if rankedLots[i].class != rankedLots[j].class {
			return rankedLots[i].class < rankedLots[j].class
		}
		// Within a class: most negative first for losses, smallest gain
		// first for gains. Both are ascending per-share gain.
		return rankedLots[i].perShareGain < rankedLots[j].perShareGain
	})
	candidates := make([]candidate, len(rankedLots))
	for i, r := range rankedLots {
		candidates[i] = candidate{lot: r.lot}
	}
	return candidates
}

func uncapped(lotList []*domain.StockLot) []candidate {
	candidates := make([]candidate, len(lotList))
	for i, lot := range lotList {
		candidates[i] = candidate{lot: lot}
	}
	return candidates
}

// computeSlices walks the ordered candidates consuming the sale quantity,
// allocating proceeds and fees pro-rata per slice. The final slice absorbs
// the rounding remainder so aggregate proceeds and fees match the sale
// exactly. Returns InsufficientLotsError if more than the epsilon remains
// unmatched after all candidates are exhausted.
func computeSlices(candidates []candidate, symbol string, saleQty decimal.Decimal, totalProceeds, totalFees int64, saleDate time.Time) ([]slice, error) {
	remaining := saleQty
	var slices []slice
	var allocatedProceeds, allocatedFees int64

	// A lot may appear more than once in the candidate list (SPECIFIC
	// selections naming the same lot id twice); later slices see only
	// what earlier slices left behind.
	consumed := make(map[int64]decimal.Decimal)

	for _, c := range candidates {
		if remaining.LessThanOrEqual(matchEpsilon) {
			break
		}
		available := c.lot.RemainingQuantity.Sub(consumed[c.lot.ID])
		qty := decimal.Min(remaining, available)
		if !c.cap.IsZero() {
			qty = decimal.Min(qty, c.cap)
		}
		if qty.LessThanOrEqual(decimal.Zero) {
			continue
		}

		costBasis := utils.MulCents(c.lot.CostPerShare, qty)
		proceeds := utils.ProRataCents(totalProceeds, qty, saleQty)
		fees := utils.ProRataCents(totalFees, qty, saleQty)
		holdingDays := utils.DaysBetween(c.lot.AcquiredDate, saleDate)

		slices = append(slices, slice{
			lot:         c.lot,
			quantity:    qty,
			costBasis:   costBasis,
			proceeds:    proceeds,
			fees:        fees,
			holdingDays: holdingDays,
			longTerm:    holdingDays >= 365,
		})
		allocatedProceeds += proceeds
		allocatedFees += fees
		consumed[c.lot.ID] = consumed[c.lot.ID].Add(qty)
		remaining = remaining.Sub(qty)
	}

	if remaining.GreaterThan(matchEpsilon) {
		available := saleQty.Sub(remaining)
		return nil, &domain.InsufficientLotsError{
			Symbol:    symbol,
			Requested: saleQty,
			Available: available,
		}
	}

	if len(slices) > 0 {
		// Rounding remainder lands on the final slice.
		last := &slices[len(slices)-1]
		last.proceeds += totalProceeds - allocatedProceeds
		last.fees += totalFees - allocatedFees
	}
	for i := range slices {
		slices[i].gainLoss = slices[i].proceeds - slices[i].fees - slices[i].costBasis
	}
	return slices, nil
}
