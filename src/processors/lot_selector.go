package processors

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/username/coinfolio/src/models"
)

// LotDraw is one (lot, quantity-to-consume) pair produced by selection.
type LotDraw struct {
	LotID    string
	Quantity decimal.Decimal
}

// SelectLots decides which lots a sell draws from and how much of each,
// given the accounting method. The returned draws sum to at most required;
// if the pool cannot fully cover the sell, the draws cover as much as
// possible and the caller reports the shortfall as uncovered.
//
// Selection is deterministic: the same pool state always yields the same
// draws. It does not mutate the pool; the batch builder consumes the draws
// afterwards.
func SelectLots(pool *LotPool, method models.TaxMethod, required decimal.Decimal, explicitIDs []string) ([]LotDraw, error) {
	if method == models.MethodCustom {
		return selectCustom(pool, required, explicitIDs), nil
	}

	eligible := pool.Eligible()
	switch method {
	case models.MethodFIFO:
		// Oldest acquisition first; ties broken by lot id for stability.
		sort.SliceStable(eligible, func(i, j int) bool {
			if !eligible[i].AcquiredAt.Equal(eligible[j].AcquiredAt) {
				return eligible[i].AcquiredAt.Before(eligible[j].AcquiredAt)
			}
			return eligible[i].ID < eligible[j].ID
		})
	case models.MethodLIFO:
		sort.SliceStable(eligible, func(i, j int) bool {
			if !eligible[i].AcquiredAt.Equal(eligible[j].AcquiredAt) {
				return eligible[i].AcquiredAt.After(eligible[j].AcquiredAt)
			}
			return eligible[i].ID < eligible[j].ID
		})
	case models.MethodMaxProfit:
		// Cheapest lots first maximizes the recognized gain.
		sort.SliceStable(eligible, func(i, j int) bool {
			if c := eligible[i].UnitCostFiat.Cmp(eligible[j].UnitCostFiat); c != 0 {
				return c < 0
			}
			if !eligible[i].AcquiredAt.Equal(eligible[j].AcquiredAt) {
				return eligible[i].AcquiredAt.Before(eligible[j].AcquiredAt)
			}
			return eligible[i].ID < eligible[j].ID
		})
	case models.MethodMinProfit:
		sort.SliceStable(eligible, func(i, j int) bool {
			if c := eligible[i].UnitCostFiat.Cmp(eligible[j].UnitCostFiat); c != 0 {
				return c > 0
			}
			if !eligible[i].AcquiredAt.Equal(eligible[j].AcquiredAt) {
				return eligible[i].AcquiredAt.Before(eligible[j].AcquiredAt)
			}
			return eligible[i].ID < eligible[j].ID
		})
	default:
		return nil, fmt.Errorf("unrecognized tax method: %q", method)
	}

	return drawGreedy(eligible, required), nil
}

// selectCustom restricts the eligible set to exactly the listed lot ids, in
// the order given. Listed lots that do not exist or are exhausted are
// skipped, as is a lot id repeated in the list (each lot can be drawn from
// once); there is no implicit fallback to other lots.
func selectCustom(pool *LotPool, required decimal.Decimal, explicitIDs []string) []LotDraw {
	var ordered []*BuyLot
	seen := make(map[string]bool, len(explicitIDs))
	for _, id := range explicitIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		lot, ok := pool.Lot(id)
		if !ok || !lot.QuantityRemaining.IsPositive() {
			continue
		}
		ordered = append(ordered, lot)
	}
	return drawGreedy(ordered, required)
}

// drawGreedy consumes from the front of the ordered lots until the required
// quantity is met or the lots are exhausted. Partial consumption of the
// final lot is the common case.
func drawGreedy(ordered []*BuyLot, required decimal.Decimal) []LotDraw {
	var draws []LotDraw
	remaining := required
	for _, lot := range ordered {
		if !remaining.IsPositive() {
			break
		}
		qty := decimal.Min(remaining, lot.QuantityRemaining)
		draws = append(draws, LotDraw{LotID: lot.ID, Quantity: qty})
		remaining = remaining.Sub(qty)
	}
	return draws
}
