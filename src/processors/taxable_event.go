package processors

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/coinfolio/src/models"
)

// Holding period boundary for long-term treatment. Exactly 365 days is
// long-term.
const longTermHolding = 365 * 24 * time.Hour

// SellRequest is one disposal to be matched against buy lots.
type SellRequest struct {
	SellID            string
	Asset             string
	Quantity          decimal.Decimal
	ProceedsFiat      models.ExchangeAmount
	SoldAt            time.Time
	Method            models.TaxMethod
	ExplicitBuyLotIDs []string // CUSTOM only, ignored otherwise
}

// BuildTaxableEvent turns a selection into the result for one sell:
// per-lot cost basis and tax character, sell-level proceeds, cost basis,
// gain, and any uncovered remainder.
//
// The uncovered portion carries zero cost basis and is treated as
// short-term; its proportional share of proceeds is reported as
// UncoveredValue. Since the cost basis already omits it, the gain needs no
// separate uncovered adjustment.
func BuildTaxableEvent(sell SellRequest, pool *LotPool, draws []LotDraw) (models.TaxableEventResult, error) {
	fiatUnit := sell.ProceedsFiat.Unit
	costBasis := decimal.Zero
	used := decimal.Zero
	usedLots := make([]models.UsedBuyTransaction, 0, len(draws))

	for _, draw := range draws {
		lot, ok := pool.Lot(draw.LotID)
		if !ok {
			return models.TaxableEventResult{}, fmt.Errorf("%w: selected lot %s missing from pool", ErrInsufficientLotQuantity, draw.LotID)
		}
		if lot.FiatUnit != fiatUnit {
			return models.TaxableEventResult{}, fmt.Errorf("%w: lot %s cost in %q, proceeds in %q",
				models.ErrUnitMismatch, lot.ID, lot.FiatUnit, fiatUnit)
		}

		lotBasis := draw.Quantity.Mul(lot.UnitCostFiat)
		taxType := models.ShortTerm
		if sell.SoldAt.Sub(lot.AcquiredAt) >= longTermHolding {
			taxType = models.LongTerm
		}

		usedLots = append(usedLots, models.UsedBuyTransaction{
			TransactionID: lot.ID,
			AmountUsed:    models.NewExchangeAmount(draw.Quantity, sell.Asset),
			CostBasis:     models.NewExchangeAmount(lotBasis, fiatUnit),
			TaxType:       taxType,
		})
		costBasis = costBasis.Add(lotBasis)
		used = used.Add(draw.Quantity)
	}

	result := models.TaxableEventResult{
		SellTransactionID:   sell.SellID,
		Proceeds:            sell.ProceedsFiat,
		CostBasis:           models.NewExchangeAmount(costBasis, fiatUnit),
		Gain:                models.NewExchangeAmount(sell.ProceedsFiat.Amount.Sub(costBasis), fiatUnit),
		UsedBuyTransactions: usedLots,
	}

	uncovered := sell.Quantity.Sub(used)
	if uncovered.IsPositive() {
		uncoveredQty := models.NewExchangeAmount(uncovered, sell.Asset)
		// Proportional share of proceeds; multiply before dividing to keep
		// the decimal error minimal.
		uncoveredVal := models.NewExchangeAmount(
			sell.ProceedsFiat.Amount.Mul(uncovered).Div(sell.Quantity), fiatUnit)
		result.UncoveredQuantity = &uncoveredQty
		result.UncoveredValue = &uncoveredVal
	}

	return result, nil
}
