package processors

import (
	"errors"
	"fmt"

	"github.com/username/coinfolio/src/logger"
	"github.com/username/coinfolio/src/models"
)

// LotSource supplies the candidate buy lots for an asset, already filtered
// to unreported/eligible transactions. The builder does not refilter.
type LotSource interface {
	LoadBuyLots(asset string) ([]BuyLot, error)
}

// BatchRequest is one report computation: an ordered set of sells sharing
// lot pools.
type BatchRequest struct {
	RequestID string
	Sells     []SellRequest
}

// ReportBuilder processes a batch of sells against shared per-asset lot
// pools and aggregates the results into a report.
type ReportBuilder struct {
	source LotSource
}

func NewReportBuilder(source LotSource) *ReportBuilder {
	return &ReportBuilder{source: source}
}

// ComputeBatch runs the batch synchronously. Sells are processed strictly
// in request order; that ordering is the tie-break for which sell claims
// scarce shared lots first. After each sell, its draws are consumed from
// the pool before the next sell selects, so no unit of a buy lot is
// attributed to two sells in the same batch.
//
// Per-sell errors (unknown asset, invalid quantity) go to the failures
// list and never abort the batch. A consumption invariant violation is a
// bug and does abort with an error.
func (b *ReportBuilder) ComputeBatch(req BatchRequest) (*models.TaxReportResult, error) {
	report := &models.TaxReportResult{
		RequestID: req.RequestID,
		Results:   []models.TaxableEventResult{},
		Failures:  []models.SellFailure{},
	}

	// One pool per asset for the whole batch, loaded on first use.
	pools := make(map[string]*LotPool)

	for _, sell := range req.Sells {
		if !sell.Quantity.IsPositive() {
			report.Failures = append(report.Failures, models.SellFailure{
				SellID: sell.SellID,
				Reason: fmt.Sprintf("%v: %s", ErrInvalidSellQuantity, sell.Quantity),
			})
			continue
		}

		pool, ok := pools[sell.Asset]
		if !ok {
			lots, err := b.source.LoadBuyLots(sell.Asset)
			if err != nil {
				return nil, fmt.Errorf("loading buy lots for %s: %w", sell.Asset, err)
			}
			pool = NewLotPool(sell.Asset, lots)
			pools[sell.Asset] = pool
		}
		if pool.Size() == 0 {
			report.Failures = append(report.Failures, models.SellFailure{
				SellID: sell.SellID,
				Reason: fmt.Sprintf("%v: %s", ErrUnknownAsset, sell.Asset),
			})
			continue
		}

		draws, err := SelectLots(pool, sell.Method, sell.Quantity, sell.ExplicitBuyLotIDs)
		if err != nil {
			report.Failures = append(report.Failures, models.SellFailure{
				SellID: sell.SellID,
				Reason: err.Error(),
			})
			continue
		}

		result, err := BuildTaxableEvent(sell, pool, draws)
		if err != nil {
			if errors.Is(err, ErrInsufficientLotQuantity) {
				return nil, err // selector bug, unrecoverable
			}
			report.Failures = append(report.Failures, models.SellFailure{
				SellID: sell.SellID,
				Reason: err.Error(),
			})
			continue
		}

		// Claim the selected units before the next sell runs.
		for _, draw := range draws {
			if err := pool.Consume(draw.LotID, draw.Quantity); err != nil {
				return nil, err
			}
		}

		if result.UncoveredQuantity != nil && logger.L != nil {
			logger.L.Warn("sell not fully covered by buy lots",
				"sellId", sell.SellID,
				"asset", sell.Asset,
				"uncoveredQuantity", result.UncoveredQuantity.Amount)
		}

		report.Results = append(report.Results, result)
	}

	return report, nil
}
