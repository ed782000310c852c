package processors

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownAsset means no buy lots exist at all for a sell's asset.
	// Distinct from insufficient quantity, which is a reportable outcome,
	// not an error.
	ErrUnknownAsset = errors.New("no buy lots exist for asset")

	// ErrInsufficientLotQuantity means a consumption exceeded a lot's
	// remaining quantity. The selector guarantees this never happens, so
	// seeing it indicates a bug, not a user-facing condition.
	ErrInsufficientLotQuantity = errors.New("lot consumption exceeds remaining quantity")

	// ErrInvalidSellQuantity rejects sells with a non-positive quantity
	// before any lot matching occurs.
	ErrInvalidSellQuantity = errors.New("sell quantity must be positive")
)

// BuyLot is one acquisition of an asset, tracked for tax purposes.
// QuantityRemaining is mutated downward as the lot is consumed within a
// single batch computation; it never goes negative.
type BuyLot struct {
	ID                string
	Asset             string
	Quantity          decimal.Decimal
	QuantityRemaining decimal.Decimal
	UnitCostFiat      decimal.Decimal
	FiatUnit          string
	AcquiredAt        time.Time
}

// LotPool holds the candidate buy lots for one asset during one batch
// computation. A pool is owned by exactly one batch invocation and must
// never be shared or reused across requests.
type LotPool struct {
	asset string
	lots  map[string]*BuyLot
	order []string // insertion order, kept for deterministic iteration
}

// NewLotPool copies the given lots into a fresh pool with
// QuantityRemaining reset to the full quantity.
func NewLotPool(asset string, lots []BuyLot) *LotPool {
	p := &LotPool{
		asset: asset,
		lots:  make(map[string]*BuyLot, len(lots)),
	}
	for _, lot := range lots {
		l := lot
		l.QuantityRemaining = l.Quantity
		p.lots[l.ID] = &l
		p.order = append(p.order, l.ID)
	}
	return p
}

// Asset returns the asset this pool holds lots for.
func (p *LotPool) Asset() string { return p.asset }

// Size returns the number of lots in the pool, exhausted ones included.
func (p *LotPool) Size() int { return len(p.lots) }

// Lot looks up a lot by id.
func (p *LotPool) Lot(id string) (*BuyLot, bool) {
	lot, ok := p.lots[id]
	return lot, ok
}

// Eligible returns the lots with remaining quantity, in insertion order.
// Exhausted lots stay in the pool for audit but are skipped here.
func (p *LotPool) Eligible() []*BuyLot {
	var eligible []*BuyLot
	for _, id := range p.order {
		if lot := p.lots[id]; lot.QuantityRemaining.IsPositive() {
			eligible = append(eligible, lot)
		}
	}
	return eligible
}

// Consume decrements a lot's remaining quantity. Callers must never
// request more than is available; the selector guarantees this.
func (p *LotPool) Consume(lotID string, qty decimal.Decimal) error {
	lot, ok := p.lots[lotID]
	if !ok {
		return fmt.Errorf("%w: lot %s not in pool for %s", ErrInsufficientLotQuantity, lotID, p.asset)
	}
	if qty.GreaterThan(lot.QuantityRemaining) {
		return fmt.Errorf("%w: lot %s has %s remaining, requested %s",
			ErrInsufficientLotQuantity, lotID, lot.QuantityRemaining, qty)
	}
	lot.QuantityRemaining = lot.QuantityRemaining.Sub(qty)
	return nil
}
