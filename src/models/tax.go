package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TaxMethod selects how buy lots are matched against a sell.
// The string values are wire-stable.
type TaxMethod string

const (
	MethodFIFO      TaxMethod = "FIFO"
	MethodLIFO      TaxMethod = "LIFO"
	MethodCustom    TaxMethod = "CUSTOM"
	MethodMaxProfit TaxMethod = "MAX_PROFIT"
	MethodMinProfit TaxMethod = "MIN_PROFIT"
)

// ParseTaxMethod validates a wire string against the closed set of methods.
func ParseTaxMethod(s string) (TaxMethod, error) {
	switch TaxMethod(s) {
	case MethodFIFO, MethodLIFO, MethodCustom, MethodMaxProfit, MethodMinProfit:
		return TaxMethod(s), nil
	}
	return "", fmt.Errorf("unrecognized tax method: %q", s)
}

// TaxType is the holding-period character of a consumed lot.
type TaxType string

const (
	ShortTerm TaxType = "SHORT_TERM"
	LongTerm  TaxType = "LONG_TERM"
)

// TaxableEventParameters selects one sell transaction for the report and
// how its lots should be matched. BuyTransactionIDs is meaningful only for
// CUSTOM and ignored otherwise.
type TaxableEventParameters struct {
	SellID            string    `json:"sellId"`
	TaxTreatment      TaxMethod `json:"taxTreatment"`
	BuyTransactionIDs []string  `json:"buyTransactionIds,omitempty"`
}

// TaxReportRequest is the client's batch request.
type TaxReportRequest struct {
	RequestID     string                   `json:"requestId"`
	TaxableEvents []TaxableEventParameters `json:"taxableEvents"`
}

// UsedBuyTransaction records one buy lot consumption inside a taxable event.
// Never mutated after creation.
type UsedBuyTransaction struct {
	TransactionID string         `json:"transactionId"`
	AmountUsed    ExchangeAmount `json:"amountUsed"`
	CostBasis     ExchangeAmount `json:"costBasis"`
	TaxType       TaxType        `json:"taxType"`
}

// TaxableEventResult is the computed gain/loss for one sell transaction.
// Invariants: CostBasis equals the sum of the used lots' cost bases,
// Gain equals Proceeds - CostBasis, and the used quantities plus
// UncoveredQuantity reconcile exactly with the sold quantity.
type TaxableEventResult struct {
	SellTransactionID   string               `json:"sellTransactionId"`
	Proceeds            ExchangeAmount       `json:"proceeds"`
	CostBasis           ExchangeAmount       `json:"costBasis"`
	Gain                ExchangeAmount       `json:"gain"`
	UsedBuyTransactions []UsedBuyTransaction `json:"usedBuyTransactions"`
	UncoveredQuantity   *ExchangeAmount      `json:"uncoveredQuantity,omitempty"`
	UncoveredValue      *ExchangeAmount      `json:"uncoveredValue,omitempty"`
}

// SellFailure reports a sell that could not be processed. A failed sell
// never aborts the rest of the batch.
type SellFailure struct {
	SellID string `json:"sellId"`
	Reason string `json:"reason"`
}

// TaxReportResult is the batch report. Totals are always recomputed from
// the results, never stored alongside them.
type TaxReportResult struct {
	RequestID string               `json:"requestId"`
	Results   []TaxableEventResult `json:"results"`
	Failures  []SellFailure        `json:"failures"`
}

// TotalProceeds sums proceeds across all results. Assumes a single fiat
// unit per report, which ingestion guarantees.
func (r *TaxReportResult) TotalProceeds() decimal.Decimal {
	total := decimal.Zero
	for _, res := range r.Results {
		total = total.Add(res.Proceeds.Amount)
	}
	return total
}

// TotalGain sums gains across all results.
func (r *TaxReportResult) TotalGain() decimal.Decimal {
	total := decimal.Zero
	for _, res := range r.Results {
		total = total.Add(res.Gain.Amount)
	}
	return total
}
