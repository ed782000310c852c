package models

import "time"

// TransactionSource identifies the exchange export a transaction came from.
type TransactionSource string

const (
	SourceCoinbaseProFill  TransactionSource = "COINBASE_PRO_FILL"
	SourceCoinbaseStandard TransactionSource = "COINBASE_STANDARD"
	SourceStrikeMonthly    TransactionSource = "STRIKE_MONTHLY"
	SourceStrikeAnnual     TransactionSource = "STRIKE_ANNUAL"
)

// TransactionType classifies a normalized transaction.
type TransactionType string

const (
	TxTypeBuy          TransactionType = "BUY"
	TxTypeSell         TransactionType = "SELL"
	TxTypeDeposit      TransactionType = "DEPOSIT"
	TxTypeWithdrawal   TransactionType = "WITHDRAWAL"
	TxTypeBrokerCredit TransactionType = "BROKER_CREDIT"
)

// NormalizedTransaction is a single exchange transaction after ingestion,
// normalized across sources. Amounts are decimal, tagged with their unit.
type NormalizedTransaction struct {
	ID                    string            `json:"id"`
	UserID                int64             `json:"-"`
	Source                TransactionSource `json:"source"`
	Type                  TransactionType   `json:"type"`
	TransactionAmountFiat ExchangeAmount    `json:"transactionAmountFiat"` // total fiat moved, fees excluded
	Fee                   ExchangeAmount    `json:"fee"`
	AssetAmount           ExchangeAmount    `json:"assetAmount"`   // quantity of the asset, unit is the asset symbol
	AssetValueFiat        ExchangeAmount    `json:"assetValueFiat"` // per-unit spot price at transaction time
	Timestamp             time.Time         `json:"timestamp"`
	Address               string            `json:"address,omitempty"`
	Notes                 string            `json:"notes,omitempty"`
	FiledWithIRS          bool              `json:"filedWithIRS"`
	HashID                string            `json:"-"` // dedup key generated at ingestion
}

// Asset returns the asset symbol of the transaction (the asset amount's unit).
func (t *NormalizedTransaction) Asset() string {
	return t.AssetAmount.Unit
}
