package coinbase

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/coinfolio/src/models"
)

// CoinbaseParser handles both the Coinbase Pro "fills" export and the
// standard Coinbase transaction statement. The two share fiat/asset
// conventions but differ in columns, so each gets its own row handler.
type CoinbaseParser struct {
	source models.TransactionSource
}

func NewParser(source models.TransactionSource) *CoinbaseParser {
	return &CoinbaseParser{source: source}
}

func (p *CoinbaseParser) Parse(file io.Reader) ([]models.NormalizedTransaction, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	col := indexColumns(header)

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read all CSV records: %w", err)
	}

	var txs []models.NormalizedTransaction
	for _, record := range records {
		var tx *models.NormalizedTransaction
		switch p.source {
		case models.SourceCoinbaseProFill:
			tx = parseFillRow(col, record)
		default:
			tx = parseStandardRow(col, record)
		}
		if tx == nil {
			continue
		}
		tx.Source = p.source
		txs = append(txs, *tx)
	}

	return txs, nil
}

func indexColumns(header []string) map[string]int {
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return col
}

func field(col map[string]int, record []string, name string) string {
	i, ok := col[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// parseFillRow handles one row of a Coinbase Pro fills export:
// portfolio, trade id, product, side, created at, size, size unit, price,
// fee, total, price/fee/total unit.
func parseFillRow(col map[string]int, record []string) *models.NormalizedTransaction {
	product := field(col, record, "product")
	side := strings.ToUpper(field(col, record, "side"))
	if product == "" || (side != "BUY" && side != "SELL") {
		return nil
	}

	createdAt, err := time.Parse(time.RFC3339, field(col, record, "created at"))
	if err != nil {
		log.Printf("Skipping fill row due to invalid timestamp: %s", field(col, record, "created at"))
		return nil
	}

	size, err := decimal.NewFromString(field(col, record, "size"))
	if err != nil {
		return nil
	}
	price, err := decimal.NewFromString(field(col, record, "price"))
	if err != nil {
		return nil
	}
	fee, err := decimal.NewFromString(field(col, record, "fee"))
	if err != nil {
		fee = decimal.Zero
	}

	asset := field(col, record, "size unit")
	if asset == "" {
		asset = strings.Split(product, "-")[0]
	}
	fiat := field(col, record, "price/fee/total unit")
	if fiat == "" {
		fiat = "USD"
	}

	txType := models.TxTypeBuy
	if side == "SELL" {
		txType = models.TxTypeSell
	}

	return &models.NormalizedTransaction{
		ID:                    field(col, record, "trade id"),
		Type:                  txType,
		TransactionAmountFiat: models.NewExchangeAmount(size.Mul(price), fiat),
		Fee:                   models.NewExchangeAmount(fee.Abs(), fiat),
		AssetAmount:           models.NewExchangeAmount(size.Abs(), asset),
		AssetValueFiat:        models.NewExchangeAmount(price, fiat),
		Timestamp:             createdAt,
	}
}

// parseStandardRow handles one row of a standard Coinbase statement:
// Timestamp, Transaction Type, Asset, Quantity Transacted, Spot Price
// Currency, Spot Price at Transaction, Subtotal, Total (inclusive of fees
// and/or spread), Fees and/or Spread, Notes.
func parseStandardRow(col map[string]int, record []string) *models.NormalizedTransaction {
	asset := field(col, record, "asset")
	if asset == "" {
		return nil
	}

	var txType models.TransactionType
	switch strings.ToLower(field(col, record, "transaction type")) {
	case "buy", "advanced trade buy":
		txType = models.TxTypeBuy
	case "sell", "advanced trade sell":
		txType = models.TxTypeSell
	case "send":
		txType = models.TxTypeWithdrawal
	case "receive":
		txType = models.TxTypeDeposit
	case "learning reward", "coinbase earn":
		txType = models.TxTypeBrokerCredit
	default:
		return nil
	}

	ts := field(col, record, "timestamp")
	timestamp, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		// Older statements use a space-separated UTC format.
		timestamp, err = time.Parse("2006-01-02 15:04:05 MST", ts)
		if err != nil {
			log.Printf("Skipping statement row due to invalid timestamp: %s", ts)
			return nil
		}
	}

	quantity, err := decimal.NewFromString(field(col, record, "quantity transacted"))
	if err != nil {
		return nil
	}
	fiat := field(col, record, "spot price currency")
	if fiat == "" {
		fiat = "USD"
	}
	spot, _ := decimal.NewFromString(strip(field(col, record, "spot price at transaction")))
	subtotal, _ := decimal.NewFromString(strip(field(col, record, "subtotal")))
	fees, _ := decimal.NewFromString(strip(field(col, record, "fees and/or spread")))

	if subtotal.IsZero() {
		subtotal = quantity.Mul(spot)
	}

	return &models.NormalizedTransaction{
		Type:                  txType,
		TransactionAmountFiat: models.NewExchangeAmount(subtotal.Abs(), fiat),
		Fee:                   models.NewExchangeAmount(fees.Abs(), fiat),
		AssetAmount:           models.NewExchangeAmount(quantity.Abs(), asset),
		AssetValueFiat:        models.NewExchangeAmount(spot, fiat),
		Timestamp:             timestamp,
		Notes:                 field(col, record, "notes"),
	}
}

// strip removes currency symbols and thousands separators that appear in
// statement amounts like "$1,234.56".
func strip(s string) string {
	return strings.NewReplacer("$", "", ",", "", "€", "", "£", "").Replace(s)
}
