package strike

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

// StrikeParser handles Strike account statements. Monthly and annual
// statements share the same columns; the source tag records which one a
// transaction came from.
type StrikeParser struct {
	source models.TransactionSource
}

func NewParser(source models.TransactionSource) *StrikeParser {
	return &StrikeParser{source: source}
}

func (p *StrikeParser) Parse(file io.Reader) ([]models.NormalizedTransaction, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read all CSV records: %w", err)
	}

	var txs []models.NormalizedTransaction
	for _, record := range records {
		get := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		if state := strings.ToLower(get("state")); state != "" && state != "completed" {
			continue
		}

		var txType models.TransactionType
		switch strings.ToLower(get("transaction type")) {
		case "purchase", "exchange buy":
			txType = models.TxTypeBuy
		case "sale", "exchange sell":
			txType = models.TxTypeSell
		case "withdrawal", "onchain send", "lightning send":
			txType = models.TxTypeWithdrawal
		case "deposit", "onchain receive", "lightning receive":
			txType = models.TxTypeDeposit
		case "referral bonus", "reward":
			txType = models.TxTypeBrokerCredit
		default:
			continue
		}

		ts := get("date & time (utc)")
		timestamp, err := time.Parse("Jan 02 2006 15:04:05", ts)
		if err != nil {
			timestamp, err = time.Parse("2006-01-02 15:04:05", ts)
			if err != nil {
				log.Printf("Skipping strike row due to invalid timestamp: %s", ts)
				continue
			}
		}

		amountUSD, _ := decimal.NewFromString(get("amount usd"))
		feeUSD, _ := decimal.NewFromString(get("fee usd"))
		amountBTC, err := decimal.NewFromString(get("amount btc"))
		if err != nil {
			continue
		}
		btcPrice, _ := decimal.NewFromString(get("btc price"))

		txs = append(txs, models.NormalizedTransaction{
			ID:                    get("reference"),
			Source:                p.source,
			Type:                  txType,
			TransactionAmountFiat: models.NewExchangeAmount(amountUSD.Abs(), "USD"),
			Fee:                   models.NewExchangeAmount(feeUSD.Abs(), "USD"),
			AssetAmount:           models.NewExchangeAmount(amountBTC.Abs(), "BTC"),
			AssetValueFiat:        models.NewExchangeAmount(btcPrice, "USD"),
			Timestamp:             timestamp,
		})
	}

	return txs, nil
}
