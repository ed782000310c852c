package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/coinfolio/src/database"
	"github.com/username/coinfolio/src/models"
)

const transactionColumns = `id, source, type, tx_amount_fiat, tx_amount_unit, fee, fee_unit,
	asset_amount, asset_unit, asset_value_fiat, asset_value_unit, timestamp, address, notes, filed_with_irs`

// fetchUserTransactions runs a SELECT over the transactions table and scans
// the rows into normalized transactions. The query must select
// transactionColumns in order.
func fetchUserTransactions(query string, args ...interface{}) ([]models.NormalizedTransaction, error) {
	rows, err := database.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	var txs []models.NormalizedTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transactions: %w", err)
	}
	return txs, nil
}

func scanTransaction(rows *sql.Rows) (models.NormalizedTransaction, error) {
	var tx models.NormalizedTransaction
	var txAmount, txUnit, fee, feeUnit, assetAmount, assetUnit, assetValue, assetValueUnit, timestamp string
	var address, notes sql.NullString

	if err := rows.Scan(&tx.ID, &tx.Source, &tx.Type,
		&txAmount, &txUnit, &fee, &feeUnit,
		&assetAmount, &assetUnit, &assetValue, &assetValueUnit,
		&timestamp, &address, &notes, &tx.FiledWithIRS); err != nil {
		return tx, fmt.Errorf("scanning transaction: %w", err)
	}

	var err error
	if tx.TransactionAmountFiat, err = parseAmount(txAmount, txUnit); err != nil {
		return tx, fmt.Errorf("transaction %s: %w", tx.ID, err)
	}
	if tx.Fee, err = parseAmount(fee, feeUnit); err != nil {
		return tx, fmt.Errorf("transaction %s: %w", tx.ID, err)
	}
	if tx.AssetAmount, err = parseAmount(assetAmount, assetUnit); err != nil {
		return tx, fmt.Errorf("transaction %s: %w", tx.ID, err)
	}
	if tx.AssetValueFiat, err = parseAmount(assetValue, assetValueUnit); err != nil {
		return tx, fmt.Errorf("transaction %s: %w", tx.ID, err)
	}
	if tx.Timestamp, err = time.Parse(time.RFC3339, timestamp); err != nil {
		return tx, fmt.Errorf("transaction %s: invalid timestamp %q: %w", tx.ID, timestamp, err)
	}
	tx.Address = address.String
	tx.Notes = notes.String
	return tx, nil
}

func parseAmount(amount, unit string) (models.ExchangeAmount, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return models.ExchangeAmount{}, fmt.Errorf("invalid stored amount %q: %w", amount, err)
	}
	return models.NewExchangeAmount(d, unit), nil
}
