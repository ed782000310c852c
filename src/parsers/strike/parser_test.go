package strike

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/coinfolio/src/models"
)

const statementCSV = `Reference,Date & Time (UTC),Transaction Type,State,Amount USD,Fee USD,Amount BTC,BTC Price
ref-1,Jan 15 2024 10:30:00,Purchase,Completed,-500.00,2.50,0.01150000,43478.26
ref-2,Feb 20 2024 14:00:00,Sale,Completed,600.00,3.00,-0.01150000,52173.91
ref-3,Feb 21 2024 14:00:00,Purchase,Failed,100.00,0.50,0.00190000,52000.00
ref-4,Mar 01 2024 09:00:00,Withdrawal,Completed,0.00,0.00,-0.00500000,0.00
`

func TestParseStrikeStatement(t *testing.T) {
	parser := NewParser(models.SourceStrikeAnnual)
	txs, err := parser.Parse(strings.NewReader(statementCSV))
	require.NoError(t, err)
	require.Len(t, txs, 3) // failed row skipped

	buy := txs[0]
	assert.Equal(t, "ref-1", buy.ID)
	assert.Equal(t, models.SourceStrikeAnnual, buy.Source)
	assert.Equal(t, models.TxTypeBuy, buy.Type)
	assert.Equal(t, "BTC", buy.Asset())
	assert.True(t, buy.TransactionAmountFiat.Amount.Equal(decimal.RequireFromString("500")))
	assert.True(t, buy.AssetAmount.Amount.Equal(decimal.RequireFromString("0.0115")))

	sell := txs[1]
	assert.Equal(t, models.TxTypeSell, sell.Type)
	assert.True(t, sell.AssetValueFiat.Amount.Equal(decimal.RequireFromString("52173.91")))

	withdrawal := txs[2]
	assert.Equal(t, models.TxTypeWithdrawal, withdrawal.Type)
}

func TestParseStrikeSkipsUnknownTypes(t *testing.T) {
	csv := "Reference,Date & Time (UTC),Transaction Type,State,Amount USD,Fee USD,Amount BTC,BTC Price\n" +
		"ref-9,Jan 15 2024 10:30:00,Currency Exchange,Completed,100.00,0.00,0.00,0.00\n"
	parser := NewParser(models.SourceStrikeMonthly)
	txs, err := parser.Parse(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Empty(t, txs)
}
